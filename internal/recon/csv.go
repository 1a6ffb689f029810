package recon

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/HerbHall/ipscope/pkg/models"
)

// csvHeaders returns the CSV column headers of a scan report.
func csvHeaders() []string {
	return []string{
		"ip", "online", "latency_ms", "error",
		"is_registered", "is_new", "device_id", "device_name",
	}
}

// entryToCSVRow converts a scan entry to a CSV row (matching csvHeaders order).
func entryToCSVRow(e models.ScanEntry) []string {
	latency := ""
	if e.LatencyMs != nil {
		latency = strconv.FormatFloat(*e.LatencyMs, 'f', 3, 64)
	}
	return []string{
		e.Address,
		strconv.FormatBool(e.Online),
		latency,
		e.Error,
		strconv.FormatBool(e.IsRegistered),
		strconv.FormatBool(e.IsNew),
		e.DeviceID,
		e.DeviceName,
	}
}

// WriteReportCSV writes one row per scanned address, in report order.
func WriteReportCSV(w io.Writer, report *models.ScanReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders()); err != nil {
		return err
	}
	for _, e := range report.Results {
		if err := cw.Write(entryToCSVRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
