package recon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/server"
	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/pkg/models"
)

const (
	defaultFreeLimit = 50
	maxFreeLimit     = 1000
	maxConcurrency   = 256
	maxScanTimeout   = 30 * time.Second
)

// FreeIP is one entry of the free address listing.
type FreeIP struct {
	IP        string `json:"ip" example:"192.168.1.20"`
	Available bool   `json:"available"`
}

// ValidateIPRequest is the body of POST /subnets/{id}/validate-ip.
type ValidateIPRequest struct {
	IPAddress string `json:"ip_address" example:"192.168.1.20"`
}

// ScanRequest is the optional body of POST /subnets/{id}/scan.
type ScanRequest struct {
	Concurrency    int     `json:"concurrency,omitempty" example:"20"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" example:"2"`
}

// PingDevicesRequest is the body of POST /devices/ping.
type PingDevicesRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

// handleCalc returns subnet metadata for an arbitrary CIDR.
//
//	@Summary		Subnet calculator
//	@Description	Returns network, broadcast, netmask and usable host count of an IPv4 CIDR.
//	@Tags			recon
//	@Produce		json
//	@Param			cidr query string true "IPv4 CIDR, e.g. 192.168.1.0/24"
//	@Success		200 {object} models.SubnetInfo
//	@Failure		400 {object} server.Problem
//	@Router			/recon/calc [get]
func (m *Module) handleCalc(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		writeError(w, http.StatusBadRequest, "cidr query parameter is required")
		return
	}
	info, err := addrspace.Describe(cidr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleIPInfo returns address utilization of a registered subnet.
//
//	@Summary		Subnet utilization
//	@Tags			recon
//	@Produce		json
//	@Param			id path string true "Subnet ID"
//	@Success		200 {object} models.Utilization
//	@Failure		404 {object} server.Problem
//	@Router			/recon/subnets/{id}/ip-info [get]
func (m *Module) handleIPInfo(w http.ResponseWriter, r *http.Request) {
	subnet, ok := m.subnet(w, r)
	if !ok {
		return
	}
	u, err := m.reconciler.SubnetUtilization(r.Context(), subnet.ID, subnet.CIDR)
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleFreeIPs lists unassigned usable addresses of a subnet.
//
//	@Summary		Free addresses
//	@Tags			recon
//	@Produce		json
//	@Param			id path string true "Subnet ID"
//	@Param			limit query int false "Maximum addresses (1-1000)" default(50)
//	@Success		200 {array} FreeIP
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Router			/recon/subnets/{id}/free-ips [get]
func (m *Module) handleFreeIPs(w http.ResponseWriter, r *http.Request) {
	limit := defaultFreeLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxFreeLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}
	subnet, ok := m.subnet(w, r)
	if !ok {
		return
	}
	free, err := m.reconciler.FreeAddresses(r.Context(), subnet.ID, subnet.CIDR, limit)
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	resp := make([]FreeIP, len(free))
	for i, ip := range free {
		resp[i] = FreeIP{IP: ip, Available: true}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleValidateIP checks whether an address belongs to a subnet and is free.
//
//	@Summary		Validate address
//	@Tags			recon
//	@Accept			json
//	@Produce		json
//	@Param			id path string true "Subnet ID"
//	@Param			body body ValidateIPRequest true "Address to check"
//	@Success		200 {object} models.AddressCheck
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Router			/recon/subnets/{id}/validate-ip [post]
func (m *Module) handleValidateIP(w http.ResponseWriter, r *http.Request) {
	var req ValidateIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IPAddress == "" {
		writeError(w, http.StatusBadRequest, "ip_address is required")
		return
	}
	subnet, ok := m.subnet(w, r)
	if !ok {
		return
	}
	check, err := m.reconciler.ValidateAddress(r.Context(), subnet.ID, subnet.CIDR, req.IPAddress)
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleScan sweeps a subnet and reconciles the result with the inventory.
// The request blocks until every host has been probed.
//
//	@Summary		Scan subnet
//	@Description	Probes every usable host and classifies it as online/offline and registered/new. Add ?format=csv for a CSV report.
//	@Tags			recon
//	@Accept			json
//	@Produce		json
//	@Produce		text/csv
//	@Param			id path string true "Subnet ID"
//	@Param			body body ScanRequest false "Scan tuning"
//	@Success		200 {object} models.ScanReport
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Failure		429 {object} server.Problem
//	@Router			/recon/subnets/{id}/scan [post]
func (m *Module) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Concurrency < 0 || req.Concurrency > maxConcurrency {
		writeError(w, http.StatusBadRequest, "concurrency must be between 1 and 256")
		return
	}
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	if timeout < 0 || timeout > maxScanTimeout {
		writeError(w, http.StatusBadRequest, "timeout_seconds must be between 0 and 30")
		return
	}

	subnet, ok := m.subnet(w, r)
	if !ok {
		return
	}
	if !m.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "scan rate exceeded, retry shortly")
		return
	}

	report, err := m.reconciler.ScanSubnet(r.Context(), subnet.ID, subnet.CIDR, req.Concurrency, timeout)
	m.recordScan(r.Context(), subnet, report, err)
	if err != nil {
		m.writeReconError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="scan-`+report.ScanID+`.csv"`)
		if err := WriteReportCSV(w, report); err != nil {
			m.logger.Warn("failed to write csv report", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// recordScan writes the scan summary to the history. Failures are logged,
// never surfaced to the client.
func (m *Module) recordScan(ctx context.Context, subnet *models.Subnet, report *models.ScanReport, scanErr error) {
	// The client may have gone away; history is still written.
	ctx = context.WithoutCancel(ctx)
	record := &models.ScanRecord{
		SubnetID: subnet.ID,
		CIDR:     subnet.CIDR,
		Method:   m.cfg.ProbeMethod,
	}
	if report != nil {
		record.ID = report.ScanID
		record.Method = report.Method
		record.StartedAt = report.StartedAt.UTC().Format(time.RFC3339)
		record.EndedAt = report.StartedAt.Add(report.Duration).UTC().Format(time.RFC3339)
		record.Total = report.Scanned
		record.Online = report.OnlineCount
		record.Registered = report.RegisteredCount
		record.New = report.NewCount
	}
	if scanErr != nil {
		record.Status = services.ScanStatusFailed
		record.ErrorMsg = scanErr.Error()
	}

	if err := m.scans.Create(ctx, record); err != nil {
		m.logger.Warn("failed to record scan", zap.Error(err))
		return
	}
	if err := m.scans.Complete(ctx, record); err != nil {
		m.logger.Warn("failed to record scan result", zap.String("scan_id", record.ID), zap.Error(err))
	}
}

// handleQuickAdd registers a host discovered by a scan.
//
//	@Summary		Quick add device
//	@Tags			recon
//	@Accept			json
//	@Produce		json
//	@Param			body body QuickAddRequest true "Device to register"
//	@Success		201 {object} models.Device
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Failure		409 {object} server.Problem
//	@Router			/recon/quick-add [post]
func (m *Module) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	var req QuickAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SubnetID == "" || req.IPAddress == "" {
		writeError(w, http.StatusBadRequest, "subnet_id and ip_address are required")
		return
	}
	d, err := m.reconciler.QuickAdd(r.Context(), req)
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handlePingDevice probes one registered device.
//
//	@Summary		Ping device
//	@Tags			recon
//	@Produce		json
//	@Param			id path string true "Device ID"
//	@Success		200 {object} models.DevicePingResult
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Router			/recon/devices/{id}/ping [get]
func (m *Module) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	res, err := m.reconciler.PingDevice(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePingDevices probes several registered devices concurrently.
//
//	@Summary		Ping devices
//	@Tags			recon
//	@Accept			json
//	@Produce		json
//	@Param			body body PingDevicesRequest true "Device IDs"
//	@Success		200 {array} models.DevicePingResult
//	@Failure		400 {object} server.Problem
//	@Router			/recon/devices/ping [post]
func (m *Module) handlePingDevices(w http.ResponseWriter, r *http.Request) {
	var req PingDevicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.cfg.MaxScanHosts > 0 && len(req.DeviceIDs) > m.cfg.MaxScanHosts {
		writeError(w, http.StatusBadRequest, "too many device ids")
		return
	}
	res, err := m.reconciler.PingDevices(r.Context(), req.DeviceIDs)
	if err != nil {
		m.writeReconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListScans returns the scan history, newest first.
//
//	@Summary		List scans
//	@Tags			recon
//	@Produce		json
//	@Param			subnet_id query string false "Restrict to one subnet"
//	@Param			limit query int false "Page size" default(50)
//	@Param			offset query int false "Offset" default(0)
//	@Success		200 {array} models.ScanRecord
//	@Router			/recon/scans [get]
func (m *Module) handleListScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	res, err := m.scans.List(r.Context(), q.Get("subnet_id"), services.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		m.logger.Error("failed to list scans", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	writeJSON(w, http.StatusOK, res.Items)
}

// handleGetScan returns one scan history entry.
//
//	@Summary		Get scan
//	@Tags			recon
//	@Produce		json
//	@Param			id path string true "Scan ID"
//	@Success		200 {object} models.ScanRecord
//	@Failure		404 {object} server.Problem
//	@Router			/recon/scans/{id} [get]
func (m *Module) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := m.scans.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, services.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		m.logger.Error("failed to get scan", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get scan")
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// subnet loads the subnet named by the {id} path value, writing the error
// response itself when it cannot.
func (m *Module) subnet(w http.ResponseWriter, r *http.Request) (*models.Subnet, bool) {
	s, err := m.inventory.GetSubnet(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeReconError(w, err)
		return nil, false
	}
	return s, true
}

// writeReconError maps reconciler errors onto problem responses.
func (m *Module) writeReconError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSubnetNotFound), errors.Is(err, ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateAddress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, addrspace.ErrInvalidCIDR),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrNoAddress),
		errors.Is(err, ErrScanTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		m.logger.Error("recon request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	server.Error(w, status, detail, "")
}
