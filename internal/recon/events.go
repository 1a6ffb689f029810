package recon

import "time"

// Event topics published by the Recon module.
const (
	TopicScanStarted      = "recon.scan.started"
	TopicScanCompleted    = "recon.scan.completed"
	TopicDeviceDiscovered = "recon.device.discovered"
	TopicDeviceAdded      = "recon.device.added"
)

// ScanStartedEvent is the payload for TopicScanStarted events.
type ScanStartedEvent struct {
	ScanID   string `json:"scan_id"`
	SubnetID string `json:"subnet_id"`
	CIDR     string `json:"cidr"`
	Hosts    int    `json:"hosts"`
	Method   string `json:"method"`
}

// ScanCompletedEvent is the payload for TopicScanCompleted events.
type ScanCompletedEvent struct {
	ScanID     string        `json:"scan_id"`
	SubnetID   string        `json:"subnet_id"`
	CIDR       string        `json:"cidr"`
	Scanned    int           `json:"scanned"`
	Online     int           `json:"online"`
	Registered int           `json:"registered"`
	New        int           `json:"new"`
	Duration   time.Duration `json:"duration_ns"`
}

// DeviceDiscoveredEvent is published once per online, unregistered host.
type DeviceDiscoveredEvent struct {
	ScanID    string   `json:"scan_id"`
	SubnetID  string   `json:"subnet_id"`
	IP        string   `json:"ip"`
	LatencyMs *float64 `json:"latency_ms"`
}

// DeviceAddedEvent is the payload for TopicDeviceAdded events.
type DeviceAddedEvent struct {
	DeviceID string `json:"device_id"`
	SubnetID string `json:"subnet_id"`
	IP       string `json:"ip"`
	Name     string `json:"name"`
}
