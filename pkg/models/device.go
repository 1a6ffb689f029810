package models

import "time"

// DiscoveryMethod indicates how a device entered the inventory.
type DiscoveryMethod string

const (
	DiscoveryManual DiscoveryMethod = "manual"
	DiscoveryScan   DiscoveryMethod = "scan"
	DiscoveryImport DiscoveryMethod = "import"
)

// Device represents a registered network device.
type Device struct {
	ID              string          `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name            string          `json:"name" example:"core-switch-01"`
	Hostname        string          `json:"hostname,omitempty" example:"sw01.lan"`
	IPAddress       string          `json:"ip_address,omitempty" example:"192.168.1.10"`
	MACAddress      string          `json:"mac_address,omitempty"`
	SubnetID        string          `json:"subnet_id,omitempty"`
	AssetType       string          `json:"asset_type,omitempty" example:"switch"`
	NetworkLevel    string          `json:"network_level,omitempty" example:"core"`
	DefaultGateway  string          `json:"default_gateway,omitempty" example:"192.168.1.1"`
	Netmask         string          `json:"netmask,omitempty" example:"255.255.255.0"`
	Notes           string          `json:"notes,omitempty"`
	DiscoveryMethod DiscoveryMethod `json:"discovery_method"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DevicePingResult is the liveness of a single registered device.
type DevicePingResult struct {
	DeviceID   string   `json:"device_id"`
	DeviceName string   `json:"device_name"`
	IPAddress  string   `json:"ip_address"`
	Online     bool     `json:"online"`
	LatencyMs  *float64 `json:"latency_ms"`
	Error      string   `json:"error,omitempty"`
}
