package models

import "time"

// Subnet is an IPv4 address block registered in the inventory.
type Subnet struct {
	ID         string    `json:"id" example:"a1b2c3d4-e5f6-7890-abcd-ef1234567890"`
	Name       string    `json:"name" example:"office-lan"`
	CIDR       string    `json:"cidr" example:"192.168.1.0/24"`
	Gateway    string    `json:"gateway,omitempty" example:"192.168.1.1"`
	Netmask    string    `json:"netmask,omitempty" example:"255.255.255.0"`
	MaxDevices int       `json:"max_devices" example:"254"`
	Location   string    `json:"location,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubnetInfo is the derived metadata of a CIDR block.
type SubnetInfo struct {
	CIDR             string `json:"cidr" example:"192.168.1.0/24"`
	NetworkAddress   string `json:"network_address" example:"192.168.1.0"`
	BroadcastAddress string `json:"broadcast_address" example:"192.168.1.255"`
	Netmask          string `json:"netmask" example:"255.255.255.0"`
	PrefixLength     int    `json:"prefix_length" example:"24"`
	TotalHosts       int    `json:"total_hosts" example:"254"`
}

// Utilization summarizes address usage in a subnet.
type Utilization struct {
	SubnetID     string  `json:"subnet_id"`
	CIDR         string  `json:"subnet_cidr" example:"192.168.1.0/24"`
	Total        int     `json:"total_ips" example:"254"`
	Used         int     `json:"used_ips" example:"1"`
	Free         int     `json:"free_ips" example:"253"`
	UsagePercent float64 `json:"usage_percentage" example:"0.39"`
}

// AddressCheck is the outcome of validating an address against a subnet.
type AddressCheck struct {
	Address   string `json:"ip_address" example:"192.168.1.20"`
	Valid     bool   `json:"valid"`
	InSubnet  bool   `json:"in_subnet"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// ScanEntry is one probed address annotated with its registration status.
type ScanEntry struct {
	Address      string   `json:"ip" example:"192.168.1.10"`
	Online       bool     `json:"online"`
	LatencyMs    *float64 `json:"latency_ms"`
	Error        string   `json:"error,omitempty"`
	IsRegistered bool     `json:"is_registered"`
	IsNew        bool     `json:"is_new"`
	DeviceID     string   `json:"device_id,omitempty"`
	DeviceName   string   `json:"device_name,omitempty"`
}

// ScanReport aggregates one reachability sweep of a subnet.
type ScanReport struct {
	ScanID          string        `json:"scan_id,omitempty"`
	SubnetID        string        `json:"subnet_id"`
	CIDR            string        `json:"subnet_cidr" example:"192.168.1.0/24"`
	Method          string        `json:"method" example:"exec"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Scanned         int           `json:"scanned_ips" example:"254"`
	OnlineCount     int           `json:"online_count" example:"12"`
	OfflineCount    int           `json:"offline_count" example:"242"`
	RegisteredCount int           `json:"registered_count" example:"10"`
	NewCount        int           `json:"new_count" example:"3"`
	Results         []ScanEntry   `json:"results"`
}

// ScanRecord is the persisted summary of a completed scan.
type ScanRecord struct {
	ID         string `json:"id"`
	SubnetID   string `json:"subnet_id"`
	CIDR       string `json:"cidr"`
	Method     string `json:"method"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Online     int    `json:"online"`
	Registered int    `json:"registered"`
	New        int    `json:"new"`
	ErrorMsg   string `json:"error,omitempty"`
}
