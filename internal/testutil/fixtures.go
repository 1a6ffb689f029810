package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/ipscope/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields with options.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		ID:              uuid.New().String(),
		Name:            "test-device",
		Hostname:        "test-device.lan",
		IPAddress:       "192.168.1.100",
		MACAddress:      "00:11:22:33:44:55",
		AssetType:       "server",
		DiscoveryMethod: models.DiscoveryManual,
		CreatedAt:       time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName sets the device name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithHostname sets the device hostname.
func WithHostname(name string) func(*models.Device) {
	return func(d *models.Device) { d.Hostname = name }
}

// WithIP sets the device's IP address.
func WithIP(ip string) func(*models.Device) {
	return func(d *models.Device) { d.IPAddress = ip }
}

// WithMAC sets the device's MAC address.
func WithMAC(mac string) func(*models.Device) {
	return func(d *models.Device) { d.MACAddress = mac }
}

// InSubnet assigns the device to a subnet.
func InSubnet(subnetID string) func(*models.Device) {
	return func(d *models.Device) { d.SubnetID = subnetID }
}

// NewSubnet returns a /24 Subnet with sensible defaults.
func NewSubnet(opts ...func(*models.Subnet)) models.Subnet {
	s := models.Subnet{
		ID:         uuid.New().String(),
		Name:       "test-lan",
		CIDR:       "192.168.1.0/24",
		Gateway:    "192.168.1.1",
		Netmask:    "255.255.255.0",
		MaxDevices: 254,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithCIDR sets the subnet block.
func WithCIDR(cidr string) func(*models.Subnet) {
	return func(s *models.Subnet) { s.CIDR = cidr }
}

// WithGateway sets the subnet gateway and netmask.
func WithGateway(gateway, netmask string) func(*models.Subnet) {
	return func(s *models.Subnet) {
		s.Gateway = gateway
		s.Netmask = netmask
	}
}
