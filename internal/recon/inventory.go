package recon

import (
	"context"
	"errors"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/pkg/models"
)

// Compile-time interface guard.
var _ Inventory = (*StoreInventory)(nil)

// StoreInventory adapts the inventory repositories to the reconciler,
// translating repository errors into recon errors.
type StoreInventory struct {
	subnets services.SubnetRepository
	devices services.DeviceRepository
}

// NewStoreInventory creates an Inventory backed by the given repositories.
func NewStoreInventory(subnets services.SubnetRepository, devices services.DeviceRepository) *StoreInventory {
	return &StoreInventory{subnets: subnets, devices: devices}
}

func (s *StoreInventory) GetSubnet(ctx context.Context, id string) (*models.Subnet, error) {
	sn, err := s.subnets.Get(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, ErrSubnetNotFound
	}
	return sn, err
}

func (s *StoreInventory) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	d, err := s.devices.Get(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func (s *StoreInventory) UsedAddresses(ctx context.Context, subnetID string) ([]string, error) {
	return s.devices.UsedIPs(ctx, subnetID)
}

// DevicesByAddress keys the subnet's devices by canonical address. When two
// rows share an address the first registered wins.
func (s *StoreInventory) DevicesByAddress(ctx context.Context, subnetID string) (map[string]models.Device, error) {
	devices, err := s.devices.ListBySubnet(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]models.Device, len(devices))
	for _, d := range devices {
		key := addrspace.Canonical(d.IPAddress)
		if _, dup := m[key]; !dup {
			m[key] = d
		}
	}
	return m, nil
}

func (s *StoreInventory) FindDeviceByAddress(ctx context.Context, addr string) (*models.Device, error) {
	d, err := s.devices.FindByIP(ctx, addr)
	if errors.Is(err, services.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func (s *StoreInventory) CreateDevice(ctx context.Context, d *models.Device) error {
	err := s.devices.Create(ctx, d)
	if errors.Is(err, services.ErrAlreadyExists) {
		return errors.Join(ErrDuplicateAddress, err)
	}
	return err
}
