// Package inventory implements the inventory module: the registered subnets
// and devices the recon module reconciles scans against.
package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

const moduleName = "inventory"

// Event topics published by the Inventory module.
const (
	TopicSubnetCreated = "inventory.subnet.created"
	TopicDeviceCreated = "inventory.device.created"
	TopicDeviceDeleted = "inventory.device.deleted"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the Inventory plugin.
type Module struct {
	logger  *zap.Logger
	bus     plugin.EventBus
	subnets services.SubnetRepository
	devices services.DeviceRepository
}

// New creates a new Inventory plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        moduleName,
		Version:     "0.1.0",
		Description: "Registered subnets and devices",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	if err := deps.Store.Migrate(ctx, moduleName, services.InventoryMigrations()); err != nil {
		return fmt.Errorf("inventory migrations: %w", err)
	}
	m.subnets = services.NewSQLiteSubnetRepository(deps.Store.DB())
	m.devices = services.NewSQLiteDeviceRepository(deps.Store.DB())

	m.logger.Info("inventory module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Health implements plugin.HealthChecker by counting subnets.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	res, err := m.subnets.List(ctx, services.ListOptions{Limit: 1})
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Details: map[string]string{"error": err.Error()}}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"subnets": fmt.Sprint(res.Total)},
	}
}

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/subnets", Handler: m.handleListSubnets},
		{Method: "POST", Path: "/subnets", Handler: m.handleCreateSubnet},
		{Method: "GET", Path: "/subnets/{id}", Handler: m.handleGetSubnet},
		{Method: "DELETE", Path: "/subnets/{id}", Handler: m.handleDeleteSubnet},
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "POST", Path: "/devices", Handler: m.handleCreateDevice},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "DELETE", Path: "/devices/{id}", Handler: m.handleDeleteDevice},
	}
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    moduleName,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
