// Package recon implements the reconnaissance module: subnet address
// accounting, reachability scans reconciled against the registered
// inventory, and quick registration of discovered hosts.
package recon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/ipscope/internal/metrics"
	"github.com/HerbHall/ipscope/internal/probe"
	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/internal/sweep"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

const moduleName = "recon"

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Module implements the Recon plugin.
type Module struct {
	logger     *zap.Logger
	cfg        Config
	inventory  Inventory
	scans      services.ScanRepository
	reconciler *Reconciler
	limiter    *rate.Limiter
}

// New creates a new Recon plugin instance.
func New() *Module {
	return &Module{cfg: DefaultConfig()}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         moduleName,
		Version:      "0.1.0",
		Description:  "Subnet utilization, reachability scans and inventory reconciliation",
		Dependencies: []string{"inventory"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = loadConfig(deps.Config)
	if err := m.ValidateConfig(); err != nil {
		return err
	}

	if err := deps.Store.Migrate(ctx, moduleName, services.ScanMigrations()); err != nil {
		return fmt.Errorf("recon migrations: %w", err)
	}

	prober, err := probe.New(probe.Config{
		Method:   m.cfg.ProbeMethod,
		PingPath: m.cfg.PingPath,
		Grace:    m.cfg.ProbeGrace,
		TCPPorts: m.cfg.TCPPorts,
		Logger:   m.logger.Named("probe"),
	})
	if err != nil {
		return fmt.Errorf("recon prober: %w", err)
	}
	sweepMetrics, err := metrics.NewSweep(deps.Metrics)
	if err != nil {
		return fmt.Errorf("recon metrics: %w", err)
	}
	orchestrator := sweep.New(prober, m.logger.Named("sweep"), sweepMetrics)

	db := deps.Store.DB()
	m.inventory = NewStoreInventory(
		services.NewSQLiteSubnetRepository(db),
		services.NewSQLiteDeviceRepository(db),
	)
	m.scans = services.NewSQLiteScanRepository(db)
	m.reconciler = NewReconciler(m.inventory, orchestrator, m.cfg, deps.Bus, m.logger)
	m.limiter = rate.NewLimiter(rate.Limit(m.cfg.ScanRate), m.cfg.ScanBurst)

	m.logger.Info("recon module initialized",
		zap.String("probe_method", m.cfg.ProbeMethod),
		zap.Int("scan_concurrency", m.cfg.ScanConcurrency),
		zap.Duration("scan_timeout", m.cfg.ScanTimeout),
		zap.Int("max_scan_hosts", m.cfg.MaxScanHosts),
		zap.Duration("max_scan_duration", m.cfg.MaxScanDuration()),
	)
	return nil
}

// MaxScanDuration reports the worst-case duration of the largest scan the
// module accepts. See Config.MaxScanDuration.
func (m *Module) MaxScanDuration() time.Duration {
	return m.cfg.MaxScanDuration()
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("recon module started")
	return nil
}

// Stop has nothing to drain: scans run on request goroutines and end with
// their request context.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("recon module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"probe_method": m.cfg.ProbeMethod,
		},
	}
}

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/calc", Handler: m.handleCalc},
		{Method: "GET", Path: "/subnets/{id}/ip-info", Handler: m.handleIPInfo},
		{Method: "GET", Path: "/subnets/{id}/free-ips", Handler: m.handleFreeIPs},
		{Method: "POST", Path: "/subnets/{id}/validate-ip", Handler: m.handleValidateIP},
		{Method: "POST", Path: "/subnets/{id}/scan", Handler: m.handleScan},
		{Method: "POST", Path: "/quick-add", Handler: m.handleQuickAdd},
		{Method: "GET", Path: "/devices/{id}/ping", Handler: m.handlePingDevice},
		{Method: "POST", Path: "/devices/ping", Handler: m.handlePingDevices},
		{Method: "GET", Path: "/scans", Handler: m.handleListScans},
		{Method: "GET", Path: "/scans/{id}", Handler: m.handleGetScan},
	}
}
