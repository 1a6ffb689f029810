package recon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/probe"
	"github.com/HerbHall/ipscope/internal/sweep"
	"github.com/HerbHall/ipscope/pkg/models"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

// Reconciler errors. Probe failures are never reported through these; they
// are part of the scan results.
var (
	ErrSubnetNotFound   = errors.New("subnet not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDuplicateAddress = errors.New("address already assigned")
	ErrNoAddress        = errors.New("device has no IP address")
	ErrInvalidAddress   = errors.New("invalid IPv4 address")
	ErrScanTooLarge     = errors.New("subnet too large to scan")
)

// Inventory is the device store the reconciler reads from and registers
// discovered hosts into.
type Inventory interface {
	GetSubnet(ctx context.Context, id string) (*models.Subnet, error)
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	UsedAddresses(ctx context.Context, subnetID string) ([]string, error)
	DevicesByAddress(ctx context.Context, subnetID string) (map[string]models.Device, error)
	FindDeviceByAddress(ctx context.Context, addr string) (*models.Device, error)
	CreateDevice(ctx context.Context, d *models.Device) error
}

// AddressSet is a snapshot of addresses keyed by canonical IPv4 form.
// Surrounding whitespace is ignored and IPv4-mapped IPv6 forms
// ("::ffff:10.0.0.1") compare equal to their dotted address.
type AddressSet map[string]struct{}

// NewAddressSet builds a set from addrs. Unparsable entries are kept
// verbatim and only match themselves.
func NewAddressSet(addrs []string) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s[addrspace.Canonical(a)] = struct{}{}
	}
	return s
}

// Has reports whether addr is in the set.
func (s AddressSet) Has(addr string) bool {
	_, ok := s[addrspace.Canonical(addr)]
	return ok
}

// Len returns the number of distinct addresses.
func (s AddressSet) Len() int { return len(s) }

// Utilization computes address usage of cidr given the used set.
func Utilization(subnetID, cidr string, used AddressSet) (models.Utilization, error) {
	p, err := addrspace.Parse(cidr)
	if err != nil {
		return models.Utilization{}, err
	}
	total := int(addrspace.UsableHostCount(p))
	u := models.Utilization{
		SubnetID: subnetID,
		CIDR:     cidr,
		Total:    total,
		Used:     used.Len(),
		Free:     max(total-used.Len(), 0),
	}
	if total > 0 {
		u.UsagePercent = math.Round(float64(u.Used)/float64(total)*100*100) / 100
	}
	return u, nil
}

// FreeAddresses returns the usable hosts of cidr not in used, ascending.
// A positive limit truncates the result.
func FreeAddresses(cidr string, used AddressSet, limit int) ([]string, error) {
	p, err := addrspace.Parse(cidr)
	if err != nil {
		return nil, err
	}
	free := []string{}
	for a := range addrspace.Hosts(p) {
		s := a.String()
		if used.Has(s) {
			continue
		}
		free = append(free, s)
		if limit > 0 && len(free) == limit {
			break
		}
	}
	return free, nil
}

// CheckAddress reports whether addr belongs to cidr and is still free.
// Usage is only consulted for in-subnet addresses.
func CheckAddress(cidr, addr string, used AddressSet) models.AddressCheck {
	c := models.AddressCheck{Address: addr}
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil || !ip.Unmap().Is4() {
		c.Message = fmt.Sprintf("%q is not a valid IPv4 address", addr)
		return c
	}
	if !addrspace.Contains(addr, cidr) {
		c.Message = fmt.Sprintf("%s is not in subnet %s", addr, cidr)
		return c
	}
	c.Valid = true
	c.InSubnet = true
	if used.Has(addr) {
		c.Message = fmt.Sprintf("%s is already in use", addr)
		return c
	}
	c.Available = true
	c.Message = fmt.Sprintf("%s is available", addr)
	return c
}

// BuildReport annotates ordered sweep outcomes with registration status.
// devices is keyed by canonical address.
func BuildReport(subnetID, cidr string, outcomes []probe.Outcome, devices map[string]models.Device) *models.ScanReport {
	r := &models.ScanReport{
		SubnetID: subnetID,
		CIDR:     cidr,
		Scanned:  len(outcomes),
		Results:  make([]models.ScanEntry, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		e := models.ScanEntry{
			Address:   o.Address,
			Online:    o.Reachable,
			LatencyMs: o.LatencyMs,
			Error:     string(o.Error),
		}
		if d, ok := devices[addrspace.Canonical(o.Address)]; ok {
			e.IsRegistered = true
			e.DeviceID = d.ID
			e.DeviceName = d.Name
			r.RegisteredCount++
		}
		if o.Reachable {
			r.OnlineCount++
			if !e.IsRegistered {
				e.IsNew = true
				r.NewCount++
			}
		} else {
			r.OfflineCount++
		}
		r.Results = append(r.Results, e)
	}
	return r
}

// Reconciler joins sweep results with the registered inventory.
type Reconciler struct {
	inv     Inventory
	sweeper *sweep.Orchestrator
	bus     plugin.EventBus
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler. bus may be nil.
func NewReconciler(inv Inventory, sweeper *sweep.Orchestrator, cfg Config, bus plugin.EventBus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		inv:     inv,
		sweeper: sweeper,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *Reconciler) usedSet(ctx context.Context, subnetID string) (AddressSet, error) {
	used, err := r.inv.UsedAddresses(ctx, subnetID)
	if err != nil {
		return nil, fmt.Errorf("load used addresses: %w", err)
	}
	return NewAddressSet(used), nil
}

// SubnetUtilization reports how much of cidr is assigned to devices.
func (r *Reconciler) SubnetUtilization(ctx context.Context, subnetID, cidr string) (models.Utilization, error) {
	if _, err := addrspace.Parse(cidr); err != nil {
		return models.Utilization{}, err
	}
	used, err := r.usedSet(ctx, subnetID)
	if err != nil {
		return models.Utilization{}, err
	}
	return Utilization(subnetID, cidr, used)
}

// FreeAddresses lists unassigned usable hosts of cidr in ascending order.
func (r *Reconciler) FreeAddresses(ctx context.Context, subnetID, cidr string, limit int) ([]string, error) {
	if _, err := addrspace.Parse(cidr); err != nil {
		return nil, err
	}
	used, err := r.usedSet(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	return FreeAddresses(cidr, used, limit)
}

// ValidateAddress checks addr against cidr and the subnet's used set. The
// used set is not loaded for out-of-subnet addresses.
func (r *Reconciler) ValidateAddress(ctx context.Context, subnetID, cidr, addr string) (models.AddressCheck, error) {
	if _, err := addrspace.Parse(cidr); err != nil {
		return models.AddressCheck{}, err
	}
	if !addrspace.Contains(addr, cidr) {
		return CheckAddress(cidr, addr, nil), nil
	}
	used, err := r.usedSet(ctx, subnetID)
	if err != nil {
		return models.AddressCheck{}, err
	}
	return CheckAddress(cidr, addr, used), nil
}

// ScanSubnet sweeps every usable host of cidr and classifies each one
// against the devices registered in the subnet. Non-positive concurrency
// and timeout fall back to the configured defaults.
func (r *Reconciler) ScanSubnet(ctx context.Context, subnetID, cidr string, concurrency int, timeout time.Duration) (*models.ScanReport, error) {
	p, err := addrspace.Parse(cidr)
	if err != nil {
		return nil, err
	}
	if n := addrspace.UsableHostCount(p); r.cfg.MaxScanHosts > 0 && n > uint64(r.cfg.MaxScanHosts) {
		return nil, fmt.Errorf("%w: %s has %d hosts, limit is %d", ErrScanTooLarge, cidr, n, r.cfg.MaxScanHosts)
	}
	if concurrency <= 0 {
		concurrency = r.cfg.ScanConcurrency
	}
	if timeout <= 0 {
		timeout = r.cfg.ScanTimeout
	}

	devices, err := r.inv.DevicesByAddress(ctx, subnetID)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	hosts, err := addrspace.EnumerateHosts(cidr)
	if err != nil {
		return nil, err
	}

	scanID := uuid.New().String()
	started := r.now()
	r.publish(ctx, started, TopicScanStarted, ScanStartedEvent{
		ScanID:   scanID,
		SubnetID: subnetID,
		CIDR:     cidr,
		Hosts:    len(hosts),
		Method:   r.sweeper.Method(),
	})
	r.logger.Info("subnet scan started",
		zap.String("scan_id", scanID),
		zap.String("cidr", cidr),
		zap.Int("hosts", len(hosts)),
		zap.Int("concurrency", concurrency),
		zap.Duration("timeout", timeout),
	)

	outcomes := r.sweeper.Sweep(ctx, hosts, sweep.Options{MaxConcurrency: concurrency, Timeout: timeout})

	report := BuildReport(subnetID, cidr, outcomes, devices)
	report.ScanID = scanID
	report.Method = r.sweeper.Method()
	report.StartedAt = started
	ended := r.now()
	report.Duration = ended.Sub(started)

	for _, e := range report.Results {
		if e.IsNew {
			r.publish(ctx, ended, TopicDeviceDiscovered, DeviceDiscoveredEvent{
				ScanID:    scanID,
				SubnetID:  subnetID,
				IP:        e.Address,
				LatencyMs: e.LatencyMs,
			})
		}
	}
	r.publish(ctx, ended, TopicScanCompleted, ScanCompletedEvent{
		ScanID:     scanID,
		SubnetID:   subnetID,
		CIDR:       cidr,
		Scanned:    report.Scanned,
		Online:     report.OnlineCount,
		Registered: report.RegisteredCount,
		New:        report.NewCount,
		Duration:   report.Duration,
	})
	r.logger.Info("subnet scan completed",
		zap.String("scan_id", scanID),
		zap.Int("online", report.OnlineCount),
		zap.Int("new", report.NewCount),
		zap.Duration("elapsed", report.Duration),
	)
	return report, nil
}

// QuickAddRequest registers a discovered host.
type QuickAddRequest struct {
	SubnetID     string `json:"subnet_id"`
	IPAddress    string `json:"ip_address"`
	Name         string `json:"name"`
	Hostname     string `json:"hostname,omitempty"`
	AssetType    string `json:"asset_type,omitempty"`
	NetworkLevel string `json:"network_level,omitempty"`
}

// QuickAdd creates a device for a discovered address. The address is
// checked against the live inventory rather than a scan snapshot.
func (r *Reconciler) QuickAdd(ctx context.Context, req QuickAddRequest) (*models.Device, error) {
	subnet, err := r.inv.GetSubnet(ctx, req.SubnetID)
	if err != nil {
		return nil, err
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(req.IPAddress))
	if err != nil || !ip.Unmap().Is4() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, req.IPAddress)
	}
	addr := ip.Unmap().String()

	existing, err := r.inv.FindDeviceByAddress(ctx, addr)
	switch {
	case err == nil && existing != nil:
		return nil, fmt.Errorf("%w: IP %s is already assigned to device %q", ErrDuplicateAddress, addr, existing.Name)
	case err != nil && !errors.Is(err, ErrDeviceNotFound):
		return nil, fmt.Errorf("check address %s: %w", addr, err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = addr
	}
	d := &models.Device{
		Name:            name,
		Hostname:        req.Hostname,
		IPAddress:       addr,
		SubnetID:        subnet.ID,
		AssetType:       req.AssetType,
		NetworkLevel:    req.NetworkLevel,
		DefaultGateway:  subnet.Gateway,
		Netmask:         subnet.Netmask,
		DiscoveryMethod: models.DiscoveryScan,
	}
	if err := r.inv.CreateDevice(ctx, d); err != nil {
		return nil, err
	}

	r.publish(ctx, r.now(), TopicDeviceAdded, DeviceAddedEvent{
		DeviceID: d.ID,
		SubnetID: subnet.ID,
		IP:       addr,
		Name:     d.Name,
	})
	r.logger.Info("device added from scan",
		zap.String("device_id", d.ID),
		zap.String("ip", addr),
		zap.String("subnet_id", subnet.ID),
	)
	return d, nil
}

// PingDevice probes a single registered device once.
func (r *Reconciler) PingDevice(ctx context.Context, deviceID string) (*models.DevicePingResult, error) {
	d, err := r.inv.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.IPAddress == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, d.Name)
	}
	out := r.sweeper.Sweep(ctx, []string{d.IPAddress}, sweep.Options{MaxConcurrency: 1, Timeout: r.cfg.ScanTimeout})
	res := pingResult(*d, out[0])
	return &res, nil
}

// PingDevices probes several registered devices concurrently. Unknown IDs
// and devices without an address are skipped, repeated IDs are reported
// once, and results follow the order of deviceIDs. Devices sharing an
// address share one probe.
func (r *Reconciler) PingDevices(ctx context.Context, deviceIDs []string) ([]models.DevicePingResult, error) {
	devices := []models.Device{}
	addrs := []string{}
	seenID := map[string]bool{}
	seenAddr := map[string]bool{}
	for _, id := range deviceIDs {
		if seenID[id] {
			continue
		}
		seenID[id] = true
		d, err := r.inv.GetDevice(ctx, id)
		if errors.Is(err, ErrDeviceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if d.IPAddress == "" {
			continue
		}
		if !seenAddr[d.IPAddress] {
			seenAddr[d.IPAddress] = true
			addrs = append(addrs, d.IPAddress)
		}
		devices = append(devices, *d)
	}

	results := make([]models.DevicePingResult, 0, len(devices))
	if len(addrs) == 0 {
		return results, nil
	}
	outcomes := r.sweeper.Sweep(ctx, addrs, sweep.Options{
		MaxConcurrency: r.cfg.ScanConcurrency,
		Timeout:        r.cfg.ScanTimeout,
	})
	byAddr := make(map[string]probe.Outcome, len(outcomes))
	for _, o := range outcomes {
		byAddr[o.Address] = o
	}
	for _, d := range devices {
		results = append(results, pingResult(d, byAddr[d.IPAddress]))
	}
	return results, nil
}

func pingResult(d models.Device, o probe.Outcome) models.DevicePingResult {
	return models.DevicePingResult{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		IPAddress:  d.IPAddress,
		Online:     o.Reachable,
		LatencyMs:  o.LatencyMs,
		Error:      string(o.Error),
	}
}

// publish stamps events with the reading they describe, so a scan takes
// exactly two clock readings.
func (r *Reconciler) publish(ctx context.Context, at time.Time, topic string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    moduleName,
		Timestamp: at,
		Payload:   payload,
	})
}
