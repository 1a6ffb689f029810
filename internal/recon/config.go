package recon

import (
	"fmt"
	"time"

	"github.com/HerbHall/ipscope/internal/probe"
	"github.com/HerbHall/ipscope/internal/sweep"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

// Config holds the recon module settings (plugins.recon.*).
type Config struct {
	ProbeMethod     string        `mapstructure:"probe_method"`
	PingPath        string        `mapstructure:"ping_path"`
	ProbeGrace      time.Duration `mapstructure:"probe_grace"`
	TCPPorts        []int         `mapstructure:"tcp_ports"`
	ScanConcurrency int           `mapstructure:"scan_concurrency"`
	ScanTimeout     time.Duration `mapstructure:"scan_timeout"`
	MaxScanHosts    int           `mapstructure:"max_scan_hosts"`
	ScanRate        float64       `mapstructure:"scan_rate"`  // Scan requests per second.
	ScanBurst       int           `mapstructure:"scan_burst"` // Scan requests allowed back to back.
}

// DefaultConfig returns the recon defaults.
func DefaultConfig() Config {
	return Config{
		ProbeMethod:     probe.MethodExec,
		PingPath:        "ping",
		ProbeGrace:      probe.DefaultGrace,
		TCPPorts:        []int{22, 80, 443, 445, 3389},
		ScanConcurrency: sweep.DefaultMaxConcurrency,
		ScanTimeout:     probe.DefaultTimeout,
		MaxScanHosts:    1024,
		ScanRate:        0.5,
		ScanBurst:       2,
	}
}

// loadConfig overlays the keys present in c onto the defaults.
func loadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.IsSet("probe_method") {
		cfg.ProbeMethod = c.GetString("probe_method")
	}
	if c.IsSet("ping_path") {
		cfg.PingPath = c.GetString("ping_path")
	}
	if c.IsSet("probe_grace") {
		cfg.ProbeGrace = c.GetDuration("probe_grace")
	}
	if c.IsSet("tcp_ports") {
		cfg.TCPPorts = c.GetIntSlice("tcp_ports")
	}
	if c.IsSet("scan_concurrency") {
		cfg.ScanConcurrency = c.GetInt("scan_concurrency")
	}
	if c.IsSet("scan_timeout") {
		cfg.ScanTimeout = c.GetDuration("scan_timeout")
	}
	if c.IsSet("max_scan_hosts") {
		cfg.MaxScanHosts = c.GetInt("max_scan_hosts")
	}
	if c.IsSet("scan_rate") {
		cfg.ScanRate = c.GetFloat64("scan_rate")
	}
	if c.IsSet("scan_burst") {
		cfg.ScanBurst = c.GetInt("scan_burst")
	}
	return cfg
}

// Validate rejects settings the module cannot run with.
func (c Config) Validate() error {
	switch c.ProbeMethod {
	case probe.MethodExec, probe.MethodICMP, probe.MethodTCP:
	default:
		return fmt.Errorf("recon: %w: %q", probe.ErrUnknownMethod, c.ProbeMethod)
	}
	if c.ProbeMethod == probe.MethodTCP && len(c.TCPPorts) == 0 {
		return fmt.Errorf("recon: tcp probe method needs at least one port")
	}
	for _, p := range c.TCPPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("recon: tcp port %d out of range", p)
		}
	}
	if c.ScanConcurrency < 1 {
		return fmt.Errorf("recon: scan_concurrency must be positive, got %d", c.ScanConcurrency)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("recon: scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.ScanRate <= 0 || c.ScanBurst < 1 {
		return fmt.Errorf("recon: scan_rate and scan_burst must be positive")
	}
	return nil
}

// MaxScanDuration is the worst-case wall-clock time of a scan of
// MaxScanHosts hosts: one round of ScanTimeout (plus ProbeGrace, except for
// the tcp method) per ScanConcurrency hosts. It is zero when scans are unbounded.
// The HTTP write timeout must exceed it or large scan responses are cut off.
func (c Config) MaxScanDuration() time.Duration {
	if c.MaxScanHosts <= 0 || c.ScanConcurrency <= 0 {
		return 0
	}
	per := c.ScanTimeout
	if c.ProbeMethod != probe.MethodTCP {
		per += c.ProbeGrace
	}
	rounds := (c.MaxScanHosts + c.ScanConcurrency - 1) / c.ScanConcurrency
	return time.Duration(rounds) * per
}
