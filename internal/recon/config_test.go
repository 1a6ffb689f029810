package recon

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/ipscope/internal/config"
	"github.com/HerbHall/ipscope/internal/probe"
)

func TestLoadConfig_Defaults(t *testing.T) {
	got := loadConfig(config.New(nil))
	want := DefaultConfig()

	if got.ProbeMethod != want.ProbeMethod || got.ScanConcurrency != 20 || got.ScanTimeout != 2*time.Second {
		t.Errorf("loadConfig(empty) = %+v, want defaults", got)
	}
	if loadConfig(nil).MaxScanHosts != want.MaxScanHosts {
		t.Error("loadConfig(nil) should return defaults")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("plugins.recon.probe_method", "tcp")
	v.Set("plugins.recon.tcp_ports", []int{8080})
	v.Set("plugins.recon.scan_concurrency", 64)
	v.Set("plugins.recon.scan_timeout", "500ms")
	v.Set("plugins.recon.scan_rate", 2.5)

	cfg := loadConfig(config.New(v).Sub("plugins.recon"))

	if cfg.ProbeMethod != probe.MethodTCP {
		t.Errorf("ProbeMethod = %q, want tcp", cfg.ProbeMethod)
	}
	if len(cfg.TCPPorts) != 1 || cfg.TCPPorts[0] != 8080 {
		t.Errorf("TCPPorts = %v, want [8080]", cfg.TCPPorts)
	}
	if cfg.ScanConcurrency != 64 || cfg.ScanTimeout != 500*time.Millisecond || cfg.ScanRate != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.MaxScanHosts != DefaultConfig().MaxScanHosts || cfg.PingPath != "ping" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"icmp", func(c *Config) { c.ProbeMethod = probe.MethodICMP }, false},
		{"unknown method", func(c *Config) { c.ProbeMethod = "arp" }, true},
		{"tcp without ports", func(c *Config) { c.ProbeMethod = probe.MethodTCP; c.TCPPorts = nil }, true},
		{"port out of range", func(c *Config) { c.TCPPorts = []int{70000} }, true},
		{"zero concurrency", func(c *Config) { c.ScanConcurrency = 0 }, true},
		{"zero timeout", func(c *Config) { c.ScanTimeout = 0 }, true},
		{"zero rate", func(c *Config) { c.ScanRate = 0 }, true},
		{"zero burst", func(c *Config) { c.ScanBurst = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigMaxScanDuration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   time.Duration
	}{
		// 52 rounds of 2s timeout plus 3s grace.
		{"defaults", func(*Config) {}, 260 * time.Second},
		{"tcp has no grace", func(c *Config) { c.ProbeMethod = probe.MethodTCP }, 104 * time.Second},
		{"icmp backstop grace", func(c *Config) { c.ProbeMethod = probe.MethodICMP }, 260 * time.Second},
		{"partial last round", func(c *Config) { c.MaxScanHosts = 21; c.ProbeMethod = probe.MethodTCP }, 4 * time.Second},
		{"unbounded", func(c *Config) { c.MaxScanHosts = 0 }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if got := cfg.MaxScanDuration(); got != tt.want {
				t.Errorf("MaxScanDuration() = %s, want %s", got, tt.want)
			}
		})
	}
}
