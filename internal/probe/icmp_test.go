package probe

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ICMPProber.Probe needs ICMP socket permissions, so only the parts that do
// not touch the network are unit tested; the loopback test skips when the
// environment forbids unprivileged ICMP.

func TestNewICMPProber(t *testing.T) {
	p := NewICMPProber(2*time.Second, zap.NewNop())
	if p == nil {
		t.Fatal("NewICMPProber() returned nil")
	}
	if p.grace != 2*time.Second {
		t.Errorf("grace = %v, want %v", p.grace, 2*time.Second)
	}
	if p.Method() != MethodICMP {
		t.Errorf("Method() = %q, want %q", p.Method(), MethodICMP)
	}
}

func TestICMPProber_InterfaceCompliance(t *testing.T) {
	var _ Prober = (*ICMPProber)(nil)
}

func TestICMPProber_InvalidAddress(t *testing.T) {
	p := NewICMPProber(time.Second, zap.NewNop())

	got := p.Probe(context.Background(), "not-an-ip", time.Second)
	if got.Reachable {
		t.Error("Reachable = true, want false")
	}
	if got.Error != ErrorOther {
		t.Errorf("Error = %q, want %q", got.Error, ErrorOther)
	}
}

func TestICMPProber_Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("sends a real ICMP echo")
	}
	p := NewICMPProber(time.Second, zap.NewNop())

	got := p.Probe(context.Background(), "127.0.0.1", time.Second)
	if got.Error == ErrorOther {
		t.Skipf("ICMP not permitted here: %s", got.Message)
	}
	if !got.Reachable {
		t.Fatalf("loopback unreachable: %+v", got)
	}
	if got.LatencyMs == nil {
		t.Error("LatencyMs = nil, want a value for a reachable host")
	}
}
