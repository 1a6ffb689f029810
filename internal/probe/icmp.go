package probe

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// ICMPProber sends a single ICMP echo request using pro-bing. On Linux it
// uses unprivileged datagram sockets (net.ipv4.ping_group_range must allow
// the process group); on Windows it needs a privileged raw socket.
type ICMPProber struct {
	grace      time.Duration
	privileged bool
	logger     *zap.Logger
}

// NewICMPProber creates an ICMP prober.
func NewICMPProber(grace time.Duration, logger *zap.Logger) *ICMPProber {
	return &ICMPProber{
		grace:      grace,
		privileged: runtime.GOOS == "windows",
		logger:     logger,
	}
}

// Method implements Prober.
func (c *ICMPProber) Method() string { return MethodICMP }

// Probe pings the target once and returns the outcome.
func (c *ICMPProber) Probe(ctx context.Context, addr string, timeout time.Duration) Outcome {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil || !ip.Unmap().Is4() {
		return failed(addr, fmt.Errorf("invalid IPv4 address %q", addr))
	}
	timeout = effectiveTimeout(timeout)

	pinger, err := probing.NewPinger(ip.Unmap().String())
	if err != nil {
		return failed(addr, fmt.Errorf("create pinger: %w", err))
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(c.privileged)

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	backstop := time.NewTimer(timeout + c.grace)
	defer backstop.Stop()

	select {
	case runErr := <-done:
		if runErr != nil {
			c.logger.Debug("icmp probe failed", zap.String("addr", addr), zap.Error(runErr))
			return failed(addr, runErr)
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return timedOut(addr, "no echo reply")
		}
		return reachable(addr, millis(stats.AvgRtt))

	case <-backstop.C:
		pinger.Stop()
		return timedOut(addr, fmt.Sprintf("pinger did not finish within %s", timeout+c.grace))

	case <-ctx.Done():
		pinger.Stop()
		return Cancelled(addr)
	}
}
