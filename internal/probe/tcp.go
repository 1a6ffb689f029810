package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// TCPProber decides liveness with TCP connect attempts. A completed
// handshake or an active refusal (RST) on any configured port proves the
// host is up. It needs no privileges and no output parsing.
type TCPProber struct {
	ports  []int
	dialer net.Dialer
	logger *zap.Logger
}

// NewTCPProber creates a TCP connect prober for the given ports.
func NewTCPProber(ports []int, logger *zap.Logger) *TCPProber {
	return &TCPProber{
		ports:  append([]int(nil), ports...),
		logger: logger,
	}
}

// Method implements Prober.
func (p *TCPProber) Method() string { return MethodTCP }

type dialResult struct {
	alive bool
	err   error
}

// Probe dials every configured port concurrently and reports the first
// sign of life. All dials share one deadline of timeout.
func (p *TCPProber) Probe(ctx context.Context, addr string, timeout time.Duration) Outcome {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil || !ip.Unmap().Is4() {
		return failed(addr, fmt.Errorf("invalid IPv4 address %q", addr))
	}
	ip = ip.Unmap()
	timeout = effectiveTimeout(timeout)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	results := make(chan dialResult, len(p.ports))
	for _, port := range p.ports {
		go func(port uint16) {
			conn, err := p.dialer.DialContext(dialCtx, "tcp", netip.AddrPortFrom(ip, port).String())
			if err == nil {
				conn.Close()
				results <- dialResult{alive: true}
				return
			}
			results <- dialResult{alive: errors.Is(err, syscall.ECONNREFUSED), err: err}
		}(uint16(port))
	}

	var lastErr error
	for range p.ports {
		r := <-results
		if r.alive {
			return reachable(addr, millis(time.Since(start)))
		}
		lastErr = r.err
	}

	if ctx.Err() != nil {
		return Cancelled(addr)
	}
	var netErr net.Error
	if errors.Is(dialCtx.Err(), context.DeadlineExceeded) || (errors.As(lastErr, &netErr) && netErr.Timeout()) {
		return timedOut(addr, fmt.Sprintf("no TCP answer within %s", timeout))
	}
	if lastErr == nil {
		lastErr = errors.New("no ports to probe")
	}
	p.logger.Debug("tcp probe failed", zap.String("addr", addr), zap.Error(lastErr))
	return failed(addr, lastErr)
}
