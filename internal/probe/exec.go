package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Latency formats printed by the platform ping utilities:
//
//	Linux/macOS: 64 bytes from 192.168.1.1: icmp_seq=1 ttl=64 time=0.512 ms
//	Windows:     Reply from 192.168.1.1: bytes=32 time=3ms TTL=64
//	             Respuesta desde 192.168.1.1: bytes=32 tiempo<1ms TTL=64
var (
	unixLatency    = regexp.MustCompile(`time[=<]\s*(\d+(?:\.\d+)?)\s*ms`)
	windowsLatency = regexp.MustCompile(`(?i)(?:time|tiempo)[=<]\s*(\d+(?:[.,]\d+)?)\s*ms`)
	windowsTTL     = regexp.MustCompile(`(?i)\bttl=\d+`)
)

// commandRunner runs name with args and returns its stdout and exit code.
// err is non-nil only when the process could not be run to completion.
type commandRunner func(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err == nil {
		return out, 0, nil
	}
	if ctx.Err() != nil {
		return out, -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	return nil, -1, err
}

// ExecProber probes by launching the platform ping utility once per address.
type ExecProber struct {
	path   string
	goos   string
	grace  time.Duration
	run    commandRunner
	logger *zap.Logger
}

// NewExecProber creates an ExecProber. path defaults to "ping" on $PATH.
func NewExecProber(path string, grace time.Duration, logger *zap.Logger) *ExecProber {
	if path == "" {
		path = "ping"
	}
	return &ExecProber{
		path:   path,
		goos:   runtime.GOOS,
		grace:  grace,
		run:    runCommand,
		logger: logger,
	}
}

// Method implements Prober.
func (p *ExecProber) Method() string { return MethodExec }

// Probe sends one echo request through the ping utility. The process is
// killed after timeout plus the grace margin.
func (p *ExecProber) Probe(ctx context.Context, addr string, timeout time.Duration) Outcome {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil || !ip.Unmap().Is4() {
		return failed(addr, fmt.Errorf("invalid IPv4 address %q", addr))
	}
	timeout = effectiveTimeout(timeout)

	probeCtx, cancel := context.WithTimeout(ctx, timeout+p.grace)
	defer cancel()

	out, code, runErr := p.run(probeCtx, p.path, p.args(ip.Unmap().String(), timeout)...)

	switch {
	case ctx.Err() != nil:
		return Cancelled(addr)
	case errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		return timedOut(addr, fmt.Sprintf("no answer within %s", timeout+p.grace))
	case runErr != nil:
		p.logger.Debug("ping launch failed", zap.String("addr", addr), zap.Error(runErr))
		return failed(addr, fmt.Errorf("run %s: %w", p.path, runErr))
	case code == p.noReplyExitCode():
		return timedOut(addr, "no reply")
	case code != 0:
		return failed(addr, fmt.Errorf("%s exited with status %d", p.path, code))
	}

	// Windows ping exits 0 when a router answers "destination host
	// unreachable" on the target's behalf; only a reply carrying a TTL
	// comes from the target itself.
	if p.goos == "windows" && !windowsTTL.Match(out) {
		return failed(addr, errors.New("destination host unreachable"))
	}

	return reachable(addr, parseLatency(p.goos, out))
}

// args builds the single-echo argument list for the current platform.
func (p *ExecProber) args(addr string, timeout time.Duration) []string {
	secs := strconv.Itoa(int(math.Max(1, math.Ceil(timeout.Seconds()))))
	switch p.goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), addr}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", "1", "-t", secs, addr}
	default:
		return []string{"-c", "1", "-W", secs, addr}
	}
}

// noReplyExitCode is the status ping uses for "sent, but nothing came back".
func (p *ExecProber) noReplyExitCode() int {
	switch p.goos {
	case "darwin", "freebsd", "openbsd", "netbsd":
		return 2
	default:
		return 1
	}
}

// parseLatency extracts the round-trip time in milliseconds, or nil when the
// output carries none.
func parseLatency(goos string, out []byte) *float64 {
	re := unixLatency
	if goos == "windows" {
		re = windowsLatency
	}
	m := re.FindSubmatch(out)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(string(m[1]), ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &v
}
