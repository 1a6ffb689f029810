// Package probe performs single, time-bounded liveness checks against one
// IPv4 address. Every variant reports its result as an Outcome value; a
// timeout or an unreachable host is never returned as a Go error, so a sweep
// over thousands of hosts cannot abort because some of them are offline.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrorKind classifies why a probe did not prove liveness.
type ErrorKind string

const (
	ErrorNone    ErrorKind = ""
	ErrorTimeout ErrorKind = "timeout"
	ErrorOther   ErrorKind = "other"
)

// Probe method names accepted by New.
const (
	MethodExec = "exec"
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

const (
	// DefaultTimeout applies when a caller passes a non-positive timeout.
	DefaultTimeout = 2 * time.Second

	// DefaultGrace is added on top of the probe timeout before the probe is
	// forcibly abandoned.
	DefaultGrace = 3 * time.Second
)

// ErrUnknownMethod is returned by New for unsupported probe methods.
var ErrUnknownMethod = errors.New("unknown probe method")

// Outcome is the immutable result of probing one address.
type Outcome struct {
	Address   string    `json:"ip" yaml:"ip"`
	Reachable bool      `json:"online" yaml:"online"`
	LatencyMs *float64  `json:"latency_ms" yaml:"latency_ms,omitempty"`
	Error     ErrorKind `json:"error,omitempty" yaml:"error,omitempty"`

	// Message is a human-readable diagnostic. It is never part of the API.
	Message string `json:"-" yaml:"-"`
}

// Prober checks whether a single address is alive. Implementations issue
// exactly one check per call and never retry.
type Prober interface {
	Probe(ctx context.Context, addr string, timeout time.Duration) Outcome
	Method() string
}

// Config selects and parameterizes a Prober.
type Config struct {
	Method   string
	PingPath string
	Grace    time.Duration
	TCPPorts []int
	Logger   *zap.Logger
}

// New builds the Prober named by cfg.Method.
func New(cfg Config) (Prober, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	switch cfg.Method {
	case "", MethodExec:
		return NewExecProber(cfg.PingPath, grace, logger), nil
	case MethodICMP:
		return NewICMPProber(grace, logger), nil
	case MethodTCP:
		if len(cfg.TCPPorts) == 0 {
			return nil, fmt.Errorf("tcp probe: no ports configured")
		}
		return NewTCPProber(cfg.TCPPorts, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
}

func reachable(addr string, latencyMs *float64) Outcome {
	return Outcome{Address: addr, Reachable: true, LatencyMs: latencyMs}
}

func timedOut(addr, msg string) Outcome {
	return Outcome{Address: addr, Error: ErrorTimeout, Message: msg}
}

func failed(addr string, err error) Outcome {
	return Outcome{Address: addr, Error: ErrorOther, Message: err.Error()}
}

// Cancelled is the outcome recorded for a probe abandoned because its
// caller's context ended.
func Cancelled(addr string) Outcome {
	return Outcome{Address: addr, Error: ErrorOther, Message: "probe cancelled"}
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

func millis(d time.Duration) *float64 {
	ms := float64(d.Microseconds()) / 1000.0
	return &ms
}
