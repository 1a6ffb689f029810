// Package sweep probes many addresses concurrently through a bounded worker
// pool and returns the outcomes in ascending numeric address order.
package sweep

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/metrics"
	"github.com/HerbHall/ipscope/internal/probe"
)

// DefaultMaxConcurrency bounds the pool when Options leaves it unset.
const DefaultMaxConcurrency = 20

// Options tunes a single sweep.
type Options struct {
	MaxConcurrency int
	Timeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = probe.DefaultTimeout
	}
	return o
}

// Orchestrator fans probes out over a prober. It holds no per-sweep state,
// so one instance may run any number of sweeps concurrently.
type Orchestrator struct {
	prober  probe.Prober
	logger  *zap.Logger
	metrics *metrics.Sweep
}

// New creates an Orchestrator. A nil m disables metric registration.
func New(prober probe.Prober, logger *zap.Logger, m *metrics.Sweep) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m, _ = metrics.NewSweep(nil)
	}
	return &Orchestrator{prober: prober, logger: logger, metrics: m}
}

// Method reports the probe method used by this orchestrator.
func (o *Orchestrator) Method() string { return o.prober.Method() }

// Sweep probes every address in addrs and blocks until all probes have
// finished. The result has exactly one outcome per input address, sorted by
// ascending numeric address; duplicates keep their input order.
//
// Cancelling ctx stops new probes from starting. Addresses not yet probed
// are reported as failed with ErrorOther, so the result is still complete.
func (o *Orchestrator) Sweep(ctx context.Context, addrs []string, opts Options) []probe.Outcome {
	opts = opts.withDefaults()
	results := make([]probe.Outcome, len(addrs))
	if len(addrs) == 0 {
		return results
	}

	start := time.Now()
	method := o.prober.Method()
	o.logger.Debug("sweep started",
		zap.Int("hosts", len(addrs)),
		zap.Int("concurrency", opts.MaxConcurrency),
		zap.Duration("timeout", opts.Timeout),
		zap.String("method", method),
	)

	var g errgroup.Group
	g.SetLimit(opts.MaxConcurrency)
	for i, addr := range addrs {
		if ctx.Err() != nil {
			results[i] = skipped(addr)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = skipped(addr)
				return nil
			}
			o.metrics.InFlight.Inc()
			out := o.prober.Probe(ctx, addr, opts.Timeout)
			o.metrics.InFlight.Dec()
			// Outcomes always carry the caller's spelling of the address.
			out.Address = addr
			results[i] = out
			o.metrics.ObserveProbe(method, resultLabel(out), out.LatencyMs)
			return nil
		})
	}
	// Workers never return errors; Wait is purely the join barrier.
	_ = g.Wait()

	slices.SortStableFunc(results, func(a, b probe.Outcome) int {
		return addrspace.Compare(a.Address, b.Address)
	})

	elapsed := time.Since(start)
	o.metrics.ObserveSweep(method, elapsed)
	o.logger.Debug("sweep completed",
		zap.Int("hosts", len(addrs)),
		zap.Int("online", CountReachable(results)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return results
}

// CountReachable returns how many outcomes proved liveness.
func CountReachable(outcomes []probe.Outcome) int {
	n := 0
	for i := range outcomes {
		if outcomes[i].Reachable {
			n++
		}
	}
	return n
}

func skipped(addr string) probe.Outcome {
	return probe.Outcome{Address: addr, Error: probe.ErrorOther, Message: "sweep cancelled"}
}

func resultLabel(o probe.Outcome) string {
	switch {
	case o.Reachable:
		return metrics.ResultOnline
	case o.Error == probe.ErrorTimeout:
		return metrics.ResultTimeout
	default:
		return metrics.ResultOther
	}
}
