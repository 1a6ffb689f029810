package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/probe"
	"github.com/HerbHall/ipscope/internal/recon"
	"github.com/HerbHall/ipscope/internal/sweep"
)

type scanHost struct {
	IP        string   `yaml:"ip" json:"ip"`
	Online    bool     `yaml:"online" json:"online"`
	LatencyMs *float64 `yaml:"latency_ms,omitempty" json:"latency_ms,omitempty"`
	Error     string   `yaml:"error,omitempty" json:"error,omitempty"`
}

type scanOutput struct {
	CIDR    string     `yaml:"cidr" json:"cidr"`
	Method  string     `yaml:"method" json:"method"`
	Scanned int        `yaml:"scanned" json:"scanned"`
	Online  int        `yaml:"online" json:"online"`
	Elapsed string     `yaml:"elapsed" json:"elapsed"`
	Hosts   []scanHost `yaml:"hosts" json:"hosts"`
}

func runScan(args []string, out io.Writer) error {
	defaults := recon.DefaultConfig()

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	method := fs.String("method", defaults.ProbeMethod, "probe method: exec, icmp or tcp")
	pingPath := fs.String("ping", defaults.PingPath, "ping binary for the exec method")
	ports := fs.String("ports", joinPorts(defaults.TCPPorts), "comma-separated ports for the tcp method")
	concurrency := fs.Int("concurrency", defaults.ScanConcurrency, "maximum probes in flight")
	timeout := fs.Duration("timeout", defaults.ScanTimeout, "per-probe timeout")
	maxHosts := fs.Int("max-hosts", defaults.MaxScanHosts, "refuse blocks with more usable hosts (0 = no limit)")
	format := fs.String("o", "yaml", "output format: yaml, json or csv")
	all := fs.Bool("all", false, "include unreachable hosts")
	verbose := fs.Bool("v", false, "log probe activity to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one CIDR argument")
	}
	cidr := fs.Arg(0)

	p, err := addrspace.Parse(cidr)
	if err != nil {
		return err
	}
	if n := addrspace.UsableHostCount(p); *maxHosts > 0 && n > uint64(*maxHosts) {
		return fmt.Errorf("%w: %s has %d hosts, limit is %d (see -max-hosts)", recon.ErrScanTooLarge, cidr, n, *maxHosts)
	}
	tcpPorts, err := parsePorts(*ports)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	prober, err := probe.New(probe.Config{
		Method:   *method,
		PingPath: *pingPath,
		TCPPorts: tcpPorts,
		Logger:   logger.Named("probe"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hosts, err := addrspace.EnumerateHosts(cidr)
	if err != nil {
		return err
	}
	start := time.Now()
	outcomes := sweep.New(prober, logger.Named("sweep"), nil).
		Sweep(ctx, hosts, sweep.Options{MaxConcurrency: *concurrency, Timeout: *timeout})
	elapsed := time.Since(start)

	if *format == "csv" {
		report := recon.BuildReport("", p.String(), outcomes, nil)
		return recon.WriteReportCSV(out, report)
	}

	res := scanOutput{
		CIDR:    p.String(),
		Method:  prober.Method(),
		Scanned: len(outcomes),
		Online:  sweep.CountReachable(outcomes),
		Elapsed: elapsed.Round(time.Millisecond).String(),
		Hosts:   []scanHost{},
	}
	for _, o := range outcomes {
		if !o.Reachable && !*all {
			continue
		}
		res.Hosts = append(res.Hosts, scanHost{
			IP:        o.Address,
			Online:    o.Reachable,
			LatencyMs: o.LatencyMs,
			Error:     string(o.Error),
		})
	}
	return writeOutput(out, *format, res)
}

func parsePorts(s string) ([]int, error) {
	var ports []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid port %q", f)
		}
		ports = append(ports, n)
	}
	return ports, nil
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}
