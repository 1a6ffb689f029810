package main

import (
	"errors"
	"flag"
	"io"

	"github.com/HerbHall/ipscope/internal/addrspace"
)

type calcOutput struct {
	CIDR             string `yaml:"cidr" json:"cidr"`
	NetworkAddress   string `yaml:"network_address" json:"network_address"`
	BroadcastAddress string `yaml:"broadcast_address" json:"broadcast_address"`
	Netmask          string `yaml:"netmask" json:"netmask"`
	PrefixLength     int    `yaml:"prefix_length" json:"prefix_length"`
	TotalHosts       int    `yaml:"total_hosts" json:"total_hosts"`
	FirstHost        string `yaml:"first_host,omitempty" json:"first_host,omitempty"`
	LastHost         string `yaml:"last_host,omitempty" json:"last_host,omitempty"`
}

func runCalc(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	format := fs.String("o", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one CIDR argument")
	}

	info, err := addrspace.Describe(fs.Arg(0))
	if err != nil {
		return err
	}
	res := calcOutput{
		CIDR:             info.CIDR,
		NetworkAddress:   info.NetworkAddress,
		BroadcastAddress: info.BroadcastAddress,
		Netmask:          info.Netmask,
		PrefixLength:     info.PrefixLength,
		TotalHosts:       info.TotalHosts,
	}
	if p, err := addrspace.Parse(info.CIDR); err == nil {
		first, last := addrspace.HostRange(p)
		res.FirstHost, res.LastHost = first.String(), last.String()
	}
	return writeOutput(out, *format, res)
}
