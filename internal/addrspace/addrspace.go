// Package addrspace implements IPv4 address-space arithmetic for subnets
// expressed in CIDR notation: usable host enumeration, membership tests and
// block metadata. Everything here is pure and allocation-bounded by the size
// of the block being enumerated.
package addrspace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"slices"
	"strings"

	"github.com/HerbHall/ipscope/pkg/models"
)

// ErrInvalidCIDR is returned for CIDR strings that do not parse to
// an IPv4 network. An empty enumeration is never used to signal bad input.
var ErrInvalidCIDR = errors.New("invalid CIDR")

// Parse parses an IPv4 CIDR string. Host bits are masked off, so
// "192.168.1.7/24" yields 192.168.1.0/24.
func Parse(cidr string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w %q: %v", ErrInvalidCIDR, cidr, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%w %q: only IPv4 networks are supported", ErrInvalidCIDR, cidr)
	}
	return p.Masked(), nil
}

// AddressCount returns the raw number of addresses in the block.
func AddressCount(p netip.Prefix) uint64 {
	return uint64(1) << (32 - p.Bits())
}

// UsableHostCount returns the number of assignable host addresses. Blocks
// of /30 and larger lose their network and broadcast addresses; /31 and /32
// are fully usable.
func UsableHostCount(p netip.Prefix) uint64 {
	n := AddressCount(p)
	if p.Bits() <= 30 {
		return n - 2
	}
	return n
}

// HostRange returns the lowest and highest usable host addresses of p.
func HostRange(p netip.Prefix) (first, last netip.Addr) {
	lo, hi := hostBounds(p)
	return fromUint32(lo), fromUint32(hi)
}

// Hosts yields the usable host addresses of p in ascending order.
func Hosts(p netip.Prefix) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		first, last := hostBounds(p)
		for n := uint64(first); n <= uint64(last); n++ {
			if !yield(fromUint32(uint32(n))) {
				return
			}
		}
	}
}

// EnumerateHosts returns every usable host address of cidr as a string, in
// ascending numeric order. The result is recomputed on every call.
func EnumerateHosts(cidr string) ([]string, error) {
	p, err := Parse(cidr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, UsableHostCount(p))
	for a := range Hosts(p) {
		out = append(out, a.String())
	}
	return out, nil
}

// Contains reports whether addr lies inside the block described by cidr,
// network and broadcast addresses included. Malformed input for either
// argument yields false.
func Contains(addr, cidr string) bool {
	p, err := Parse(cidr)
	if err != nil {
		return false
	}
	a, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	a = a.Unmap()
	if !a.Is4() {
		return false
	}
	return p.Contains(a)
}

// Describe returns the network, broadcast, netmask, prefix length and usable
// host count of cidr.
func Describe(cidr string) (models.SubnetInfo, error) {
	p, err := Parse(cidr)
	if err != nil {
		return models.SubnetInfo{}, err
	}
	first, last := bounds(p)
	return models.SubnetInfo{
		CIDR:             p.String(),
		NetworkAddress:   fromUint32(first).String(),
		BroadcastAddress: fromUint32(last).String(),
		Netmask:          fromUint32(mask(p.Bits())).String(),
		PrefixLength:     p.Bits(),
		TotalHosts:       int(UsableHostCount(p)),
	}, nil
}

// Canonical returns the canonical dotted form of addr, or the trimmed input
// when it does not parse.
func Canonical(addr string) string {
	s := strings.TrimSpace(addr)
	a, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return a.Unmap().String()
}

// Compare orders address strings numerically. Unparsable strings sort after
// every valid address and lexically among themselves.
func Compare(a, b string) int {
	pa, errA := netip.ParseAddr(strings.TrimSpace(a))
	pb, errB := netip.ParseAddr(strings.TrimSpace(b))
	switch {
	case errA == nil && errB == nil:
		return pa.Unmap().Compare(pb.Unmap())
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortAddresses sorts addrs in place in ascending numeric order. Equal
// addresses keep their relative order.
func SortAddresses(addrs []string) {
	slices.SortStableFunc(addrs, Compare)
}

func bounds(p netip.Prefix) (first, last uint32) {
	first = toUint32(p.Addr())
	last = uint32(uint64(first) + AddressCount(p) - 1)
	return first, last
}

func hostBounds(p netip.Prefix) (first, last uint32) {
	first, last = bounds(p)
	if p.Bits() <= 30 {
		first++
		last--
	}
	return first, last
}

func mask(bits int) uint32 {
	if bits == 0 {
		return 0
	}
	return ^uint32(0) << (32 - bits)
}

func toUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(n uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b)
}
