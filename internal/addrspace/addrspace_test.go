package addrspace

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateHosts_Slash30(t *testing.T) {
	got, err := EnumerateHosts("10.0.0.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, got)
}

func TestEnumerateHosts_CountsByPrefix(t *testing.T) {
	for bits := 16; bits <= 32; bits++ {
		t.Run(fmt.Sprintf("/%d", bits), func(t *testing.T) {
			cidr := fmt.Sprintf("172.16.0.0/%d", bits)
			got, err := EnumerateHosts(cidr)
			require.NoError(t, err)

			raw := 1 << (32 - bits)
			want := raw
			if bits <= 30 {
				want = raw - 2
			}
			assert.Len(t, got, want)

			if bits <= 30 {
				info, err := Describe(cidr)
				require.NoError(t, err)
				assert.NotContains(t, got, info.NetworkAddress)
				assert.NotContains(t, got, info.BroadcastAddress)
			}
		})
	}
}

func TestEnumerateHosts_Slash31And32(t *testing.T) {
	got, err := EnumerateHosts("192.0.2.6/31")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.6", "192.0.2.7"}, got)

	got, err = EnumerateHosts("192.0.2.9/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.9"}, got)
}

func TestEnumerateHosts_AscendingAndIdempotent(t *testing.T) {
	first, err := EnumerateHosts("10.1.0.0/22")
	require.NoError(t, err)
	second, err := EnumerateHosts("10.1.0.0/22")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		if Compare(first[i-1], first[i]) >= 0 {
			t.Fatalf("not ascending at %d: %s >= %s", i, first[i-1], first[i])
		}
	}
	// Crosses the .255 -> .0 octet boundary numerically.
	assert.Equal(t, "10.1.0.255", first[254])
	assert.Equal(t, "10.1.1.0", first[255])
}

func TestEnumerateHosts_MasksHostBits(t *testing.T) {
	got, err := EnumerateHosts("192.168.1.77/29")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"192.168.1.73", "192.168.1.74", "192.168.1.75",
		"192.168.1.76", "192.168.1.77", "192.168.1.78",
	}, got)
}

func TestEnumerateHosts_InvalidCIDR(t *testing.T) {
	tests := []string{
		"",
		"not-a-cidr",
		"192.168.1.0",
		"192.168.1.0/33",
		"300.1.1.1/24",
		"2001:db8::/64",
		"192.168.1.0/-1",
	}
	for _, cidr := range tests {
		t.Run(cidr, func(t *testing.T) {
			got, err := EnumerateHosts(cidr)
			require.ErrorIs(t, err, ErrInvalidCIDR)
			assert.Nil(t, got)
		})
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		name string
		addr string
		cidr string
		want bool
	}{
		{"host inside", "192.168.1.10", "192.168.1.0/24", true},
		{"network address", "192.168.1.0", "192.168.1.0/24", true},
		{"broadcast address", "192.168.1.255", "192.168.1.0/24", true},
		{"just below", "192.168.0.255", "192.168.1.0/24", false},
		{"just above", "192.168.2.0", "192.168.1.0/24", false},
		{"whole space", "8.8.8.8", "0.0.0.0/0", true},
		{"single host", "10.0.0.5", "10.0.0.5/32", true},
		{"single host miss", "10.0.0.6", "10.0.0.5/32", false},
		{"mapped v4", "::ffff:192.168.1.10", "192.168.1.0/24", true},
		{"bad address", "192.168.1.300", "192.168.1.0/24", false},
		{"bad cidr", "192.168.1.10", "192.168.1.0/40", false},
		{"v6 address", "2001:db8::1", "192.168.1.0/24", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.addr, tt.cidr))
		})
	}
}

func TestContains_MatchesNumericBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		bits := r.IntN(33)
		base := fromUint32(r.Uint32())
		p := netip.PrefixFrom(base, bits).Masked()
		first, last := bounds(p)

		probe := fromUint32(r.Uint32())
		n := toUint32(probe)
		want := n >= first && n <= last

		if got := Contains(probe.String(), p.String()); got != want {
			t.Fatalf("Contains(%s, %s) = %v, want %v", probe, p, got, want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		cidr       string
		network    string
		broadcast  string
		netmask    string
		prefix     int
		totalHosts int
	}{
		{"192.168.1.0/24", "192.168.1.0", "192.168.1.255", "255.255.255.0", 24, 254},
		{"10.0.0.0/30", "10.0.0.0", "10.0.0.3", "255.255.255.252", 30, 2},
		{"10.0.0.0/31", "10.0.0.0", "10.0.0.1", "255.255.255.254", 31, 2},
		{"10.0.0.7/32", "10.0.0.7", "10.0.0.7", "255.255.255.255", 32, 1},
		{"172.20.5.9/16", "172.20.0.0", "172.20.255.255", "255.255.0.0", 16, 65534},
		{"0.0.0.0/0", "0.0.0.0", "255.255.255.255", "0.0.0.0", 0, 1<<32 - 2},
	}
	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			got, err := Describe(tt.cidr)
			require.NoError(t, err)
			assert.Equal(t, tt.network, got.NetworkAddress)
			assert.Equal(t, tt.broadcast, got.BroadcastAddress)
			assert.Equal(t, tt.netmask, got.Netmask)
			assert.Equal(t, tt.prefix, got.PrefixLength)
			assert.Equal(t, tt.totalHosts, got.TotalHosts)
		})
	}
}

func TestDescribe_Invalid(t *testing.T) {
	_, err := Describe("garbage")
	assert.ErrorIs(t, err, ErrInvalidCIDR)
}

func TestHosts_StopsEarly(t *testing.T) {
	p, err := Parse("10.0.0.0/8")
	require.NoError(t, err)

	var got []string
	for a := range Hosts(p) {
		got = append(got, a.String())
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, got)
}

func TestSortAddresses(t *testing.T) {
	addrs := []string{"10.0.0.10", "bogus", "10.0.0.9", "10.0.0.100", "10.0.0.2", "abc"}
	SortAddresses(addrs)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.9", "10.0.0.10", "10.0.0.100", "abc", "bogus"}, addrs)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "192.168.1.1", Canonical(" 192.168.1.1 "))
	assert.Equal(t, "192.168.1.1", Canonical("::ffff:192.168.1.1"))
	assert.Equal(t, "not-an-ip", Canonical("not-an-ip"))
}

func TestHostRange(t *testing.T) {
	tests := []struct {
		cidr        string
		first, last string
	}{
		{"192.168.1.0/24", "192.168.1.1", "192.168.1.254"},
		{"10.0.0.0/8", "10.0.0.1", "10.255.255.254"},
		{"192.0.2.6/31", "192.0.2.6", "192.0.2.7"},
		{"192.0.2.9/32", "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			p, err := Parse(tt.cidr)
			require.NoError(t, err)
			first, last := HostRange(p)
			assert.Equal(t, tt.first, first.String())
			assert.Equal(t, tt.last, last.String())
		})
	}
}
