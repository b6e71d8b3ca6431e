package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance string, ips ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, Domain)
	e.HostName = "Lutron-" + instance + ".local."
	e.Port = 4548
	e.Text = []string{"MACADDR=00:11:22:33:44:55", "CODEVER=08.25.17f000"}
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestFromEntry(t *testing.T) {
	b := fromEntry(entry("lutron-0123abcd", "192.168.49.91", "fe80::1"))

	assert.Equal(t, "lutron-0123abcd", b.Instance)
	assert.Equal(t, 4548, b.Port)
	assert.Equal(t, []string{"192.168.49.91", "fe80::1"}, b.Addresses)
	assert.Equal(t, "00:11:22:33:44:55", b.Text["MACADDR"])
	assert.Equal(t, "192.168.49.91:23", b.IntegrationAddr())
}

func TestIntegrationAddr(t *testing.T) {
	tests := []struct {
		name string
		b    Bridge
		want string
	}{
		{"ipv4 preferred", Bridge{Host: "x.local.", Addresses: []string{"fe80::1", "10.0.0.5"}}, "10.0.0.5:23"},
		{"hostname fallback", Bridge{Host: "x.local."}, "x.local:23"},
		{"ipv6 only", Bridge{Addresses: []string{"fe80::1"}}, "[fe80::1]:23"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.IntegrationAddr())
		})
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRemoveAddresses(t *testing.T) {
	got := removeAddresses([]string{"a", "b", "c"}, []string{"b"})
	assert.Equal(t, []string{"a", "c"}, got)
	assert.Empty(t, removeAddresses([]string{"a"}, []string{"a"}))
}

func TestCollect_AggregatesByInstance(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Bridge)

	go func() { done <- collect(context.Background(), entries, removed) }()

	entries <- entry("zeta", "10.0.0.9")
	entries <- entry("alpha", "10.0.0.1")
	entries <- entry("alpha", "fe80::1")
	entries <- entry("gone", "10.0.0.7")
	removed <- entry("gone", "10.0.0.7")
	close(entries)

	var bridges []Bridge
	select {
	case bridges = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collect did not return after entries closed")
	}

	require.Len(t, bridges, 3)
	assert.Equal(t, "alpha", bridges[0].Instance)
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, bridges[0].Addresses)
	// "gone" keeps its hostname so it is still listed, without addresses.
	assert.Equal(t, "gone", bridges[1].Instance)
	assert.Empty(t, bridges[1].Addresses)
	assert.Equal(t, "zeta", bridges[2].Instance)
}

func TestCollect_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	assert.Empty(t, collect(ctx, entries, removed))
}
