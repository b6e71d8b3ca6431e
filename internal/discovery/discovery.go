// Package discovery finds Lutron bridges on the local network by
// browsing mDNS.  Bridges advertise _lutron._tcp; the integration
// Telnet port is not advertised and is always 23.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"

	"caseta/util"
)

const (
	// ServiceType is the service bridges advertise.
	ServiceType = "_lutron._tcp"
	// Domain is the mDNS browse domain.
	Domain = "local."

	integrationPort = 23
)

// Bridge is one bridge seen on the network.  Addresses from every
// interface it answered on are merged.
type Bridge struct {
	Instance  string
	Host      string
	Port      int // advertised service port
	Addresses []string
	Text      map[string]string
}

// IntegrationAddr returns host:port for the Telnet integration
// interface, preferring an IPv4 address.
func (b Bridge) IntegrationAddr() string {
	host := strings.TrimSuffix(b.Host, ".")
	for _, a := range b.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			host = a
			break
		}
	}
	if host == "" && len(b.Addresses) > 0 {
		host = b.Addresses[0]
	}
	return util.FormatAddr(host, integrationPort)
}

// Options tune a browse.
type Options struct {
	Timeout   time.Duration
	Interface string // restrict to one network interface
}

// Browse listens for bridges until the timeout elapses or ctx is done
// and returns everything seen, ordered by instance name.
func Browse(ctx context.Context, opts Options, logger *util.Logger) ([]Bridge, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var clientOpts []zeroconf.ClientOption
	if opts.Interface != "" {
		iface, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", opts.Interface, err)
		}
		clientOpts = append(clientOpts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, clientOpts...); err != nil {
			errc <- err
			cancel()
		}
	}()

	logger.Verbose("browsing %s.%s for %s", ServiceType, Domain, opts.Timeout)
	bridges := collect(ctx, entries, removed)

	select {
	case err := <-errc:
		return bridges, fmt.Errorf("mdns browse: %w", err)
	default:
	}
	return bridges, nil
}

// collect aggregates entries by instance until entries is closed or
// ctx is done.
func collect(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry) []Bridge {
	seen := make(map[string]*Bridge)
	var order []string

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return flatten(seen, order)
			}
			b := fromEntry(entry)
			if existing, found := seen[b.Instance]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, b.Addresses)
				continue
			}
			seen[b.Instance] = &b
			order = append(order, b.Instance)

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := seen[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
			}

		case <-ctx.Done():
			return flatten(seen, order)
		}
	}
}

func flatten(seen map[string]*Bridge, order []string) []Bridge {
	out := make([]Bridge, 0, len(order))
	for _, name := range order {
		if b := seen[name]; len(b.Addresses) > 0 || b.Host != "" {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func fromEntry(entry *zeroconf.ServiceEntry) Bridge {
	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		k, v, _ := strings.Cut(kv, "=")
		txt[k] = v
	}
	return Bridge{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: entryAddresses(entry),
		Text:      txt,
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses appends new addresses to existing, skipping duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range add {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	return existing
}

func removeAddresses(addresses, drop []string) []string {
	gone := make(map[string]bool, len(drop))
	for _, a := range drop {
		gone[a] = true
	}
	out := addresses[:0]
	for _, a := range addresses {
		if !gone[a] {
			out = append(out, a)
		}
	}
	return out
}
