package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"caseta/internal/discovery"
	"caseta/util"
)

// BrowseFunc finds bridges on the network.
type BrowseFunc func(ctx context.Context, opts discovery.Options, logger *util.Logger) ([]discovery.Bridge, error)

// DiscoverMode lists bridges advertising themselves over mDNS.
type DiscoverMode struct {
	Options discovery.Options
	Browse  BrowseFunc
	Logger  *util.Logger
	Out     io.Writer
}

// Run browses and prints one row per bridge.
func (m *DiscoverMode) Run(ctx context.Context) error {
	bridges, err := m.Browse(ctx, m.Options, m.Logger)
	if err != nil {
		return err
	}
	if len(bridges) == 0 {
		m.Logger.Info("no bridges found; the bridge and this host must share a LAN segment")
		return nil
	}

	tw := tabwriter.NewWriter(m.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tINTEGRATION\tADDRESSES")
	for _, b := range bridges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Instance, b.IntegrationAddr(), strings.Join(b.Addresses, ", "))
	}
	return tw.Flush()
}
