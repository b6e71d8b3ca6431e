package core

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"caseta/internal/bridge"
	"caseta/internal/transport"
)

// QueryTarget names one of the bridge's list queries.
type QueryTarget string

const (
	QueryArea      QueryTarget = "area"
	QueryZone      QueryTarget = "zone"
	QueryDevice    QueryTarget = "device"
	QueryOutput    QueryTarget = "output"
	QueryInventory QueryTarget = "inventory"
)

var queryCommands = map[QueryTarget]string{ //nolint:gochecknoglobals
	QueryArea:   bridge.QueryArea,
	QueryZone:   bridge.QueryZone,
	QueryDevice: bridge.QueryDevice,
	QueryOutput: bridge.QueryOutput,
}

// ParseQueryTarget accepts a target name, singular or plural.
func ParseQueryTarget(s string) (QueryTarget, error) {
	t := QueryTarget(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if t == QueryInventory {
		return t, nil
	}
	if _, ok := queryCommands[t]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown query target %q", s)
}

func queryTargetNames() []string {
	names := []string{string(QueryInventory)}
	for t := range queryCommands {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// QueryMode runs one list query against the bridge and prints the
// records as a table.
type QueryMode struct {
	Session *bridge.Session
	Dialer  transport.Dialer
	Target  QueryTarget
	Out     io.Writer
}

// Run connects, queries and prints.
func (m *QueryMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if err := m.Session.Connect(ctx); err != nil {
		return err
	}
	defer m.Session.Close()

	if m.Target == QueryInventory {
		inv, err := m.Session.Inventory(ctx)
		if err != nil {
			return err
		}
		printInventory(m.Out, inv)
		return nil
	}

	resp, err := m.Session.Query(ctx, queryCommands[m.Target])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(m.Out, 0, 4, 2, ' ', 0)
	switch m.Target {
	case QueryArea:
		fmt.Fprintln(tw, "ID\tNAME")
		for _, a := range bridge.ParseAreas(resp) {
			fmt.Fprintf(tw, "%d\t%s\n", a.ID, a.Name)
		}
	case QueryZone:
		fmt.Fprintln(tw, "ID\tAREA\tNAME")
		for _, z := range bridge.ParseZones(resp) {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", z.ID, z.AreaID, z.Name)
		}
	case QueryOutput:
		fmt.Fprintln(tw, "ID\tZONE\tTYPE")
		for _, o := range bridge.ParseOutputs(resp) {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", o.ID, o.ZoneID, o.Type)
		}
	case QueryDevice:
		fmt.Fprintln(tw, "ID\tTYPE\tNAME")
		for _, d := range bridge.ParseDevices(resp) {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Type, d.Name)
		}
	}
	return tw.Flush()
}

func printInventory(out io.Writer, inv *bridge.Inventory) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tAREA\tNAME\tOUTPUT\tTYPE")
	for _, z := range inv.Zones {
		output := "-"
		if z.OutputID > 0 {
			output = fmt.Sprint(z.OutputID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", z.ID, z.AreaName, z.Name, output, z.OutputType)
	}
	tw.Flush() //nolint:errcheck

	if len(inv.Devices) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DEVICE\tTYPE\tNAME")
		for _, d := range inv.Devices {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Type, d.Name)
		}
		tw.Flush() //nolint:errcheck
	}

	for _, w := range inv.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}
