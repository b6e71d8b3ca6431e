package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"caseta/config"
	"caseta/internal/catalog"
	cerr "caseta/internal/errors"
)

// ListMode prints the zones of an integration report grouped by area.
// Without a report it prints the zone groups from the config file.
type ListMode struct {
	Catalog *catalog.Catalog
	Area    string // only this area when set
	Groups  map[string][]int
	Out     io.Writer
}

// Run prints the listing.  It never touches the network.
func (m *ListMode) Run(_ context.Context) error {
	if m.Catalog == nil {
		return m.listGroups()
	}

	groups := m.Catalog.ByArea()
	if m.Area != "" {
		zones := m.Catalog.Area(m.Area)
		if len(zones) == 0 {
			return &cerr.ConfigError{
				Field:   "area",
				Value:   m.Area,
				Message: "no zones in that area",
				Hint:    "known areas: " + strings.Join(m.Catalog.Areas(), ", "),
			}
		}
		groups = []catalog.Group{{Area: zones[0].Area, Zones: zones}}
	}

	fmt.Fprint(m.Out, "\nLutron Caseta Zones by Area:\n\n")
	for _, g := range groups {
		fmt.Fprintf(m.Out, "Area: %s\n", g.Area)
		fmt.Fprintln(m.Out, strings.Repeat("-", len(g.Area)+6))
		for _, z := range g.Zones {
			fmt.Fprintf(m.Out, "  Zone %2d: %s\n", z.ID, z.Name)
		}
		fmt.Fprintln(m.Out)
	}
	return nil
}

func (m *ListMode) listGroups() error {
	if len(m.Groups) == 0 {
		return &cerr.ConfigError{
			Field:   "report",
			Message: "nothing to list",
			Hint:    "pass --report <integration report> or define groups: in the config file",
		}
	}
	if m.Area != "" {
		return &cerr.ConfigError{
			Field:   "area",
			Value:   m.Area,
			Message: "needs an integration report",
			Hint:    "pass --report <file> or set report: in the config file",
		}
	}

	cfg := config.Config{Groups: m.Groups}
	fmt.Fprint(m.Out, "\nConfigured zone groups:\n\n")
	for _, name := range cfg.GroupList() {
		ids := m.Groups[name]
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(m.Out, "  %-16s %s\n", name, strings.Join(parts, ", "))
	}
	fmt.Fprintln(m.Out)
	return nil
}
