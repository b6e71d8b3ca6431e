// Package catalog reads the integration report exported by the Lutron
// app and answers zone and area lookups.  A Catalog is read-only after
// Load and safe for concurrent use.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// UnknownArea names zones whose area is not in the report.
const UnknownArea = "Unknown Area"

// Zone is one controllable load.
type Zone struct {
	ID   int
	Name string
	// Area is the area name, UnknownArea when the report references an
	// area it does not define, or "" when the zone has no area at all.
	Area string
}

// Group is an area and its zones.
type Group struct {
	Area  string
	Zones []Zone
}

// report mirrors the parts of the integration report we use.
type report struct {
	Areas []struct {
		Href string `json:"href"`
		Name string `json:"Name"`
	} `json:"Areas"`
	Zones []struct {
		Href string `json:"href"`
		ID   flexInt `json:"ID"`
		Name string  `json:"Name"`
		Area struct {
			Href string `json:"href"`
		} `json:"Area"`
	} `json:"Zones"`
}

// flexInt accepts 12 as well as "12".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("zone id %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// Catalog maps zone IDs to names and areas.
type Catalog struct {
	zones map[int]Zone
	areas []string
}

// Parse builds a catalog from report bytes.  Comments and trailing
// commas are tolerated so hand-edited reports still load.  Zones
// without a usable ID are skipped.
func Parse(data []byte) (*Catalog, error) {
	var r report
	if err := json.Unmarshal(jsonc.ToJSON(data), &r); err != nil {
		return nil, fmt.Errorf("parsing integration report: %w", err)
	}

	areaByHref := make(map[string]string, len(r.Areas))
	c := &Catalog{zones: make(map[int]Zone, len(r.Zones))}
	for _, a := range r.Areas {
		areaByHref[a.Href] = a.Name
		c.areas = append(c.areas, a.Name)
	}
	sort.Strings(c.areas)

	for _, z := range r.Zones {
		if z.ID <= 0 {
			continue
		}
		zone := Zone{ID: int(z.ID), Name: z.Name}
		if zone.Name == "" {
			zone.Name = "Unknown"
		}
		if href := z.Area.Href; href != "" {
			if name, ok := areaByHref[href]; ok {
				zone.Area = name
			} else {
				zone.Area = UnknownArea
			}
		}
		c.zones[zone.ID] = zone
	}
	return c, nil
}

// Load reads and parses the report at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading integration report: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Len returns the number of zones.
func (c *Catalog) Len() int { return len(c.zones) }

// Lookup returns the zone with the given ID.
func (c *Catalog) Lookup(id int) (Zone, bool) {
	z, ok := c.zones[id]
	return z, ok
}

// Zones returns every zone ordered by ID.
func (c *Catalog) Zones() []Zone {
	out := make([]Zone, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Areas returns the area names defined by the report, sorted.
func (c *Catalog) Areas() []string {
	return append([]string(nil), c.areas...)
}

// ByArea groups zones by area name, areas sorted by name and zones by
// ID.  Zones with no area are left out.
func (c *Catalog) ByArea() []Group {
	grouped := make(map[string][]Zone)
	for _, z := range c.Zones() {
		if z.Area == "" {
			continue
		}
		grouped[z.Area] = append(grouped[z.Area], z)
	}
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Group, 0, len(names))
	for _, name := range names {
		out = append(out, Group{Area: name, Zones: grouped[name]})
	}
	return out
}

// Area returns the zones in the named area, matched
// case-insensitively, ordered by ID.
func (c *Catalog) Area(name string) []Zone {
	var out []Zone
	for _, z := range c.Zones() {
		if z.Area != "" && strings.EqualFold(z.Area, name) {
			out = append(out, z)
		}
	}
	return out
}

// FindByName returns zones whose name contains substr,
// case-insensitively, ordered by ID.
func (c *Catalog) FindByName(substr string) []Zone {
	substr = strings.ToLower(substr)
	var out []Zone
	for _, z := range c.Zones() {
		if strings.Contains(strings.ToLower(z.Name), substr) {
			out = append(out, z)
		}
	}
	return out
}

// IDs returns the IDs of zones, preserving order.
func IDs(zones []Zone) []int {
	out := make([]int, len(zones))
	for i, z := range zones {
		out[i] = z.ID
	}
	return out
}
