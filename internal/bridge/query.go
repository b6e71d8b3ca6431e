package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	cerr "caseta/internal/errors"
)

// Area is a named room reported by ?AREA.
type Area struct {
	ID   int
	Name string
}

// Zone is an addressable load reported by ?ZONE, joined with its area
// and output when an inventory is taken.
type Zone struct {
	ID         int
	AreaID     int
	Name       string
	AreaName   string
	OutputID   int
	OutputType string
}

// Output is a controllable output reported by ?OUTPUT.
type Output struct {
	ID     int
	ZoneID int
	Type   string
}

// Device is a keypad, repeater or other device reported by ?DEVICE.
type Device struct {
	ID   int
	Name string
	Type string
}

// Inventory is the joined result of the four list queries.
type Inventory struct {
	Areas   []Area
	Zones   []Zone
	Outputs []Output
	Devices []Device
	// Warnings holds bridge errors for queries the bridge rejected.
	// Caseta bridges answer some list queries with ~ERROR.
	Warnings []string
}

// records returns the comma-separated fields of every line in response
// that starts with prefix, e.g. "~ZONE".
func records(response, prefix string) [][]string {
	var out [][]string
	for _, line := range splitLines(response) {
		if !strings.HasPrefix(line, prefix+",") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		out = append(out, fields[1:])
	}
	return out
}

// field returns fields[i] or def when absent.
func field(fields []string, i int, def string) string {
	if i < len(fields) && fields[i] != "" {
		return fields[i]
	}
	return def
}

// ParseAreas parses "~AREA,<id>,<name>" lines.
func ParseAreas(response string) []Area {
	var out []Area
	for _, f := range records(response, "~AREA") {
		id, err := strconv.Atoi(field(f, 0, ""))
		if err != nil || len(f) < 2 {
			continue
		}
		out = append(out, Area{ID: id, Name: f[1]})
	}
	return out
}

// ParseZones parses "~ZONE,<id>,<area id>,<name>" lines.
func ParseZones(response string) []Zone {
	var out []Zone
	for _, f := range records(response, "~ZONE") {
		id, err := strconv.Atoi(field(f, 0, ""))
		if err != nil || len(f) < 2 {
			continue
		}
		areaID, _ := strconv.Atoi(f[1])
		out = append(out, Zone{ID: id, AreaID: areaID, Name: field(f, 2, "Unknown")})
	}
	return out
}

// ParseOutputs parses "~OUTPUT,<id>,<zone id>,<type>" lines.
func ParseOutputs(response string) []Output {
	var out []Output
	for _, f := range records(response, "~OUTPUT") {
		id, err := strconv.Atoi(field(f, 0, ""))
		if err != nil || len(f) < 2 {
			continue
		}
		zoneID, _ := strconv.Atoi(f[1])
		out = append(out, Output{ID: id, ZoneID: zoneID, Type: field(f, 2, "Unknown")})
	}
	return out
}

// ParseDevices parses "~DEVICE,<id>,<name>,<type>" lines.
func ParseDevices(response string) []Device {
	var out []Device
	for _, f := range records(response, "~DEVICE") {
		id, err := strconv.Atoi(field(f, 0, ""))
		if err != nil {
			continue
		}
		out = append(out, Device{ID: id, Name: field(f, 1, "Unknown"), Type: field(f, 2, "Unknown")})
	}
	return out
}

// Query sends a list query such as ?ZONE and returns the response.
// A ~ERROR reply is returned as an error since there is nothing to
// parse.
func (s *Session) Query(ctx context.Context, query string) (string, error) {
	res, err := s.Send(ctx, query)
	if err != nil {
		return "", err
	}
	if res.BridgeError != "" {
		return res.Response, fmt.Errorf("%s: %s", query, res.BridgeError)
	}
	return res.Response, nil
}

// GetLevel asks the bridge for the current level of zoneID with
// "?OUTPUT,<id>,1".  ok is false when the reply carried no level, for
// example because the prompt did not come back in time.
func (s *Session) GetLevel(ctx context.Context, zoneID int) (level float64, ok bool, err error) {
	if zoneID <= 0 {
		return 0, false, fmt.Errorf("zone %d: %w", zoneID, cerr.ErrInvalidZone)
	}
	res, err := s.Send(ctx, fmt.Sprintf("?OUTPUT,%d,%d", zoneID, OutputActionSetLevel))
	if err != nil {
		return 0, false, err
	}
	if res.BridgeError != "" {
		return 0, false, fmt.Errorf("zone %d: %s", zoneID, res.BridgeError)
	}
	for _, line := range splitLines(res.Response) {
		ev := ParseEvent(line)
		if ev.ID != zoneID {
			continue
		}
		if v, ok := ev.Level(); ok {
			return v, true, nil
		}
	}
	return 0, false, nil
}

// Inventory runs ?AREA, ?ZONE, ?OUTPUT and ?DEVICE in turn and joins
// the results.  Queries the bridge rejects become warnings; a
// transport failure aborts the inventory.
func (s *Session) Inventory(ctx context.Context) (*Inventory, error) {
	inv := &Inventory{}

	run := func(query string) (string, error) {
		res, err := s.Send(ctx, query)
		if err != nil {
			return "", err
		}
		if res.BridgeError != "" {
			inv.Warnings = append(inv.Warnings, query+": "+res.BridgeError)
			return "", nil
		}
		return res.Response, nil
	}

	resp, err := run(QueryArea)
	if err != nil {
		return nil, err
	}
	inv.Areas = ParseAreas(resp)

	if resp, err = run(QueryZone); err != nil {
		return nil, err
	}
	inv.Zones = ParseZones(resp)

	if resp, err = run(QueryOutput); err != nil {
		return nil, err
	}
	inv.Outputs = ParseOutputs(resp)

	if resp, err = run(QueryDevice); err != nil {
		return nil, err
	}
	inv.Devices = ParseDevices(resp)

	inv.join()
	return inv, nil
}

// join fills in area names and output details on each zone.
func (inv *Inventory) join() {
	areas := make(map[int]string, len(inv.Areas))
	for _, a := range inv.Areas {
		areas[a.ID] = a.Name
	}
	outputs := make(map[int]Output, len(inv.Outputs))
	for _, o := range inv.Outputs {
		outputs[o.ZoneID] = o
	}
	for i := range inv.Zones {
		z := &inv.Zones[i]
		if name, ok := areas[z.AreaID]; ok {
			z.AreaName = name
		} else {
			z.AreaName = "Unknown Area"
		}
		if o, ok := outputs[z.ID]; ok {
			z.OutputID = o.ID
			z.OutputType = o.Type
		}
	}
}
