package core

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"caseta/internal/bridge"
	"caseta/internal/catalog"
	"caseta/internal/dispatch"
	"caseta/internal/transport"
)

// SetMode sets one level on one or more zones and prints a line per
// zone.
type SetMode struct {
	Dispatcher *dispatch.Dispatcher
	Dialer     transport.Dialer
	Commands   []bridge.ZoneCommand
	Catalog    *catalog.Catalog // optional, for zone names
	DryRun     bool
	Out        io.Writer
}

// Run dispatches every command.  It fails when any zone failed so the
// process exits non-zero; the other zones are still attempted.
func (m *SetMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if m.DryRun {
		for _, cmd := range m.Commands {
			fmt.Fprintf(m.Out, "%s: would send %s\n", zoneLabel(m.Catalog, cmd.ZoneID), cmd)
		}
		return nil
	}

	rep := m.Dispatcher.Run(ctx, m.Commands)
	for _, o := range rep.Outcomes {
		fmt.Fprintln(m.Out, m.outcomeLine(o))
	}

	failed := len(rep.Failed())
	if failed > 0 {
		return fmt.Errorf("%d of %d zone(s) failed", failed, len(rep.Outcomes))
	}
	fmt.Fprintf(m.Out, "%d zone(s) set in %s (%s)\n",
		len(rep.Outcomes), rep.Elapsed.Round(time.Millisecond), rep.Mode)
	return nil
}

func (m *SetMode) outcomeLine(o dispatch.Outcome) string {
	label := zoneLabel(m.Catalog, o.Command.ZoneID)
	if !o.OK() {
		return fmt.Sprintf("%s: FAILED: %v", label, o.Err)
	}
	line := fmt.Sprintf("%s: ok %s%%", label, strconv.FormatFloat(bridge.ClampLevel(o.Command.Level), 'f', -1, 64))
	if o.Confirmed {
		line += ", confirmed"
	}
	if o.Attempts > 1 {
		line += fmt.Sprintf(" after %d attempts", o.Attempts)
	}
	if c := o.Caveat(); c != "" {
		line += " (" + c + ")"
	}
	return line
}
