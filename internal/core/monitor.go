package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"caseta/internal/bridge"
	"caseta/internal/catalog"
	"caseta/internal/transport"
	"caseta/util"
)

// MonitorMode prints live bridge events until interrupted or until
// Duration elapses.
type MonitorMode struct {
	Session  *bridge.Session
	Dialer   transport.Dialer
	Duration time.Duration // zero means until ctx is done
	Catalog  *catalog.Catalog
	Logger   *util.Logger
	Out      io.Writer
}

// Run connects, enables monitoring and streams events.
func (m *MonitorMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if m.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Duration)
		defer cancel()
	}

	if err := m.Session.Connect(ctx); err != nil {
		return err
	}
	defer m.Session.Close()

	m.Logger.Info("monitoring %s, press Ctrl-C to stop", m.Session.Addr())
	start := time.Now()
	events := 0
	err := m.Session.Monitor(ctx, func(ev bridge.Event) {
		events++
		fmt.Fprintln(m.Out, m.eventLine(ev))
	})
	if err != nil {
		return err
	}
	if events == 0 {
		m.Logger.Info("no events received in %s; try operating a light or keypad while monitoring",
			time.Since(start).Round(time.Second))
	}
	return nil
}

func (m *MonitorMode) eventLine(ev bridge.Event) string {
	stamp := ev.Time.Format("15:04:05.000")
	if level, ok := ev.Level(); ok {
		return fmt.Sprintf("%s  %s -> %.2f%%", stamp, zoneLabel(m.Catalog, ev.ID), level)
	}
	return fmt.Sprintf("%s  %s", stamp, ev.Raw)
}
