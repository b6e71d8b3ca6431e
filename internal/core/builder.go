package core

import (
	"fmt"
	"os"
	"strings"

	"caseta/config"
	"caseta/internal/bridge"
	"caseta/internal/catalog"
	"caseta/internal/discovery"
	"caseta/internal/dispatch"
	cerr "caseta/internal/errors"
	"caseta/internal/metrics"
	"caseta/internal/retry"
	"caseta/internal/transport"
	"caseta/tunnel"
	"caseta/util"
)

// Build constructs the Mode for cfg.Command.  m may be nil.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	switch cfg.Command {
	case config.CmdOn, config.CmdOff, config.CmdSet:
		return buildSet(cfg, logger, m)
	case config.CmdList:
		return buildList(cfg)
	case config.CmdQuery:
		return buildQuery(cfg, logger, m)
	case config.CmdMonitor:
		return buildMonitor(cfg, logger, m)
	case config.CmdShell:
		return buildShell(cfg, logger, m), nil
	case config.CmdDiscover:
		return buildDiscover(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildSet(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	cat, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	zones, err := ResolveZones(cfg, cat)
	if err != nil {
		return nil, err
	}
	mode, err := dispatch.ParseMode(cfg.Mode)
	if err != nil {
		return nil, &cerr.ConfigError{Field: "mode", Value: cfg.Mode, Message: err.Error()}
	}

	level := cfg.TargetLevel()
	cmds := make([]bridge.ZoneCommand, len(zones))
	for i, id := range zones {
		cmds[i] = bridge.ZoneCommand{ZoneID: id, Level: level}
	}

	dialer := buildDialer(cfg, logger)
	return &SetMode{
		Dispatcher: &dispatch.Dispatcher{
			NewSession: func(zoneID int) *bridge.Session {
				return newSession(cfg, dialer, logger.With(fmt.Sprintf("zone %d", zoneID)), m)
			},
			Mode:    mode,
			Delay:   cfg.Delay,
			Workers: cfg.Workers,
			Stagger: cfg.Stagger,
			Verify:  cfg.Verify,
			Retry:   retry.ForRetries(cfg.Retries, cerr.IsRetryable),
			Breaker: retry.NewBreaker(cfg.TripAfter, config.DefaultBreakerCooldown, cerr.IsConnectionError,
				func(from, to retry.BreakerState) {
					logger.Warn("bridge circuit %s → %s", from, to)
				}),
			Logger: logger,
		},
		Dialer:   dialer,
		Commands: cmds,
		Catalog:  cat,
		DryRun:   cfg.DryRun,
		Out:      os.Stdout,
	}, nil
}

func buildList(cfg *config.Config) (Mode, error) {
	var cat *catalog.Catalog
	if cfg.ReportPath != "" {
		var err error
		if cat, err = catalog.Load(cfg.ReportPath); err != nil {
			return nil, err
		}
	}
	return &ListMode{
		Catalog: cat,
		Area:    cfg.Area,
		Groups:  cfg.Groups,
		Out:     os.Stdout,
	}, nil
}

func buildQuery(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	target, err := ParseQueryTarget(cfg.Args[0])
	if err != nil {
		return nil, &cerr.ConfigError{
			Field:   "query",
			Value:   cfg.Args[0],
			Message: err.Error(),
			Hint:    "one of: " + strings.Join(queryTargetNames(), ", "),
		}
	}
	dialer := buildDialer(cfg, logger)
	return &QueryMode{
		Session: newSession(cfg, dialer, logger, m),
		Dialer:  dialer,
		Target:  target,
		Out:     os.Stdout,
	}, nil
}

func buildMonitor(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	cat, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	dialer := buildDialer(cfg, logger)
	return &MonitorMode{
		Session:  newSession(cfg, dialer, logger, m),
		Dialer:   dialer,
		Duration: cfg.Duration,
		Catalog:  cat,
		Logger:   logger,
		Out:      os.Stdout,
	}, nil
}

func buildShell(cfg *config.Config, logger *util.Logger, m *metrics.Collector) Mode {
	dialer := buildDialer(cfg, logger)
	return &ShellMode{
		Session: newSession(cfg, dialer, logger, m),
		Dialer:  dialer,
		In:      os.Stdin,
		Out:     os.Stdout,
	}
}

func buildDiscover(cfg *config.Config, logger *util.Logger) Mode {
	return &DiscoverMode{
		Options: discovery.Options{Timeout: cfg.DiscoverTimeout},
		Browse:  discovery.Browse,
		Logger:  logger,
		Out:     os.Stdout,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// ResolveZones merges --zone, --group and --area into one ordered list
// without duplicates.
func ResolveZones(cfg *config.Config, cat *catalog.Catalog) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	add := func(ids []int) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	add(cfg.Zones)

	grouped, err := cfg.ExpandGroups()
	if err != nil {
		return nil, err
	}
	add(grouped)

	if cfg.Area != "" {
		if cat == nil {
			return nil, &cerr.ConfigError{
				Field:   "area",
				Value:   cfg.Area,
				Message: "needs an integration report",
				Hint:    "pass --report <file> or set report: in the config file",
			}
		}
		zones := cat.Area(cfg.Area)
		if len(zones) == 0 {
			return nil, &cerr.ConfigError{
				Field:   "area",
				Value:   cfg.Area,
				Message: "no zones in that area",
				Hint:    "known areas: " + strings.Join(cat.Areas(), ", "),
			}
		}
		add(catalog.IDs(zones))
	}

	if len(out) == 0 {
		return nil, &cerr.ConfigError{Field: "zone", Message: "no zones selected"}
	}
	return out, nil
}

// loadCatalog reads the integration report when one is configured.  A
// report that fails to load is only fatal when --area depends on it.
func loadCatalog(cfg *config.Config, logger *util.Logger) (*catalog.Catalog, error) {
	if cfg.ReportPath == "" {
		return nil, nil
	}
	cat, err := catalog.Load(cfg.ReportPath)
	if err != nil {
		if cfg.Area != "" {
			return nil, err
		}
		logger.Warn("zone names unavailable: %v", err)
		return nil, nil
	}
	logger.Verbose("loaded %d zone(s) from %s", cat.Len(), cfg.ReportPath)
	return cat, nil
}

func newSession(cfg *config.Config, dialer transport.Dialer, logger *util.Logger, m *metrics.Collector) *bridge.Session {
	return bridge.New(sessionConfig(cfg), dialer, logger, m)
}

// sessionConfig maps the resolved settings onto a bridge.Config.  The
// default delay is already filled in by config.Defaults, so a zero here
// was asked for and means no delay.
func sessionConfig(cfg *config.Config) bridge.Config {
	delay := cfg.CommandDelay
	if delay == 0 {
		delay = -1
	}
	return bridge.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Timeout:      cfg.Timeout,
		CommandDelay: delay,
		Username:     cfg.Username,
		Password:     cfg.Password,
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   config.DefaultSSHConnTimeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}

// zoneLabel renders "zone 5" or "zone 5 (Floor Lamp)" when the catalog
// knows the zone.
func zoneLabel(cat *catalog.Catalog, id int) string {
	if cat != nil {
		if z, ok := cat.Lookup(id); ok {
			return fmt.Sprintf("zone %d (%s)", id, z.Name)
		}
	}
	return fmt.Sprintf("zone %d", id)
}
