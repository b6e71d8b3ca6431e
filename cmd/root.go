// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"caseta/config"
	"caseta/internal/core"
	"caseta/internal/metrics"
	"caseta/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X caseta/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr is where usage, stats and dry-run notes go.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the requested caseta command.
func Execute(ctx context.Context, args []string) error {
	// ── defaults < config file < environment ─────────────────────
	cfg := config.Defaults()
	path, explicit := configPath(args)
	if err := config.LoadFile(cfg, path, !explicit); err != nil {
		return err
	}
	config.LoadFromEnv(cfg)
	cfg.ConfigPath = path

	// Flags default to the values loaded so far, so only flags the
	// user actually passes override them.
	fs := flag.NewFlagSet("caseta", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── bridge ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Bridge address, host or host:port")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Bridge Telnet port")
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Bound on each connect, login and response step")
	fs.DurationVar(&cfg.CommandDelay, "command-delay", cfg.CommandDelay, "Pause between sending a command and reading the reply (0 = none)")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "Integration login (default lutron)")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Integration password (default integration)")

	// ── zones ────────────────────────────────────────────────────
	var zoneSpecs []string
	fs.StringSliceVarP(&zoneSpecs, "zone", "z", nil, "Zone IDs, e.g. 5,10,30-33 (repeatable)")
	fs.StringSliceVarP(&cfg.GroupNames, "group", "g", nil, "Named zone group from the config file (repeatable)")
	fs.StringVarP(&cfg.Area, "area", "a", cfg.Area, "All zones in an area of the integration report")
	fs.Float64VarP(&cfg.Level, "level", "l", cfg.Level, "Level 0-100 for set")
	fs.StringVarP(&cfg.ReportPath, "report", "r", cfg.ReportPath, "Integration report JSON exported from the Lutron app")

	// ── dispatch ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "Multi-zone dispatch: batch or sequential")
	fs.DurationVarP(&cfg.Delay, "delay", "d", cfg.Delay, "Pause between zones in sequential mode")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent sessions in batch mode (0 = one per zone)")
	fs.DurationVar(&cfg.Stagger, "stagger", cfg.Stagger, "Pause between session launches in batch mode")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Reconnect attempts per zone after a refused or unreachable dial")
	fs.IntVar(&cfg.TripAfter, "trip-after", cfg.TripAfter, "Stop dialing after this many consecutive connection failures (0 = never)")
	fs.BoolVar(&cfg.Verify, "verify", cfg.Verify, "Read each zone back and fail it unless the level matches")

	// ── monitor / discover ───────────────────────────────────────
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop monitoring after this long (0 = until Ctrl-C)")
	fs.DurationVar(&cfg.DiscoverTimeout, "discover-timeout", cfg.DiscoverTimeout, "How long to browse for bridges")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the bridge via SSH jump host [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var configFlag string // already consumed by configPath
	fs.StringVar(&configFlag, "config", path, "YAML config file")
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	var quiet bool
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")
	fs.BoolVar(&cfg.Stats, "stats", false, "Print session metrics as JSON on exit")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and show what would be sent, without connecting")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("caseta %s\n", version)
		return nil
	}

	cfg.Verbose += envVerbose
	if err := applyArgs(cfg, fs, zoneSpecs); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build and run ────────────────────────────────────────────
	verbosity := cfg.Verbose + 1
	if quiet {
		verbosity = int(util.LogQuiet)
	}
	logger := util.NewLogger(verbosity)

	var m *metrics.Collector
	if cfg.Stats {
		m = metrics.New()
	}

	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}

	if cfg.DryRun && !setsLevels(cfg.Command) {
		target := ""
		if cfg.Host != "" {
			target = " against " + util.FormatAddr(cfg.Host, cfg.Port)
		}
		fmt.Fprintf(stderr, "dry run: %s%s is valid\n", cfg.Command, target)
		return nil
	}

	err = mode.Run(ctx)
	if m != nil {
		fmt.Fprintln(stderr, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// applyArgs folds positional arguments and the raw --zone values into
// cfg.
func applyArgs(cfg *config.Config, fs *flag.FlagSet, zoneSpecs []string) error {
	remaining := fs.Args()
	if len(remaining) == 0 {
		return fmt.Errorf("command required (use --help for usage)")
	}
	command, err := config.ParseCommand(remaining[0])
	if err != nil {
		return err
	}
	cfg.Command = command
	cfg.Args = remaining[1:]

	switch command {
	case config.CmdQuery:
		// validated by cfg.Validate
	case config.CmdSet:
		if len(cfg.Args) > 1 || (len(cfg.Args) == 1 && fs.Changed("level")) {
			return fmt.Errorf("set takes one level, as --level N or a single argument")
		}
		if len(cfg.Args) == 1 {
			level, err := strconv.ParseFloat(cfg.Args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid level %q", cfg.Args[0])
			}
			cfg.Level = level
			cfg.Args = nil
		}
	default:
		if len(cfg.Args) > 0 {
			return fmt.Errorf("unexpected arguments for %s: %s", command, strings.Join(cfg.Args, " "))
		}
	}

	if len(zoneSpecs) > 0 {
		zones, err := config.ParseZoneList(strings.Join(zoneSpecs, ","))
		if err != nil {
			return fmt.Errorf("zone: %w", err)
		}
		cfg.Zones = zones
	}

	if cfg.Host != "" {
		host, port, err := util.SplitHostPort(cfg.Host, cfg.Port)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		cfg.Host, cfg.Port = host, port
	}
	return nil
}

// configPath finds --config before flags are parsed, since the file
// supplies the flag defaults.  explicit is false when falling back to
// the per-user default location.
func configPath(args []string) (path string, explicit bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v, true
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	if p := config.ConfigPathFromEnv(); p != "" {
		return p, true
	}
	return config.DefaultConfigPath(), false
}

func setsLevels(c config.Command) bool {
	return c == config.CmdOn || c == config.CmdOff || c == config.CmdSet
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `caseta - Lutron Caseta / RA2 Select integration client v%s

Controls lights through the bridge's Telnet integration interface.

Usage:
  caseta [options] on|off -z <zones>          Switch zones fully on or off
  caseta [options] set <level> -z <zones>     Set zones to a level (0-100)
  caseta [options] list                       Zones by area from the report
  caseta [options] query <target>             area, zone, device, output or inventory
  caseta [options] monitor                    Print live bridge events
  caseta [options] shell                      Type raw integration commands
  caseta discover                             Find bridges on the LAN

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprint(stderr, `
Examples:
  caseta -H 192.168.49.91 on -z 5                      One zone on
  caseta -H 192.168.49.91 set 40 -z 27,30-33 -m sequential
  caseta -H 192.168.49.91 off -a Kitchen -r report.json
  caseta -H 192.168.49.91 -T pi@home.example.com monitor
  caseta -r report.json list -a "Living Room"
`)
}
