// Package config defines the runtime configuration for caseta and
// provides helpers for parsing zone lists and tunnel specifications.
package config

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	cerr "caseta/internal/errors"
)

// Command is the operation requested on the command line.
type Command string

const (
	CmdOn       Command = "on"
	CmdOff      Command = "off"
	CmdSet      Command = "set"
	CmdList     Command = "list"
	CmdQuery    Command = "query"
	CmdMonitor  Command = "monitor"
	CmdShell    Command = "shell"
	CmdDiscover Command = "discover"
)

// Commands lists every command in help order.
var Commands = []Command{CmdOn, CmdOff, CmdSet, CmdList, CmdQuery, CmdMonitor, CmdShell, CmdDiscover} //nolint:gochecknoglobals

// ParseCommand maps a positional argument to a Command.
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// needsBridge reports whether the command talks to a bridge.
func (c Command) needsBridge() bool {
	return c != CmdList && c != CmdDiscover
}

// setsLevels reports whether the command dispatches zone commands.
func (c Command) setsLevels() bool {
	return c == CmdOn || c == CmdOff || c == CmdSet
}

// Config holds every tuneable for one caseta invocation.
type Config struct {
	Command Command
	Args    []string // positional arguments after the command

	// ── Bridge ───────────────────────────────────────────────────────
	Host         string
	Port         int
	Timeout      time.Duration
	CommandDelay time.Duration
	Username     string
	Password     string

	// ── Zones ────────────────────────────────────────────────────────
	Zones      []int            // explicit zone IDs from --zone
	GroupNames []string         // --group names to expand
	Groups     map[string][]int // named zone lists from the config file
	Area       string           // --area: catalog area name
	Level      float64          // --level for set
	ReportPath string           // integration report JSON

	// ── Dispatch ─────────────────────────────────────────────────────
	Mode      string
	Delay     time.Duration
	Workers   int
	Stagger   time.Duration
	Retries   int
	TripAfter int
	Verify    bool

	// ── Monitor / discover ───────────────────────────────────────────
	Duration        time.Duration
	DiscoverTimeout time.Duration

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	ConfigPath string
	Verbose    int
	Stats      bool
	DryRun     bool
}

// TargetLevel returns the level the command asks for.
func (c *Config) TargetLevel() float64 {
	switch c.Command {
	case CmdOn:
		return 100
	case CmdOff:
		return 0
	default:
		return c.Level
	}
}

// ── Zone list parser ─────────────────────────────────────────────────

// ParseZoneList accepts "5", "5,10,30" and ranges such as "30-33",
// in any combination.  Duplicates are dropped; order of first
// appearance is kept.
func ParseZoneList(spec string) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	add := func(id int) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := parseZoneID(lo)
			if err != nil {
				return nil, err
			}
			end, err := parseZoneID(hi)
			if err != nil {
				return nil, err
			}
			if start > end {
				return nil, fmt.Errorf("invalid zone range %q", part)
			}
			for id := start; id <= end; id++ {
				add(id)
			}
			continue
		}
		id, err := parseZoneID(part)
		if err != nil {
			return nil, err
		}
		add(id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty zone list %q", spec)
	}
	return out, nil
}

func parseZoneID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid zone id %q", s)
	}
	if id <= 0 {
		return 0, fmt.Errorf("zone id %d must be positive", id)
	}
	return id, nil
}

// ExpandGroups returns the zone IDs of the named groups, in the order
// given, without duplicates.
func (c *Config) ExpandGroups() ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, name := range c.GroupNames {
		ids, ok := c.Groups[strings.ToLower(name)]
		if !ok {
			return nil, &cerr.ConfigError{
				Field:   "group",
				Value:   name,
				Message: "no such group",
				Hint:    "groups are defined under 'groups:' in the config file; known: " + strings.Join(c.GroupList(), ", "),
			}
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// GroupList returns the configured group names, sorted.
func (c *Config) GroupList() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the tunnel fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &cerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Zone selection is checked by the caller once the catalog is loaded,
// since --area needs it.
func (c *Config) Validate() error {
	if c.Command == "" {
		return &cerr.ConfigError{
			Field:   "command",
			Message: "a command is required",
			Hint:    "one of: " + commandList(),
		}
	}

	if c.Command.needsBridge() && c.Host == "" {
		return &cerr.ConfigError{
			Field:   "host",
			Message: "bridge address is required",
			Hint:    "pass --host, set CASETA_HOST, or add bridge.host to the config file; 'caseta discover' can find it",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &cerr.ConfigError{Field: "port", Value: c.Port, Message: "must be 1-65535"}
	}
	if c.Timeout <= 0 {
		return &cerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must be positive"}
	}

	if c.Command.setsLevels() {
		if len(c.Zones) == 0 && len(c.GroupNames) == 0 && c.Area == "" {
			return &cerr.ConfigError{
				Field:   "zone",
				Message: "no zones selected",
				Hint:    "use --zone 5,10,30-33, --group <name> or --area <name> with --report",
			}
		}
		if c.Area != "" && c.ReportPath == "" {
			return &cerr.ConfigError{
				Field:   "area",
				Value:   c.Area,
				Message: "needs an integration report",
				Hint:    "pass --report <file> or set report: in the config file",
			}
		}
		if c.Command == CmdSet && (math.IsNaN(c.Level) || math.IsInf(c.Level, 0)) {
			return &cerr.ConfigError{Field: "level", Value: c.Level, Message: "must be a number"}
		}
	}

	switch strings.ToLower(c.Mode) {
	case "batch", "sequential":
	default:
		return &cerr.ConfigError{
			Field:   "mode",
			Value:   c.Mode,
			Message: "unknown dispatch mode",
			Hint:    "use batch or sequential",
		}
	}
	if c.Retries < 0 {
		return &cerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.Workers < 0 {
		return &cerr.ConfigError{Field: "workers", Value: c.Workers, Message: "must not be negative"}
	}

	if c.Command == CmdQuery && len(c.Args) != 1 {
		return &cerr.ConfigError{
			Field:   "query",
			Message: "exactly one query target is required",
			Hint:    "caseta query area|zone|device|output|inventory",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &cerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	if c.TunnelEnabled && !c.Command.needsBridge() {
		return &cerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: fmt.Sprintf("not used by %s", c.Command),
		}
	}

	return nil
}

func commandList() string {
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
