package config

// file.go - configuration loading from a YAML file.
//
//	bridge:
//	  host: 192.168.49.91
//	  timeout: 3s
//	dispatch:
//	  mode: sequential
//	  delay: 500ms
//	report: ~/lutron/integration-report.json
//	groups:
//	  kitchen: [27, 30, 31, 33]
//	  bedroom: "5,10"

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration format.
type File struct {
	Bridge struct {
		Host         string   `yaml:"host"`
		Port         int      `yaml:"port"`
		Timeout      Duration `yaml:"timeout"`
		CommandDelay Duration `yaml:"command_delay"`
		Username     string   `yaml:"username"`
		Password     string   `yaml:"password"`
	} `yaml:"bridge"`

	Dispatch struct {
		Mode      string   `yaml:"mode"`
		Delay     Duration `yaml:"delay"`
		Workers   int      `yaml:"workers"`
		Stagger   Duration `yaml:"stagger"`
		Retries   int      `yaml:"retries"`
		TripAfter int      `yaml:"trip_after"`
		Verify    bool     `yaml:"verify"`
	} `yaml:"dispatch"`

	Tunnel struct {
		Spec          string `yaml:"spec"`
		KeyPath       string `yaml:"key"`
		Agent         bool   `yaml:"agent"`
		StrictHostKey bool   `yaml:"strict_hostkey"`
		KnownHosts    string `yaml:"known_hosts"`
	} `yaml:"tunnel"`

	Report string              `yaml:"report"`
	Groups map[string]ZoneList `yaml:"groups"`
}

// Duration accepts "500ms", "3s" or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(v)
	return nil
}

// ZoneList accepts a YAML sequence of zone IDs or a "5,10,30-33" string.
type ZoneList []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (z *ZoneList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var ids []int
		if err := value.Decode(&ids); err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		return z.parse(strings.Join(parts, ","), value.Line)
	case yaml.ScalarNode:
		return z.parse(value.Value, value.Line)
	default:
		return fmt.Errorf("line %d: zone list must be a list or a string", value.Line)
	}
}

func (z *ZoneList) parse(spec string, line int) error {
	ids, err := ParseZoneList(spec)
	if err != nil {
		return fmt.Errorf("line %d: %w", line, err)
	}
	*z = ids
	return nil
}

// DefaultConfigPath returns the per-user config file location, or ""
// when the user config directory is unknown.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, DefaultConfigFile)
}

// LoadFile overlays the YAML file at path onto cfg.  Only keys present
// in the file override existing values.  A missing file is not an
// error when optional is true.
func LoadFile(cfg *Config, path string, optional bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	f.apply(cfg)
	return nil
}

func (f *File) apply(cfg *Config) {
	b := f.Bridge
	setString(&cfg.Host, b.Host)
	setInt(&cfg.Port, b.Port)
	setDuration(&cfg.Timeout, b.Timeout)
	setDuration(&cfg.CommandDelay, b.CommandDelay)
	setString(&cfg.Username, b.Username)
	setString(&cfg.Password, b.Password)

	d := f.Dispatch
	setString(&cfg.Mode, d.Mode)
	setDuration(&cfg.Delay, d.Delay)
	setInt(&cfg.Workers, d.Workers)
	setDuration(&cfg.Stagger, d.Stagger)
	setInt(&cfg.Retries, d.Retries)
	setInt(&cfg.TripAfter, d.TripAfter)
	cfg.Verify = cfg.Verify || d.Verify

	t := f.Tunnel
	setString(&cfg.TunnelSpec, t.Spec)
	setString(&cfg.SSHKeyPath, expandHome(t.KeyPath))
	cfg.UseSSHAgent = cfg.UseSSHAgent || t.Agent
	cfg.StrictHostKey = cfg.StrictHostKey || t.StrictHostKey
	setString(&cfg.KnownHostsPath, expandHome(t.KnownHosts))

	setString(&cfg.ReportPath, expandHome(f.Report))

	if len(f.Groups) > 0 && cfg.Groups == nil {
		cfg.Groups = make(map[string][]int, len(f.Groups))
	}
	for name, ids := range f.Groups {
		cfg.Groups[strings.ToLower(name)] = ids
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v != 0 {
		*dst = time.Duration(v)
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
