package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the CASETA_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("750ms") or a number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CASETA_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("CASETA_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envDuration("CASETA_TIMEOUT"); v > 0 {
		cfg.Timeout = v
	}
	if v := envDuration("CASETA_COMMAND_DELAY"); v > 0 {
		cfg.CommandDelay = v
	}
	if v := os.Getenv("CASETA_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("CASETA_PASSWORD"); v != "" {
		cfg.Password = v
	}

	// Dispatch
	if v := os.Getenv("CASETA_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := envDuration("CASETA_DELAY"); v > 0 {
		cfg.Delay = v
	}
	if v := envInt("CASETA_WORKERS"); v > 0 {
		cfg.Workers = v
	}
	if v := envInt("CASETA_RETRIES"); v > 0 {
		cfg.Retries = v
	}
	if envBool("CASETA_VERIFY") {
		cfg.Verify = true
	}
	if v := os.Getenv("CASETA_REPORT"); v != "" {
		cfg.ReportPath = v
	}

	// SSH tunnel
	if v := os.Getenv("CASETA_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("CASETA_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("CASETA_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("CASETA_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("CASETA_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("CASETA_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("CASETA_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ConfigPathFromEnv returns CASETA_CONFIG.
func ConfigPathFromEnv() string {
	return os.Getenv("CASETA_CONFIG")
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
