package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the config file and environment variable loading.

const (
	// DefaultBridgePort is the integration Telnet port.
	DefaultBridgePort = 23

	// DefaultTimeout bounds every blocking step of a bridge session.
	DefaultTimeout = 3 * time.Second

	// DefaultCommandDelay is the pause between sending a command and
	// reading its response.
	DefaultCommandDelay = 100 * time.Millisecond

	// DefaultMode is the multi-zone dispatch mode.
	DefaultMode = "batch"

	// DefaultSequentialDelay separates zones in sequential mode.
	DefaultSequentialDelay = 500 * time.Millisecond

	// DefaultStagger spaces out session launches in batch mode so the
	// bridge is not hit with every login at once.
	DefaultStagger = 100 * time.Millisecond

	// DefaultBreakerCooldown is how long a tripped breaker waits before
	// probing the bridge again.
	DefaultBreakerCooldown = 10 * time.Second

	// DefaultDiscoverTimeout bounds an mDNS browse.
	DefaultDiscoverTimeout = 3 * time.Second

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHConnTimeout bounds the SSH handshake with a jump host.
	DefaultSSHConnTimeout = 15 * time.Second

	// DefaultConfigFile is looked up under the user config directory.
	DefaultConfigFile = "caseta/config.yaml"
)

// Defaults returns a Config populated with every default.
func Defaults() *Config {
	return &Config{
		Port:            DefaultBridgePort,
		Timeout:         DefaultTimeout,
		CommandDelay:    DefaultCommandDelay,
		Mode:            DefaultMode,
		Delay:           DefaultSequentialDelay,
		Stagger:         DefaultStagger,
		Level:           100,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}
}
