package bridge

import (
	"fmt"
	"strings"
)

// Wire constants of the Lutron integration protocol.
const (
	DefaultPort     = 23
	DefaultUsername = "lutron"
	DefaultPassword = "integration"

	LineTerminator = "\r\n"

	LoginMarker    = "login:"
	PasswordMarker = "password:"
	PromptMarker   = "GNET>"

	ErrorPrefix = "~ERROR"

	// OutputActionSetLevel is the #OUTPUT action number for "set level".
	OutputActionSetLevel = 1

	MinLevel = 0.0
	MaxLevel = 100.0
)

// Integration queries and commands understood by the bridge.
const (
	QueryArea         = "?AREA"
	QueryZone         = "?ZONE"
	QueryDevice       = "?DEVICE"
	QueryOutput       = "?OUTPUT"
	MonitoringEnable  = "#MONITORING,255,1"
	MonitoringDisable = "#MONITORING,255,0"
)

// ZoneCommand sets one zone to one level.
type ZoneCommand struct {
	ZoneID int
	Level  float64
}

// String renders the command as it goes on the wire, without the line
// terminator.
func (c ZoneCommand) String() string {
	return FormatOutputCommand(c.ZoneID, c.Level)
}

// ClampLevel forces level into [0, 100].  Out-of-range levels are not
// an error.
func ClampLevel(level float64) float64 {
	switch {
	case level != level: // NaN
		return MinLevel
	case level <= MinLevel: // also folds -0
		return MinLevel
	case level > MaxLevel:
		return MaxLevel
	default:
		return level
	}
}

// FormatOutputCommand returns "#OUTPUT,<zone>,1,<level>" with the level
// clamped and rendered with exactly two decimals.
func FormatOutputCommand(zoneID int, level float64) string {
	return fmt.Sprintf("#OUTPUT,%d,%d,%.2f", zoneID, OutputActionSetLevel, ClampLevel(level))
}

// ParseError returns the first line of response that starts with
// ~ERROR, or "" when the bridge reported no error.
func ParseError(response string) string {
	for _, line := range splitLines(response) {
		if strings.HasPrefix(line, ErrorPrefix) {
			return line
		}
	}
	return ""
}

// splitLines breaks a response into trimmed, non-empty lines with any
// leading prompt removed.
func splitLines(response string) []string {
	var out []string
	for _, line := range strings.Split(response, "\n") {
		line = stripPrompt(strings.TrimSpace(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// stripPrompt removes any number of leading "GNET>" prompts, which the
// bridge glues in front of asynchronous lines.
func stripPrompt(line string) string {
	for strings.HasPrefix(line, PromptMarker) {
		line = strings.TrimSpace(strings.TrimPrefix(line, PromptMarker))
	}
	return line
}
