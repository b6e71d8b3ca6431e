// Package core is the orchestration layer.  It turns a Config into one
// of caseta's operational modes and owns each mode's lifecycle, from
// opening bridge sessions to printing results.
//
// Architecture layers (bottom → top):
//
//	transport  →  bridge  →  dispatch  →  core  →  cmd (CLI)
//
// Build in this package is the single dispatch point between the CLI
// and the modes.
package core

import "context"

// Mode represents a complete operation of caseta (set, list, query,
// monitor, shell or discover).  Each mode owns its full lifecycle from
// connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
