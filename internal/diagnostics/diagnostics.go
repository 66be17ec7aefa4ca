// Package diagnostics is the control session's ambient debug-logging
// channel. It is entirely separate from internal/report, which carries the
// binding stdout/stderr contract: nothing written here is subject to the
// `quiet` flag, and none of it is required by the command language — it
// exists so an operator chasing a flaky device can pass -debug and see
// per-request timing (including the OPTIONS probe a capability-cache miss
// issues), per-command handler timing, and a line per planned commit batch.
package diagnostics

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds the session's diagnostic logger. When debug is false the
// logger is logr.Discard(), so call sites never need their own enablement
// checks.
func New(debug bool) logr.Logger {
	if !debug {
		return logr.Discard()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(z)
}
