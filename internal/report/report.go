// Package report implements the control session's spec-mandated
// stdout/stderr contract: informational messages go to stdout and are
// suppressed by quiet; command results (200 OK, 404 Not Found, staged-diff
// printouts, ...) go to stdout and are never suppressed; errors go to
// stderr unconditionally.
package report

import (
	"fmt"
	"io"
)

// Reporter is the single place output formatting happens, mirroring the
// teacher's api.RespondJSON/RespondError split between a success path and
// an error path, adapted here to plain lines instead of a JSON envelope.
type Reporter struct {
	Out   io.Writer
	Err   io.Writer
	Quiet bool
}

// New builds a Reporter writing to the given streams.
func New(out, err io.Writer, quiet bool) *Reporter {
	return &Reporter{Out: out, Err: err, Quiet: quiet}
}

// Info prints an informational line to stdout, suppressed when Quiet.
func (r *Reporter) Info(format string, args ...any) {
	if r.Quiet {
		return
	}
	fmt.Fprintf(r.Out, format+"\n", args...)
}

// Result prints a command result line to stdout. Never suppressed by Quiet.
func (r *Reporter) Result(format string, args ...any) {
	fmt.Fprintf(r.Out, format+"\n", args...)
}

// Error prints an error line to stderr. Never suppressed.
func (r *Reporter) Error(format string, args ...any) {
	fmt.Fprintf(r.Err, format+"\n", args...)
}

// Warn prints a non-fatal warning to stderr (e.g. redundant `transact`).
// Never suppressed by Quiet.
func (r *Reporter) Warn(format string, args ...any) {
	fmt.Fprintf(r.Err, "warning: "+format+"\n", args...)
}
