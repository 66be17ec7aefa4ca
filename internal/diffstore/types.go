// Package diffstore owns the per-resource (orig, staged) diff records a
// transaction accumulates, the RFC 6902 patch application used by jp/jpf,
// the recursive structural diff behind `diff` printing, and the structural
// equality (Equal) that `test`/`testf` use directly.
//
// JSON values pass through this package as json.RawMessage on the wire
// (the shape evanphx/json-patch, tidwall/gjson, and tidwall/pretty all
// expect) and are decoded to `any` — using json.Number so large integers
// don't silently become float64 — only where a structural walk or
// equality check actually needs a tree.
package diffstore

import "encoding/json"

// OrigKind distinguishes "the server had no value at first stage" from
// "the server returned this value" — a dedicated tag rather than an
// overloaded nil, so a missing resource and an empty JSON null can never
// be confused.
type OrigKind int

const (
	OrigMissing OrigKind = iota
	OrigPresent
)

// Orig is the server's last-known value at the moment a resource was
// first staged.
type Orig struct {
	Kind  OrigKind
	Value json.RawMessage
}

// StagedKind distinguishes "never touched", "staged for deletion", and
// "staged with this value" as three explicit states, so a staged null
// value and an unstaged resource are never confused.
type StagedKind int

const (
	StagedUnset StagedKind = iota
	StagedDeleted
	StagedValue
)

// Staged is the client's pending mutation for a resource.
type Staged struct {
	Kind  StagedKind
	Value json.RawMessage
}

// Record is one resource's diff entry. EnsureCached creates it on the
// resource's first touch with Staged unset; Stage, StageDelete and
// StagePatch then set Staged. The type itself does not exclude an
// (OrigMissing, StagedUnset) record: EnsureCached with allow404 returns one
// for a resource the server does not have.
type Record struct {
	Orig   Orig
	Staged Staged
}

// Changed reports whether Staged differs from Orig in any observable way
// (used to decide whether `diff` has anything to print for this resource).
func (r *Record) Changed() bool {
	switch r.Staged.Kind {
	case StagedUnset:
		return false
	case StagedDeleted:
		return r.Orig.Kind == OrigPresent
	default:
		if r.Orig.Kind == OrigMissing {
			return true
		}
		return !jsonEqual(r.Orig.Value, r.Staged.Value)
	}
}
