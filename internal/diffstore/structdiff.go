package diffstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ChangeKind tags one node the structural walk found.
type ChangeKind int

const (
	Changed ChangeKind = iota
	Added
	Removed
	TypeChanged
)

// Change is one line of the structural diff: a JSON-Pointer-like path plus
// whatever before/after values are relevant to its kind.
type Change struct {
	Pointer string
	Kind    ChangeKind
	Before  any
	After   any
}

// Walk recursively compares orig and staged (already-decoded JSON trees)
// and returns every structural difference `diff` needs to report:
// additions, removals, leaf value changes, and type changes. Walk returns
// pointers sorted lexically so output is deterministic for tests and
// operators alike.
func Walk(orig, staged any) []Change {
	var changes []Change
	walk("", orig, staged, true, true, &changes)
	return sortChanges(changes)
}

// WalkRecord computes the structural diff for one diff store record,
// including the root-level presence transitions Walk's two-always-present
// signature can't express: a resource staged for deletion (one Removed
// change at the root pointer "" carrying the whole orig value) or one that
// didn't exist before this transaction staged it (one Added change at ""
// carrying the whole staged value).
func WalkRecord(rec *Record) []Change {
	origPresent := rec.Orig.Kind == OrigPresent
	var origVal any
	if origPresent {
		origVal, _ = Decode(rec.Orig.Value)
	}

	var changes []Change
	switch rec.Staged.Kind {
	case StagedDeleted:
		if origPresent {
			walk("", origVal, nil, true, false, &changes)
		}
	case StagedValue:
		stagedVal, _ := Decode(rec.Staged.Value)
		walk("", origVal, stagedVal, origPresent, true, &changes)
	}
	return sortChanges(changes)
}

func sortChanges(changes []Change) []Change {
	sort.Slice(changes, func(i, j int) bool { return changes[i].Pointer < changes[j].Pointer })
	return changes
}

func walk(pointer string, orig, staged any, origPresent, stagedPresent bool, out *[]Change) {
	switch {
	case !origPresent && stagedPresent:
		*out = append(*out, Change{Pointer: pointer, Kind: Added, After: staged})
		return
	case origPresent && !stagedPresent:
		*out = append(*out, Change{Pointer: pointer, Kind: Removed, Before: orig})
		return
	case !origPresent && !stagedPresent:
		return
	}

	ok := kindOf(orig)
	sk := kindOf(staged)
	if ok != sk {
		*out = append(*out, Change{Pointer: pointer, Kind: TypeChanged, Before: ok, After: sk})
		return
	}

	switch ok {
	case "object":
		origMap := orig.(map[string]any)
		stagedMap := staged.(map[string]any)
		keys := make(map[string]bool)
		for k := range origMap {
			keys[k] = true
		}
		for k := range stagedMap {
			keys[k] = true
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)
		for _, k := range sorted {
			ov, inOrig := origMap[k]
			sv, inStaged := stagedMap[k]
			walk(pointer+"/"+escapePointerToken(k), ov, sv, inOrig, inStaged, out)
		}
	case "array":
		origArr := orig.([]any)
		stagedArr := staged.([]any)
		n := len(origArr)
		if len(stagedArr) > n {
			n = len(stagedArr)
		}
		for i := 0; i < n; i++ {
			var ov, sv any
			inOrig := i < len(origArr)
			inStaged := i < len(stagedArr)
			if inOrig {
				ov = origArr[i]
			}
			if inStaged {
				sv = stagedArr[i]
			}
			walk(fmt.Sprintf("%s/%d", pointer, i), ov, sv, inOrig, inStaged, out)
		}
	default:
		if !Equal(orig, staged) {
			*out = append(*out, Change{Pointer: pointer, Kind: Changed, Before: orig, After: staged})
		}
	}
}

// kindOf names the JSON type of a decoded value: null, boolean, number,
// string, array, or object.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// escapePointerToken escapes a JSON object key for use inside a JSON
// Pointer path segment, per RFC 6901 (~1 for "/", ~0 for "~").
func escapePointerToken(k string) string {
	out := make([]byte, 0, len(k))
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, k[i])
		}
	}
	return string(out)
}

// FormatValue renders a decoded JSON value the way `diff` prints it: as
// compact JSON text.
func FormatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Lines renders a Change the way `diff` prints it: a two-space indent,
// then the tagged line for the change's kind.
func Lines(changes []Change) []string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		switch c.Kind {
		case Added:
			lines = append(lines, fmt.Sprintf("  [NEW] %s: %s", c.Pointer, FormatValue(c.After)))
		case Removed:
			lines = append(lines, fmt.Sprintf("  [DELETE] %s: %s", c.Pointer, FormatValue(c.Before)))
		case TypeChanged:
			lines = append(lines, fmt.Sprintf("  %s: %s -> %s", c.Pointer, c.Before, c.After))
		default:
			lines = append(lines, fmt.Sprintf("  %s: %s -> %s", c.Pointer, FormatValue(c.Before), FormatValue(c.After)))
		}
	}
	return lines
}
