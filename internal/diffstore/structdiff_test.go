package diffstore

import (
	"encoding/json"
	"testing"
)

func decodeOrFatal(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode(json.RawMessage(s))
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

func TestWalkDetectsAddRemoveChangeTypeChange(t *testing.T) {
	orig := decodeOrFatal(t, `{"a":1,"b":{"c":"x"},"d":[1,2]}`)
	staged := decodeOrFatal(t, `{"a":"1","b":{"c":"y","e":true},"d":[1]}`)

	changes := Walk(orig, staged)

	byPointer := make(map[string]Change)
	for _, c := range changes {
		byPointer[c.Pointer] = c
	}

	tc, ok := byPointer["/a"]
	if !ok || tc.Kind != TypeChanged {
		t.Errorf("/a: want TypeChanged, got %+v", byPointer["/a"])
	}

	ch, ok := byPointer["/b/c"]
	if !ok || ch.Kind != Changed {
		t.Errorf("/b/c: want Changed, got %+v", byPointer["/b/c"])
	}

	add, ok := byPointer["/b/e"]
	if !ok || add.Kind != Added {
		t.Errorf("/b/e: want Added, got %+v", byPointer["/b/e"])
	}

	rem, ok := byPointer["/d/1"]
	if !ok || rem.Kind != Removed {
		t.Errorf("/d/1: want Removed, got %+v", byPointer["/d/1"])
	}
}

func TestWalkNoDifferences(t *testing.T) {
	orig := decodeOrFatal(t, `{"a":1,"b":[1,2,3]}`)
	staged := decodeOrFatal(t, `{"a":1,"b":[1,2,3]}`)
	if changes := Walk(orig, staged); len(changes) != 0 {
		t.Errorf("Walk() = %v, want no changes", changes)
	}
}

func TestEscapePointerToken(t *testing.T) {
	cases := map[string]string{
		"a/b": "a~1b",
		"a~b": "a~0b",
		"ab":  "ab",
	}
	for in, want := range cases {
		if got := escapePointerToken(in); got != want {
			t.Errorf("escapePointerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLinesFormatsPerSpec(t *testing.T) {
	changes := []Change{
		{Pointer: "/x", Kind: Added, After: "v"},
		{Pointer: "/y", Kind: Removed, Before: "v"},
		{Pointer: "/z", Kind: TypeChanged, Before: "string", After: "number"},
		{Pointer: "/w", Kind: Changed, Before: float64(1), After: float64(2)},
	}
	lines := Lines(changes)
	want := []string{
		`  [NEW] /x: "v"`,
		`  [DELETE] /y: "v"`,
		`  /z: string -> number`,
		`  /w: 1 -> 2`,
	}
	if len(lines) != len(want) {
		t.Fatalf("Lines() = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Lines()[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}
