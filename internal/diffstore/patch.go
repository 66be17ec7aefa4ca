package diffstore

import (
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"

	"github.com/bobcat66/wfctl/internal/apperr"
)

// ApplyOp applies a single RFC 6902 operation to doc and returns the
// resulting document, backing jp/jpf's staged-patch contract. op must be
// one of add|remove|replace (validated by the caller).
//
// Pointer validity is checked before handing off to evanphx/json-patch: the
// library's own error doesn't distinguish "pointer doesn't resolve" from
// "patch conflicts with current state", so a cheap pre-check (via
// tidwall/gjson, converting the RFC 6901 pointer into gjson's path syntax)
// produces the bad_pointer/bad_patch split callers need.
func ApplyOp(doc json.RawMessage, op, pointer string, value json.RawMessage) (json.RawMessage, error) {
	if err := validatePointerForOp(doc, op, pointer); err != nil {
		return nil, err
	}

	patchDoc := []map[string]any{
		{"op": op, "path": pointer},
	}
	if op != "remove" {
		var v any
		if len(value) > 0 {
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, apperr.BadJSONf(err, "patch value is not valid JSON")
			}
		}
		patchDoc[0]["value"] = v
	}

	patchBytes, err := json.Marshal(patchDoc)
	if err != nil {
		return nil, apperr.BadJSONf(err, "encoding patch operation")
	}

	patch, err := jsonpatch.DecodePatch(patchBytes)
	if err != nil {
		return nil, apperr.BadPatchf(err, "decoding patch %s %s", op, pointer)
	}

	if len(doc) == 0 {
		doc = json.RawMessage("null")
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, apperr.BadPatchf(err, "applying patch %s %s", op, pointer)
	}
	return out, nil
}

// validatePointerForOp checks that pointer resolves as required for op,
// without mutating doc. "add" requires its parent container to exist;
// "remove"/"replace" require the pointer itself to resolve.
func validatePointerForOp(doc json.RawMessage, op, pointer string) error {
	if pointer == "" {
		return nil // root pointer always resolves
	}
	if !strings.HasPrefix(pointer, "/") {
		return apperr.BadPointerf("%q is not a valid JSON pointer", pointer)
	}

	switch op {
	case "add":
		parent, _ := splitPointer(pointer)
		if parent != "" && !resolves(doc, parent) {
			return apperr.BadPointerf("%q does not resolve (parent missing)", pointer)
		}
	case "remove", "replace":
		if !resolves(doc, pointer) {
			return apperr.BadPointerf("%q does not resolve", pointer)
		}
	default:
		return apperr.BadCommandf("unsupported patch op %q", op)
	}
	return nil
}

// Resolves reports whether an RFC 6901 pointer resolves within doc. Exported
// for internal/devsim's `exist` (HEAD ?ptr=) fake-server handler, which needs
// the same pointer-resolution semantics this package already implements.
func Resolves(doc json.RawMessage, pointer string) bool {
	return resolves(doc, pointer)
}

// resolves reports whether an RFC 6901 pointer resolves within doc.
func resolves(doc json.RawMessage, pointer string) bool {
	path, ok := pointerToGJSONPath(pointer)
	if !ok {
		return false
	}
	if path == "" {
		return true
	}
	return gjson.GetBytes(doc, path).Exists()
}

// splitPointer splits an RFC 6901 pointer into its parent pointer and its
// final token.
func splitPointer(pointer string) (parent, last string) {
	i := strings.LastIndex(pointer, "/")
	if i <= 0 {
		return "", pointer[1:]
	}
	return pointer[:i], pointer[i+1:]
}

// pointerToGJSONPath converts an RFC 6901 JSON Pointer into a gjson query
// path: "/" separators become ".", and gjson's own special characters are
// backslash-escaped so a literal key like "a.b" or "a*" round-trips.
func pointerToGJSONPath(pointer string) (string, bool) {
	if pointer == "" {
		return "", true
	}
	if !strings.HasPrefix(pointer, "/") {
		return "", false
	}
	tokens := strings.Split(pointer[1:], "/")
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		parts = append(parts, escapeGJSON(tok))
	}
	return strings.Join(parts, "."), true
}

func escapeGJSON(tok string) string {
	var b strings.Builder
	for _, r := range tok {
		switch r {
		case '.', '*', '?', '|', '#', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
