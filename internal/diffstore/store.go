package diffstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/bobcat66/wfctl/internal/apperr"
)

// Fetcher is the one capability Store needs from the transport layer: a
// status-suppressed GET. Store depends on this interface rather than
// internal/transport directly, so the diff/patch logic here can be tested
// without an HTTP server.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (status int, body []byte, err error)
}

// Store holds one transaction's diff records, keyed by resource path. It is
// owned by exactly one session and driven synchronously from the command
// dispatch loop, so — unlike capcache, which can be probed repeatedly
// across a session's whole lifetime — it needs no mutex.
type Store struct {
	fetcher Fetcher
	records map[string]*Record
}

// NewStore builds an empty Store.
func NewStore(f Fetcher) *Store {
	return &Store{fetcher: f, records: make(map[string]*Record)}
}

// Get returns the existing record for resource, if any.
func (s *Store) Get(resource string) (*Record, bool) {
	r, ok := s.records[resource]
	return r, ok
}

// Reset clears every record (used by abort, and by commit once it has built
// its batch body, before the batch POST is sent).
func (s *Store) Reset() {
	s.records = make(map[string]*Record)
}

// Changed returns every record whose staged value differs from orig,
// ordered by resource path for deterministic `diff` output.
func (s *Store) Changed() []struct {
	Resource string
	Record   *Record
} {
	var out []struct {
		Resource string
		Record   *Record
	}
	for resource, rec := range s.records {
		if rec.Changed() {
			out = append(out, struct {
				Resource string
				Record   *Record
			}{resource, rec})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// EnsureCached guarantees a record exists for resource, fetching its
// current value from the server if this is the first time resource is
// touched this transaction. It never modifies Staged on an already-cached
// record — callers decide how to update Staged themselves, which is what
// lets jp seed its baseline from Orig only on first touch.
func (s *Store) EnsureCached(ctx context.Context, resource string, allow404 bool) (*Record, error) {
	if rec, ok := s.records[resource]; ok {
		return rec, nil
	}

	status, body, err := s.fetcher.Fetch(ctx, resource)
	if err != nil {
		return nil, err
	}

	if status == 404 && allow404 {
		rec := &Record{Orig: Orig{Kind: OrigMissing}}
		s.records[resource] = rec
		return rec, nil
	}
	if status < 200 || status >= 400 {
		return nil, apperr.BadStatusf("GET %s: unexpected status %d", resource, status)
	}

	if _, err := Decode(body); err != nil {
		return nil, apperr.BadJSONf(err, "GET %s returned invalid JSON", resource)
	}

	rec := &Record{Orig: Orig{Kind: OrigPresent, Value: json.RawMessage(body)}}
	s.records[resource] = rec
	return rec, nil
}

// Stage records body as a pushed value for resource, caching orig first if
// needed. 404 on first fetch is allowed: a push can create a resource that
// doesn't exist yet.
func (s *Store) Stage(ctx context.Context, resource string, body json.RawMessage) (*Record, error) {
	rec, err := s.EnsureCached(ctx, resource, true)
	if err != nil {
		return nil, err
	}
	rec.Staged = Staged{Kind: StagedValue, Value: body}
	return rec, nil
}

// StageDelete marks resource as staged for deletion. 404 on first fetch is
// not allowed: you cannot delete what the server doesn't have.
func (s *Store) StageDelete(ctx context.Context, resource string) (*Record, error) {
	rec, err := s.EnsureCached(ctx, resource, false)
	if err != nil {
		return nil, err
	}
	rec.Staged = Staged{Kind: StagedDeleted}
	return rec, nil
}

// StagePatch applies a single RFC 6902 operation to resource's staged value,
// seeding that value from Orig when nothing has been staged for resource yet
// this transaction (after a push, the pushed value is what gets patched).
func (s *Store) StagePatch(ctx context.Context, resource, op, pointer string, value json.RawMessage) (*Record, error) {
	rec, err := s.EnsureCached(ctx, resource, false)
	if err != nil {
		return nil, err
	}
	if rec.Staged.Kind == StagedUnset {
		rec.Staged = Staged{Kind: StagedValue, Value: rec.Orig.Value}
	}
	out, err := ApplyOp(rec.Staged.Value, op, pointer, value)
	if err != nil {
		return nil, err
	}
	rec.Staged.Value = out
	return rec, nil
}
