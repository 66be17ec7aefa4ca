package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/bobcat66/wfctl/internal/apperr"
	"github.com/bobcat66/wfctl/internal/command"
	"github.com/bobcat66/wfctl/internal/diffstore"
	"github.com/bobcat66/wfctl/internal/transport"
)

// printJSON writes body to stdout, pretty-printed when not quiet. Pretty
// printing is purely cosmetic (tidwall/pretty never touches the bytes that
// go over the wire) so it can't change command semantics.
func (s *Session) printJSON(body []byte) {
	if len(body) == 0 {
		return
	}
	if s.reporter.Quiet {
		s.reporter.Result("%s", string(body))
		return
	}
	s.reporter.Result("%s", string(pretty.Pretty(body)))
}

func (s *Session) requireMethod(ctx context.Context, resource, method string) error {
	return s.caps.Require(ctx, resource, method)
}

// handleFetch is `fetch(resource)`: a plain GET, never staged even inside a
// transaction.
func (s *Session) handleFetch(ctx context.Context, args []string) error {
	resource := args[0]
	status, resp, err := s.transport.Request(ctx, http.MethodGet, transport.APIPath(resource), nil, nil, "")
	if err != nil {
		return err
	}
	if !nominal(status) {
		return apperr.BadStatusf("GET %s: unexpected status %d", resource, status)
	}
	s.printJSON(resp.Body)
	return nil
}

func (s *Session) handlePush(ctx context.Context, args []string) error {
	return s.push(ctx, args[0], []byte(args[1]))
}

func (s *Session) handlePushf(ctx context.Context, args []string) error {
	body, err := readFile(args[1])
	if err != nil {
		return err
	}
	return s.push(ctx, args[0], body)
}

// push is the shared push(resource, body) contract: full replacement,
// immediate outside a transaction, staged inside one.
func (s *Session) push(ctx context.Context, resource string, body []byte) error {
	if err := s.requireMethod(ctx, resource, http.MethodPut); err != nil {
		return err
	}

	if !s.transacting {
		status, _, err := s.transport.Request(ctx, http.MethodPut, transport.APIPath(resource), body, nil, "application/json")
		if err != nil {
			return err
		}
		if !nominal(status) {
			return apperr.BadStatusf("PUT %s: unexpected status %d", resource, status)
		}
		s.reporter.Result("%d %s", status, statusLine(status))
		return nil
	}

	var parsed json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apperr.BadJSONf(err, "push body for %s is not valid JSON", resource)
	}
	if _, err := s.store.Stage(ctx, resource, parsed); err != nil {
		return err
	}
	s.log.Append(command.NewPush(resource, parsed))
	return nil
}

func (s *Session) handleDelete(ctx context.Context, args []string) error {
	resource := args[0]
	if err := s.requireMethod(ctx, resource, http.MethodDelete); err != nil {
		return err
	}

	if !s.transacting {
		status, _, err := s.transport.Request(ctx, http.MethodDelete, transport.APIPath(resource), nil, nil, "")
		if err != nil {
			return err
		}
		if !nominal(status) {
			return apperr.BadStatusf("DELETE %s: unexpected status %d", resource, status)
		}
		s.reporter.Result("%d %s", status, statusLine(status))
		return nil
	}

	if _, err := s.store.StageDelete(ctx, resource); err != nil {
		return err
	}
	s.log.Append(command.NewDelete(resource))
	return nil
}

func (s *Session) handleJp(ctx context.Context, args []string) error {
	return s.jp(ctx, args[0], args[1], args[2], []byte(args[3]))
}

func (s *Session) handleJpf(ctx context.Context, args []string) error {
	body, err := readFile(args[3])
	if err != nil {
		return err
	}
	return s.jp(ctx, args[0], args[1], args[2], body)
}

var patchOps = map[string]bool{"add": true, "remove": true, "replace": true}

// jp is the shared jp(resource, op, pointer, body) contract.
func (s *Session) jp(ctx context.Context, resource, op, pointer string, body []byte) error {
	if !patchOps[op] {
		return apperr.BadCommandf("%q is not a valid JSON-Patch op (want add|remove|replace)", op)
	}
	if err := s.requireMethod(ctx, resource, http.MethodPatch); err != nil {
		return err
	}

	var value json.RawMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &value); err != nil {
			return apperr.BadJSONf(err, "patch value for %s is not valid JSON", resource)
		}
	}

	if !s.transacting {
		entry := map[string]any{"op": op, "path": pointer}
		if op != "remove" {
			entry["value"] = decodeOrNil(value)
		}
		opBytes, _ := json.Marshal([]map[string]any{entry})
		status, _, err := s.transport.Request(ctx, http.MethodPatch, transport.APIPath(resource), opBytes, nil, "application/json-patch+json")
		if err != nil {
			return err
		}
		if !nominal(status) {
			return apperr.BadStatusf("PATCH %s: unexpected status %d", resource, status)
		}
		s.reporter.Result("%d %s", status, statusLine(status))
		return nil
	}

	if _, err := s.store.StagePatch(ctx, resource, op, pointer, value); err != nil {
		return err
	}
	s.log.Append(command.NewPatch(resource, op, pointer, value))
	return nil
}

func decodeOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	json.Unmarshal(raw, &v)
	return v
}

// handleExist is `exist(resource, pointer)`: HEAD resource?ptr=pointer,
// status suppressed and mapped to the three printable outcomes
// (200/404/422).
func (s *Session) handleExist(ctx context.Context, args []string) error {
	resource, pointer := args[0], args[1]
	path := fmt.Sprintf("%s?ptr=%s", transport.APIPath(resource), pointer)
	status, _, err := s.transport.Request(ctx, http.MethodHead, path, nil, nil, "")
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		s.reporter.Result("200 OK")
	case http.StatusNotFound:
		s.reporter.Result("404 Not Found")
	case http.StatusUnprocessableEntity:
		s.reporter.Result("422 Failed")
	default:
		if !nominal(status) {
			return apperr.BadStatusf("HEAD %s: unexpected status %d", resource, status)
		}
	}
	return nil
}

func (s *Session) handleJtest(ctx context.Context, args []string) error {
	return s.jtest(ctx, args[0], args[1], []byte(args[2]))
}

func (s *Session) handleJtestf(ctx context.Context, args []string) error {
	body, err := readFile(args[2])
	if err != nil {
		return err
	}
	return s.jtest(ctx, args[0], args[1], body)
}

// jtest is the shared jtest(resource, pointer, value) contract: a
// server-side RFC 6902 `test` op. Never touches the diff store and always
// hits the server, transaction or not.
func (s *Session) jtest(ctx context.Context, resource, pointer string, body []byte) error {
	if err := s.requireMethod(ctx, resource, http.MethodPatch); err != nil {
		return err
	}
	value := decodeOrNil(json.RawMessage(body))
	patchBytes, _ := json.Marshal([]map[string]any{{"op": "test", "path": pointer, "value": value}})

	status, _, err := s.transport.Request(ctx, http.MethodPatch, transport.APIPath(resource), patchBytes, nil, "application/json-patch+json")
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		s.reporter.Result("200 OK")
	case http.StatusUnprocessableEntity:
		s.reporter.Result("422 Failed")
	case http.StatusNotFound:
		s.reporter.Result("404 Not Found")
	default:
		if !nominal(status) {
			return apperr.BadStatusf("PATCH %s: unexpected status %d", resource, status)
		}
	}
	return nil
}

func (s *Session) handleTest(ctx context.Context, args []string) error {
	return s.test(ctx, args[0], []byte(args[1]))
}

func (s *Session) handleTestf(ctx context.Context, args []string) error {
	body, err := readFile(args[1])
	if err != nil {
		return err
	}
	return s.test(ctx, args[0], body)
}

// test is the shared test(resource, body) contract: client-side structural
// equality against a fresh GET, regardless of transaction state.
func (s *Session) test(ctx context.Context, resource string, body []byte) error {
	if err := s.requireMethod(ctx, resource, http.MethodGet); err != nil {
		return err
	}
	status, resp, err := s.transport.Request(ctx, http.MethodGet, transport.APIPath(resource), nil, nil, "")
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		s.reporter.Result("404 Not Found")
		return nil
	}
	if !nominal(status) {
		return apperr.BadStatusf("GET %s: unexpected status %d", resource, status)
	}

	want, err := diffstore.Decode(body)
	if err != nil {
		return apperr.BadJSONf(err, "test value for %s is not valid JSON", resource)
	}
	got, err := diffstore.Decode(resp.Body)
	if err != nil {
		return apperr.BadJSONf(err, "server response for %s is not valid JSON", resource)
	}

	if diffstore.Equal(want, got) {
		s.reporter.Result("200 OK")
	} else {
		s.reporter.Result("422 Failed")
	}
	return nil
}

// handleDiff is `diff`: no-op outside a transaction; otherwise print every
// changed record's structural diff.
func (s *Session) handleDiff(ctx context.Context, args []string) error {
	if !s.transacting {
		return nil
	}
	for _, entry := range s.store.Changed() {
		s.reporter.Result("%s", entry.Resource)
		for _, line := range diffstore.Lines(diffstore.WalkRecord(entry.Record)) {
			s.reporter.Result("%s", line)
		}
	}
	return nil
}

// batchDescriptor mirrors the wire shape POST /api/batch expects: body is a
// string, not raw JSON.
type batchDescriptor struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type batchResult struct {
	Status int `json:"status"`
}

// handleCommit is `commit`: no-op outside a transaction; otherwise plans
// the deferred log, sends it as one POST /api/batch, and unconditionally
// clears transaction state regardless of the batch response.
func (s *Session) handleCommit(ctx context.Context, args []string) error {
	if !s.transacting {
		return nil
	}

	reqs := s.planner.Plan(s.log)
	descs := make([]batchDescriptor, 0, len(reqs))
	for _, r := range reqs {
		descs = append(descs, batchDescriptor{
			Method:  r.Method,
			URL:     r.URL,
			Body:    string(r.Body),
			Headers: r.Headers,
		})
	}
	body, err := json.Marshal(descs)
	if err != nil {
		return apperr.BadJSONf(err, "encoding batch request")
	}

	s.transacting = false
	s.store.Reset()
	s.log.Reset()

	headers := map[string]string{"X-Wfctl-Correlation-Id": s.corrID}
	status, resp, err := s.transport.Request(ctx, http.MethodPost, transport.APIPath("batch"), body, headers, "application/json")
	if err != nil {
		return err
	}
	if !nominal(status) {
		return apperr.BadStatusf("POST batch: unexpected status %d", status)
	}
	s.reporter.Result("%d %s", status, statusLine(status))

	var results []batchResult
	if json.Unmarshal(resp.Body, &results) == nil {
		for i, r := range results {
			if i < len(descs) {
				s.reporter.Info("  %s %s -> %d", descs[i].Method, descs[i].URL, r.Status)
			}
		}
	}
	return nil
}

// handleAbort is `abort`: leave the transaction, clear local state, no
// network traffic.
func (s *Session) handleAbort(ctx context.Context, args []string) error {
	s.transacting = false
	s.store.Reset()
	s.log.Reset()
	return nil
}

// handleTransact is `transact`: enters the transaction; a redundant call
// while already transacting is a warning, not an error.
func (s *Session) handleTransact(ctx context.Context, args []string) error {
	if s.transacting {
		s.reporter.Warn("already in a transaction")
		return nil
	}
	s.transacting = true
	return nil
}

// handleExec is `exec(path)`: forbidden inside a transaction. Otherwise
// opens path and drives each line through a brand new child Session
// sharing host/port/quiet/keepgoing/globargs; a child failure is reported
// but does not unwind the parent.
func (s *Session) handleExec(ctx context.Context, args []string) error {
	if s.transacting {
		return apperr.BadCommandf("exec is not permitted inside a transaction")
	}
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return apperr.BadFilef(err, "opening %s", path)
	}
	defer f.Close()

	child, err := New(ctx, s.cfg, s.reporter.Out, s.reporter.Err)
	if err != nil {
		return apperr.BadFilef(err, "exec %s: child session failed to connect", path)
	}

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		if text == "" {
			continue
		}
		if execErr := child.Execute(ctx, text); execErr != nil {
			s.reporter.Error("%s:%d: %v", path, line, execErr)
		}
	}
	if err := scanner.Err(); err != nil {
		return apperr.BadFilef(err, "reading %s", path)
	}
	return nil
}

// handleSummary is `summary`: reserved, no-op returning nominal.
// SummaryProbe lets a caller wire a real check later without touching this
// dispatch path.
func (s *Session) handleSummary(ctx context.Context, args []string) error {
	if s.SummaryProbe != nil {
		return s.SummaryProbe(ctx, s)
	}
	return nil
}

// handlePipeline is start(name)/stop(name): forbidden in a transaction.
func (s *Session) handlePipeline(ctx context.Context, args []string, active bool) error {
	if s.transacting {
		return apperr.BadCommandf("pipeline control is not permitted inside a transaction")
	}
	name := args[0]
	body, _ := json.Marshal(map[string]any{"pipeline": name, "active": active})
	status, _, err := s.transport.Request(ctx, http.MethodPost, transport.APIPath("live/pipelines/running"), body, nil, "application/json")
	if err != nil {
		return err
	}
	if !nominal(status) {
		return apperr.BadStatusf("POST live/pipelines/running: unexpected status %d", status)
	}
	s.reporter.Result("%d %s", status, statusLine(status))
	return nil
}

// handleDeviceAction is reload/restart/reboot/shutdown: forbidden in a
// transaction, POST actions/<name> with no body.
func (s *Session) handleDeviceAction(ctx context.Context, word string) error {
	if s.transacting {
		return apperr.BadCommandf("%s is not permitted inside a transaction", word)
	}
	status, _, err := s.transport.Request(ctx, http.MethodPost, transport.APIPath("actions/"+word), nil, nil, "")
	if err != nil {
		return err
	}
	if !nominal(status) {
		return apperr.BadStatusf("POST actions/%s: unexpected status %d", word, status)
	}
	s.reporter.Result("%d %s", status, statusLine(status))
	return nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.BadFilef(err, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.BadFilef(nil, "%s is not a regular file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.BadFilef(err, "reading %s", path)
	}
	return data, nil
}
