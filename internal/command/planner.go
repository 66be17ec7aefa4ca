package command

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// BatchRequest is one request in the sequence commit sends: either a
// coalesced run of JSON-Patch operations against one resource, a single
// push, or a single delete.
type BatchRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

type patchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Planner turns a deferred Log into an ordered []BatchRequest. It never
// touches the network itself — internal/session owns sending the result as
// the body of the outer POST /api/batch.
type Planner struct {
	hostPort string
	log      logr.Logger
}

// NewPlanner builds a Planner that stamps every coalesced request with the
// Host header hostPort ("host:port").
func NewPlanner(hostPort string, log logr.Logger) *Planner {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Planner{hostPort: hostPort, log: log}
}

// Plan coalesces a maximal run of consecutive Patch entries against the
// same resource into one BatchRequest; anything else — a different
// resource, or a Push/Delete — flushes the current run first. This always
// treats the first patch in a new run as starting fresh: there is no
// carried-over "previous resource" state left dangling between runs.
func (p *Planner) Plan(entries Log) []BatchRequest {
	batchID := uuid.New().String()
	p.log.V(1).Info("planning batch", "batchID", batchID, "entries", len(entries))

	var reqs []BatchRequest
	var runResource string
	var runOps []patchOp
	inRun := false

	flush := func() {
		if !inRun {
			return
		}
		body, _ := json.Marshal(runOps)
		reqs = append(reqs, p.request("PATCH", runResource, body, "application/json-patch+json"))
		inRun = false
		runOps = nil
		runResource = ""
	}

	for _, e := range entries {
		switch e.Kind {
		case Patch:
			if inRun && e.Resource == runResource {
				runOps = append(runOps, patchOp{Op: e.Op, Path: e.Pointer, Value: e.Value})
				continue
			}
			flush()
			runResource = e.Resource
			runOps = []patchOp{{Op: e.Op, Path: e.Pointer, Value: e.Value}}
			inRun = true
		case Push:
			flush()
			reqs = append(reqs, p.request("PUT", e.Resource, e.Body, "application/json"))
		case Delete:
			flush()
			reqs = append(reqs, p.request("DELETE", e.Resource, nil, ""))
		}
	}
	flush()

	return reqs
}

func (p *Planner) request(method, resource string, body []byte, contentType string) BatchRequest {
	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": "wfctl/1",
		"Host":       p.hostPort,
	}
	if body != nil {
		if contentType != "" {
			headers["Content-Type"] = contentType
		}
		headers["Content-Length"] = strconv.Itoa(len(body))
	}
	return BatchRequest{
		Method:  method,
		URL:     fmt.Sprintf("/api/%s", resource),
		Body:    body,
		Headers: headers,
	}
}
