// Package devsim is a fake device API exercised only by this repository's
// own tests — it is not shipped as a production server. It implements just
// enough of the device's HTTP surface (OPTIONS capability discovery,
// GET/PUT/DELETE/PATCH on arbitrary resources, the batch endpoint, actions,
// pipelines, and the connection probe) for internal/session's integration
// tests to drive end-to-end scenarios over real HTTP via httptest.Server.
package devsim

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/bobcat66/wfctl/internal/diffstore"
)

const defaultAllow = "GET, PUT, DELETE, PATCH"

// Server holds an in-memory resource tree plus recorded side effects
// (actions invoked, pipeline state) so tests can assert on them.
type Server struct {
	mu        sync.Mutex
	resources map[string]json.RawMessage
	allow     map[string]string
	actions   []string
	pipelines map[string]bool
	batches   [][]batchDescriptor
}

// New builds an empty Server.
func New() *Server {
	return &Server{
		resources: make(map[string]json.RawMessage),
		allow:     make(map[string]string),
		pipelines: make(map[string]bool),
	}
}

// Seed sets resource's initial value.
func (s *Server) Seed(resource string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resource] = value
}

// SetAllow overrides the Allow header OPTIONS reports for resource. Unset
// resources default to defaultAllow.
func (s *Server) SetAllow(resource, allow string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow[resource] = allow
}

// Actions returns every POST actions/<name> this server has received, in
// order.
func (s *Server) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.actions))
	copy(out, s.actions)
	return out
}

// Pipeline reports the last active state set for name via
// POST live/pipelines/running, and whether it was ever set.
func (s *Server) Pipeline(name string) (active, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok = s.pipelines[name]
	return
}

// Resource returns the current stored value for resource, if any.
func (s *Server) Resource(resource string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.resources[resource]
	return v, ok
}

// Batches returns the request-descriptor arrays this server's /api/batch
// endpoint has received, in order, so a test can assert on coalescing.
func (s *Server) Batches() [][]batchDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]batchDescriptor, len(s.batches))
	copy(out, s.batches)
	return out
}

// Router builds the chi router serving this Server's state.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodHead, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/batch", s.handleBatch)
		r.Post("/actions/{name}", s.handleAction)
		r.Post("/live/pipelines/running", s.handlePipeline)

		r.Get("/*", s.handleGet)
		r.Put("/*", s.handlePut)
		r.Delete("/*", s.handleDelete)
		r.Patch("/*", s.handlePatch)
		r.Options("/*", s.handleOptions)
		r.Method(http.MethodHead, "/*", http.HandlerFunc(s.handleHead))
	})

	return r
}

func resourceOf(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	s.mu.Lock()
	allow, ok := s.allow[resource]
	s.mu.Unlock()
	if !ok {
		allow = defaultAllow
	}
	if allow != "" {
		w.Header().Set("Allow", allow)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	s.mu.Lock()
	v, ok := s.resources[resource]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(v)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.resources[resource] = json.RawMessage(body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	s.mu.Lock()
	_, ok := s.resources[resource]
	delete(s.resources, resource)
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	ptr := r.URL.Query().Get("ptr")

	s.mu.Lock()
	v, ok := s.resources[resource]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if ptr == "" || diffstore.Resolves(v, ptr) {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusUnprocessableEntity)
}

// handlePatch applies an RFC 6902 patch array, including a bare "test"
// operation (jtest/jtestf): evanphx/json-patch fails Apply the same way for
// a failed test as for any other conflict, which is exactly the 422 this
// fake needs to report.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	resource := resourceOf(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.resources[resource]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	out, err := patch.Apply(doc)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	s.resources[resource] = json.RawMessage(out)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	s.actions = append(s.actions, name)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pipeline string `json:"pipeline"`
		Active   bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.pipelines[req.Pipeline] = req.Active
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// batchDescriptor mirrors one entry of the batch POST body.
type batchDescriptor struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// batchResult is one item of this fake's batch response; real devices are
// free to shape this differently, but devsim needs *something* for
// internal/session's per-item informational output to parse in tests.
type batchResult struct {
	Status int `json:"status"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var descs []batchDescriptor
	if err := json.NewDecoder(r.Body).Decode(&descs); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.batches = append(s.batches, descs)
	s.mu.Unlock()

	results := make([]batchResult, 0, len(descs))
	for _, d := range descs {
		results = append(results, batchResult{Status: s.executeDescriptor(d)})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(results)
}

// executeDescriptor applies one batch entry directly against this server's
// resource map, mirroring what the real device would do when it replays
// the batch atomically.
func (s *Server) executeDescriptor(d batchDescriptor) int {
	resource := strings.TrimPrefix(d.URL, "/api/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch d.Method {
	case http.MethodPut:
		s.resources[resource] = json.RawMessage(d.Body)
		return http.StatusOK
	case http.MethodDelete:
		if _, ok := s.resources[resource]; !ok {
			return http.StatusNotFound
		}
		delete(s.resources, resource)
		return http.StatusOK
	case http.MethodPatch:
		doc, ok := s.resources[resource]
		if !ok {
			return http.StatusNotFound
		}
		patch, err := jsonpatch.DecodePatch([]byte(d.Body))
		if err != nil {
			return http.StatusBadRequest
		}
		out, err := patch.Apply(doc)
		if err != nil {
			return http.StatusUnprocessableEntity
		}
		s.resources[resource] = json.RawMessage(out)
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}
