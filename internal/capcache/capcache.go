// Package capcache implements the control session's HTTP-OPTIONS-driven
// capability cache: the set of methods a resource allows, probed once and
// never invalidated for the life of the session.
package capcache

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/bobcat66/wfctl/internal/apperr"
	"github.com/bobcat66/wfctl/internal/transport"
)

// Methods is the set of uppercase HTTP method names a resource allows.
type Methods map[string]bool

func (m Methods) Allows(method string) bool { return m[strings.ToUpper(method)] }

// Cache is a session-scoped, never-invalidated capability cache: a
// mutex-guarded map keyed by resource path.
type Cache struct {
	mu       sync.RWMutex
	byResource map[string]Methods
	t        *transport.Transport
}

// New builds a Cache that probes resources via t.
func New(t *transport.Transport) *Cache {
	return &Cache{byResource: make(map[string]Methods), t: t}
}

// CapsOf returns the cached method set for resource, probing with OPTIONS
// on first demand.
func (c *Cache) CapsOf(ctx context.Context, resource string) (Methods, error) {
	c.mu.RLock()
	if m, ok := c.byResource[resource]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	status, resp, err := c.t.Request(ctx, http.MethodOptions, transport.APIPath(resource), nil, nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 400 {
		return nil, apperr.BadStatusf("OPTIONS %s: unexpected status %d", resource, status)
	}

	allow := resp.Header.Get("Allow")
	if allow == "" {
		return nil, apperr.BadHeaderf("OPTIONS %s: response has no Allow header", resource)
	}

	methods := make(Methods)
	for _, tok := range strings.Split(allow, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			methods[strings.ToUpper(tok)] = true
		}
	}

	c.mu.Lock()
	c.byResource[resource] = methods
	c.mu.Unlock()

	return methods, nil
}

// Require fetches the capability set for resource and fails with
// bad_command if method is not permitted.
func (c *Cache) Require(ctx context.Context, resource, method string) error {
	caps, err := c.CapsOf(ctx, resource)
	if err != nil {
		return err
	}
	if !caps.Allows(method) {
		return apperr.BadCommandf("%s is not permitted on %s", method, resource)
	}
	return nil
}
