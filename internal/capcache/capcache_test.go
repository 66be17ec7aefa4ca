package capcache

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/bobcat66/wfctl/internal/apperr"
	"github.com/bobcat66/wfctl/internal/transport"
)

func newTestCache(t *testing.T, handler http.HandlerFunc) (*Cache, *int32, *httptest.Server) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	tr := transport.New(transport.Config{Host: host, Port: port})
	return New(tr), &calls, srv
}

func TestCapsOfCachesAfterFirstProbe(t *testing.T) {
	cache, calls, srv := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			t.Errorf("method = %s, want OPTIONS", r.Method)
		}
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		caps, err := cache.CapsOf(ctx, "env/devname")
		if err != nil {
			t.Fatalf("CapsOf() error = %v", err)
		}
		if !caps.Allows("GET") || !caps.Allows("PUT") || caps.Allows("DELETE") {
			t.Errorf("caps = %v, want GET+PUT only", caps)
		}
	}

	if *calls != 1 {
		t.Errorf("OPTIONS probed %d times, want exactly 1 (never invalidated)", *calls)
	}
}

func TestCapsOfMissingAllowHeader(t *testing.T) {
	cache, _, srv := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	_, err := cache.CapsOf(context.Background(), "cfg/net")
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.BadHeader {
		t.Errorf("error = %v, want bad_header", err)
	}
}

func TestRequireRejectsDisallowedMethod(t *testing.T) {
	cache, _, srv := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := cache.Require(context.Background(), "cfg/net", "DELETE")
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.BadCommand {
		t.Errorf("error = %v, want bad_command", err)
	}
}

func TestRequireAllowsPermittedMethod(t *testing.T) {
	cache, _, srv := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET, PUT, DELETE")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	if err := cache.Require(context.Background(), "cfg/net", "PUT"); err != nil {
		t.Errorf("Require() error = %v, want nil", err)
	}
}
