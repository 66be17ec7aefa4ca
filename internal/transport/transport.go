// Package transport is the control session's single-connection HTTP
// adapter. It knows nothing about commands, staging, or patches — only how
// to issue one request at a time against a fixed host:port and classify the
// result into the nominal / bad_status / bad_connection outcomes the rest
// of this module expects.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/bobcat66/wfctl/internal/apperr"
)

const userAgent = "wfctl/1"

// Response is the transport's success or bad_status result. It is returned
// whenever a response was actually received, even for 4xx/5xx.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
}

// Transport issues requests over one persistent connection to a fixed
// host:port. It deliberately configures net/http.Transport the way the
// teacher's gateway.ProxyClient does: a single explicit *http.Transport, no
// redirect following, and a connection pool pinned to one idle connection
// per host so the session never accidentally pipelines.
type Transport struct {
	client    *http.Client
	baseURL   string // scheme://host:port, no trailing slash
	log       logr.Logger
	corrID    string
}

// Config configures a Transport.
type Config struct {
	Host    string
	Port    int
	Secure  bool
	Timeout time.Duration
	Log     logr.Logger
	// CorrelationID is attached to every diagnostic log line emitted by
	// this transport; it is not sent on the wire except by commit's batch
	// POST, which adds it as a header itself (see internal/session's commit
	// handler).
	CorrelationID string
}

// New builds a Transport. A zero Timeout means no client-side timeout is
// enforced beyond whatever the OS socket layer imposes — timeout policy is
// left to the underlying connection, not imposed here.
func New(cfg Config) *Transport {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	tr := &http.Transport{
		MaxIdleConnsPerHost: 1,
		DisableKeepAlives:   false,
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	log := cfg.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Transport{
		client:  client,
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		log:     log,
		corrID:  cfg.CorrelationID,
	}
}

// HostPort returns "host:port" for use in the Host header of coalesced
// batch requests (see internal/command.Planner).
func (t *Transport) HostPort() string {
	// baseURL is "scheme://host:port"; strip the scheme.
	for i := 0; i < len(t.baseURL); i++ {
		if t.baseURL[i] == '/' && i+1 < len(t.baseURL) && t.baseURL[i+1] == '/' {
			return t.baseURL[i+2:]
		}
	}
	return t.baseURL
}

// Request issues one HTTP request and classifies the result.
//
//   - 200-399: (status, resp, nil) — nominal.
//   - 400-599: (status, resp, nil) — bad_status; resp is still populated so
//     callers can inspect the body.
//   - transport failure: (0, nil, *apperr.Error{Kind: BadConnection}).
//
// rawPath is joined onto the base URL verbatim — callers that need the
// /api/ prefix (every command except the connection probe) must include it
// themselves.
func (t *Transport) Request(ctx context.Context, method, rawPath string, body []byte, headers map[string]string, contentType string) (int, *Response, error) {
	start := time.Now()

	url := t.baseURL + rawPath

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, apperr.BadConnectionf(err, "build request for %s %s", method, rawPath)
	}

	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.V(1).Info("request failed", "corrID", t.corrID, "method", method, "path", rawPath, "err", err)
		return 0, nil, apperr.BadConnectionf(err, "%s %s", method, rawPath)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.log.V(1).Info("response read failed", "corrID", t.corrID, "method", method, "path", rawPath, "err", err)
		return 0, nil, apperr.BadConnectionf(err, "reading response body for %s %s", method, rawPath)
	}

	latency := time.Since(start)
	t.log.V(1).Info("request completed", "corrID", t.corrID, "method", method, "path", rawPath, "status", resp.StatusCode, "latencyMS", latency.Milliseconds())

	r := &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    respBody,
		Latency: latency,
	}
	return resp.StatusCode, r, nil
}

// APIPath prefixes resource with the fixed /api/ root. The connection
// probe (HEAD /) is the one caller that bypasses this.
func APIPath(resource string) string {
	for len(resource) > 0 && resource[0] == '/' {
		resource = resource[1:]
	}
	return "/api/" + resource
}
