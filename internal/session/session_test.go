package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/bobcat66/wfctl/internal/config"
	"github.com/bobcat66/wfctl/internal/devsim"
)

// newTestSession spins up a devsim.Server behind an httptest.Server and
// constructs a real Session against it, the way a REPL driver would.
func newTestSession(t *testing.T, sim *devsim.Server, globArgs []string) (*Session, *httptest.Server, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	sim.Seed("env/devname", json.RawMessage(`"testdev"`))

	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host:port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %s: %v", portStr, err)
	}

	var out, errBuf bytes.Buffer
	cfg := &config.Config{Host: host, Port: port, Quiet: false, GlobArgs: globArgs}
	s, err := New(context.Background(), cfg, &out, &errBuf)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s, srv, &out, &errBuf
}

// TestPushOutsideTransactionAppliesImmediately verifies a push issued
// outside a transaction hits the server directly rather than being staged.
func TestPushOutsideTransactionAppliesImmediately(t *testing.T) {
	sim := devsim.New()
	sim.SetAllow("env/devname", "GET, PUT")
	s, _, _, _ := newTestSession(t, sim, nil)

	if err := s.Execute(context.Background(), `push env/devname "alpha"`); err != nil {
		t.Fatalf("push = %v", err)
	}

	v, ok := sim.Resource("env/devname")
	if !ok {
		t.Fatal("env/devname not stored")
	}
	if string(v) != `"alpha"` {
		t.Errorf("stored value = %s, want \"alpha\"", v)
	}
}

// TestCommitCoalescesConsecutivePatchesAcrossAnInterveningPush verifies
// commit groups consecutive same-resource patches into one PATCH request,
// starting a fresh run after an intervening push to a different resource.
func TestCommitCoalescesConsecutivePatchesAcrossAnInterveningPush(t *testing.T) {
	sim := devsim.New()
	sim.Seed("cfg/net", json.RawMessage(`{"ip":"0.0.0.0","mask":"0.0.0.0"}`))
	s, _, _, _ := newTestSession(t, sim, nil)

	ctx := context.Background()
	cmds := []string{
		"transact",
		`jp cfg/net replace /ip "10.0.0.1"`,
		`jp cfg/net replace /mask "255.255.255.0"`,
		`push cfg/host "dev01"`,
		`jp cfg/net add /gw "10.0.0.254"`,
		"commit",
	}
	for _, c := range cmds {
		if err := s.Execute(ctx, c); err != nil {
			t.Fatalf("%q: %v", c, err)
		}
	}

	batches := sim.Batches()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	descs := batches[0]
	if len(descs) != 3 {
		t.Fatalf("batch has %d descriptors, want 3", len(descs))
	}
	if descs[0].Method != "PATCH" || descs[0].URL != "/api/cfg/net" {
		t.Errorf("descs[0] = %+v", descs[0])
	}
	var firstOps []map[string]any
	json.Unmarshal([]byte(descs[0].Body), &firstOps)
	if len(firstOps) != 2 {
		t.Errorf("descs[0] has %d ops, want 2", len(firstOps))
	}
	if descs[1].Method != "PUT" || descs[1].URL != "/api/cfg/host" {
		t.Errorf("descs[1] = %+v", descs[1])
	}
	if descs[2].Method != "PATCH" || descs[2].URL != "/api/cfg/net" {
		t.Errorf("descs[2] = %+v", descs[2])
	}
	var thirdOps []map[string]any
	json.Unmarshal([]byte(descs[2].Body), &thirdOps)
	if len(thirdOps) != 1 {
		t.Errorf("descs[2] has %d ops, want 1 (not coalesced with the first run)", len(thirdOps))
	}

	if s.Transacting() {
		t.Error("session still transacting after commit")
	}
}

// TestDeleteOfMissingResourceInTransactionLeavesStateUntouched verifies a
// failed staged delete neither appends to the deferred log nor drops the
// session out of the transaction.
func TestDeleteOfMissingResourceInTransactionLeavesStateUntouched(t *testing.T) {
	sim := devsim.New()
	s, _, _, _ := newTestSession(t, sim, nil)
	ctx := context.Background()

	if err := s.Execute(ctx, "transact"); err != nil {
		t.Fatalf("transact: %v", err)
	}
	err := s.Execute(ctx, "delete does/not/exist")
	if err == nil {
		t.Fatal("delete on missing resource = nil error, want bad_status")
	}
	if len(s.log) != 0 {
		t.Errorf("deferred log has %d entries, want 0", len(s.log))
	}
	if !s.Transacting() {
		t.Error("session left transacting state after a failed delete")
	}
}

// TestExistReportsPresenceMissingPointerAndMissingResource verifies exist's
// three printable outcomes: 200 when the pointer resolves, 422 when the
// resource exists but the pointer doesn't, and 404 when the resource
// itself is missing.
func TestExistReportsPresenceMissingPointerAndMissingResource(t *testing.T) {
	sim := devsim.New()
	sim.Seed("cfg/net", json.RawMessage(`{"ip":"10.0.0.1"}`))
	s, _, out, _ := newTestSession(t, sim, nil)
	ctx := context.Background()

	out.Reset()
	if err := s.Execute(ctx, "exist cfg/net /ip"); err != nil {
		t.Fatalf("exist (present) = %v", err)
	}
	if !strings.Contains(out.String(), "200 OK") {
		t.Errorf("output = %q, want 200 OK", out.String())
	}

	out.Reset()
	if err := s.Execute(ctx, "exist cfg/net /missing"); err != nil {
		t.Fatalf("exist (missing pointer) = %v", err)
	}
	if !strings.Contains(out.String(), "422 Failed") {
		t.Errorf("output = %q, want 422 Failed", out.String())
	}

	out.Reset()
	if err := s.Execute(ctx, "exist cfg/other /ip"); err != nil {
		t.Fatalf("exist (missing resource) = %v", err)
	}
	if !strings.Contains(out.String(), "404 Not Found") {
		t.Errorf("output = %q, want 404 Not Found", out.String())
	}
}

// TestDeviceActionRejectedInsideTransactionEmitsNoRequest verifies reboot
// (and the other device actions) is rejected while transacting, without
// touching the deferred log, the transaction state, or the network.
func TestDeviceActionRejectedInsideTransactionEmitsNoRequest(t *testing.T) {
	sim := devsim.New()
	s, _, _, _ := newTestSession(t, sim, nil)
	ctx := context.Background()

	if err := s.Execute(ctx, "transact"); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if err := s.Execute(ctx, "reboot"); err == nil {
		t.Fatal("reboot while transacting = nil error, want bad_command")
	}
	if len(s.log) != 0 {
		t.Errorf("deferred log has %d entries, want 0", len(s.log))
	}
	if !s.Transacting() {
		t.Error("session left transacting state after a rejected reboot")
	}
	if len(sim.Actions()) != 0 {
		t.Errorf("device actions recorded = %v, want none", sim.Actions())
	}
}

// TestGlobArgVariableResolvesInPlaceOrEmptyWhenOutOfRange verifies $N
// substitution: a valid index is replaced with the corresponding glob arg,
// and an out-of-range index resolves to the empty string.
func TestGlobArgVariableResolvesInPlaceOrEmptyWhenOutOfRange(t *testing.T) {
	sim := devsim.New()
	sim.SetAllow("env/devname", "GET, PUT")
	s, _, _, _ := newTestSession(t, sim, []string{"alpha", "beta"})
	ctx := context.Background()

	if err := s.Execute(ctx, "push env/devname $0"); err != nil {
		t.Fatalf("push $0 = %v", err)
	}
	v, _ := sim.Resource("env/devname")
	if string(v) != `alpha` {
		t.Errorf("stored value = %s, want alpha", v)
	}

	if err := s.Execute(ctx, "push env/devname $7"); err != nil {
		t.Fatalf("push $7 = %v", err)
	}
	v, _ = sim.Resource("env/devname")
	if string(v) != `` {
		t.Errorf("stored value = %q, want empty string", v)
	}
}

// TestAbortLeavesNoTrace verifies transact; abort; transact emits no HTTP
// request for the staged work and leaves no observable trace.
func TestAbortLeavesNoTrace(t *testing.T) {
	sim := devsim.New()
	sim.Seed("cfg/net", json.RawMessage(`{"ip":"0.0.0.0"}`))
	s, _, _, _ := newTestSession(t, sim, nil)
	ctx := context.Background()

	if err := s.Execute(ctx, "transact"); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if err := s.Execute(ctx, `jp cfg/net replace /ip "9.9.9.9"`); err != nil {
		t.Fatalf("jp: %v", err)
	}
	if err := s.Execute(ctx, "abort"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := s.Execute(ctx, "transact"); err != nil {
		t.Fatalf("second transact: %v", err)
	}
	if len(s.log) != 0 {
		t.Errorf("deferred log has %d entries after abort, want 0", len(s.log))
	}
	if len(sim.Batches()) != 0 {
		t.Errorf("batches sent = %d, want 0 (abort issues no network traffic)", len(sim.Batches()))
	}
	v, _ := sim.Resource("cfg/net")
	if string(v) != `{"ip":"0.0.0.0"}` {
		t.Errorf("server value mutated by an aborted transaction: %s", v)
	}
}
