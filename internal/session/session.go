// Package session implements the control session: the state machine
// (Idle/Transacting), the command dispatcher binding tokenize.Command to
// handler methods, and every command's handler contract.
package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/bobcat66/wfctl/internal/apperr"
	"github.com/bobcat66/wfctl/internal/capcache"
	"github.com/bobcat66/wfctl/internal/command"
	"github.com/bobcat66/wfctl/internal/config"
	"github.com/bobcat66/wfctl/internal/diagnostics"
	"github.com/bobcat66/wfctl/internal/diffstore"
	"github.com/bobcat66/wfctl/internal/report"
	"github.com/bobcat66/wfctl/internal/tokenize"
	"github.com/bobcat66/wfctl/internal/transport"
)

// ErrQuit is returned by Execute for the `quit` command. It is not an
// apperr.Error: quitting is not a failure, the dispatcher loop just needs a
// signal to stop reading commands.
var ErrQuit = errors.New("quit")

// Session owns one connection's worth of state: the transport, the
// capability cache, the diff store and deferred log for the current
// transaction (if any), and the output/diagnostic sinks. Exactly one
// session owns this state at a time; `exec` opens a brand new Session for
// its child rather than sharing any of this.
type Session struct {
	cfg       *config.Config
	transport *transport.Transport
	caps      *capcache.Cache
	store     *diffstore.Store
	planner   *command.Planner
	log       command.Log
	reporter  *report.Reporter
	diag      logr.Logger
	corrID    string
	cmdSeq    int

	transacting bool
	devName     string

	// SummaryProbe, if set, is invoked by the `summary` handler instead of
	// its default no-op. Left nil: `summary` is a reserved no-op, and that
	// is the binding contract (see DESIGN.md's Open Question decision) —
	// this hook exists so wiring a real `GET summary` later is a one-line
	// change, not a new code path.
	SummaryProbe func(ctx context.Context, s *Session) error
}

type fetcher struct{ s *Session }

func (f fetcher) Fetch(ctx context.Context, resource string) (int, []byte, error) {
	status, resp, err := f.s.transport.Request(ctx, http.MethodGet, transport.APIPath(resource), nil, nil, "")
	if err != nil {
		return 0, nil, err
	}
	return status, resp.Body, nil
}

// New constructs a Session: opens the transport, probes the connection
// (HEAD / then GET env/devname), and wires the capability cache, diff
// store and commit planner around it. Construction fails with the matching
// apperr.Kind if either probe step fails.
func New(ctx context.Context, cfg *config.Config, out, errW io.Writer) (*Session, error) {
	corrID := uuid.New().String()
	diag := diagnostics.New(cfg.Debug)
	reporter := report.New(out, errW, cfg.Quiet)

	tr := transport.New(transport.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Log:           diag,
		CorrelationID: corrID,
	})

	s := &Session{
		cfg:       cfg,
		transport: tr,
		reporter:  reporter,
		diag:      diag,
		corrID:    corrID,
	}
	s.caps = capcache.New(tr)
	s.store = diffstore.NewStore(fetcher{s})
	s.planner = command.NewPlanner(tr.HostPort(), diag)

	reporter.Info("Connecting to %s:%d...", cfg.Host, cfg.Port)

	status, _, err := tr.Request(ctx, http.MethodHead, "/", nil, map[string]string{"X-Wfctl-Probe": "1"}, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 400 {
		return nil, apperr.BadStatusf("HEAD /: unexpected status %d", status)
	}

	status, resp, err := tr.Request(ctx, http.MethodGet, transport.APIPath("env/devname"), nil, nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 400 {
		return nil, apperr.BadStatusf("GET env/devname: unexpected status %d", status)
	}
	s.devName = string(resp.Body)
	reporter.Info("connected to %s", s.devName)

	return s, nil
}

// Execute parses and dispatches one command line.
func (s *Session) Execute(ctx context.Context, line string) error {
	cmd, err := tokenize.Parse(line, s.cfg.GlobArgs)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, cmd)
}

// Transacting reports whether the session is currently inside a
// transaction (Idle vs. Transacting).
func (s *Session) Transacting() bool { return s.transacting }

// dispatch runs cmd and logs its outcome under this session's monotonic
// command sequence number, a diagnostic-only counter distinct from corrID:
// cmdSeq orders commands within one session's debug trace, while corrID
// ties a whole session's log lines together across the session's lifetime.
func (s *Session) dispatch(ctx context.Context, cmd *tokenize.Command) error {
	s.cmdSeq++
	start := time.Now()
	err := s.dispatchKind(ctx, cmd)
	s.diag.V(1).Info("handler completed", "corrID", s.corrID, "cmdSeq", s.cmdSeq, "command", cmd.Word, "elapsedMS", time.Since(start).Milliseconds(), "err", err)
	return err
}

func (s *Session) dispatchKind(ctx context.Context, cmd *tokenize.Command) error {
	switch cmd.Kind {
	case tokenize.Quit:
		return ErrQuit
	case tokenize.Fetch:
		return s.handleFetch(ctx, cmd.Args)
	case tokenize.Push:
		return s.handlePush(ctx, cmd.Args)
	case tokenize.Pushf:
		return s.handlePushf(ctx, cmd.Args)
	case tokenize.Delete:
		return s.handleDelete(ctx, cmd.Args)
	case tokenize.Transact:
		return s.handleTransact(ctx, cmd.Args)
	case tokenize.Jp:
		return s.handleJp(ctx, cmd.Args)
	case tokenize.Jpf:
		return s.handleJpf(ctx, cmd.Args)
	case tokenize.Exist:
		return s.handleExist(ctx, cmd.Args)
	case tokenize.Jtest:
		return s.handleJtest(ctx, cmd.Args)
	case tokenize.Jtestf:
		return s.handleJtestf(ctx, cmd.Args)
	case tokenize.Test:
		return s.handleTest(ctx, cmd.Args)
	case tokenize.Testf:
		return s.handleTestf(ctx, cmd.Args)
	case tokenize.Diff:
		return s.handleDiff(ctx, cmd.Args)
	case tokenize.Commit:
		return s.handleCommit(ctx, cmd.Args)
	case tokenize.Abort:
		return s.handleAbort(ctx, cmd.Args)
	case tokenize.Exec:
		return s.handleExec(ctx, cmd.Args)
	case tokenize.Summary:
		return s.handleSummary(ctx, cmd.Args)
	case tokenize.Start:
		return s.handlePipeline(ctx, cmd.Args, true)
	case tokenize.Stop:
		return s.handlePipeline(ctx, cmd.Args, false)
	case tokenize.Reload, tokenize.Restart, tokenize.Reboot, tokenize.Shutdown:
		return s.handleDeviceAction(ctx, cmd.Word)
	default:
		return apperr.BadCommandf("%q has no handler", cmd.Word)
	}
}

func nominal(status int) bool { return status >= 200 && status < 400 }

func statusLine(status int) string {
	return http.StatusText(status)
}
