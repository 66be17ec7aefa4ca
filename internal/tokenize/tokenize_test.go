package tokenize

import (
	"testing"

	"github.com/bobcat66/wfctl/internal/apperr"
)

func TestParseArityTable(t *testing.T) {
	cases := []struct {
		line     string
		kind     Kind
		wantArgs int
	}{
		{"quit", Quit, 1},
		{"fetch env/devname", Fetch, 2},
		{"push env/devname alpha", Push, 2},
		{"pushf cfg/net /tmp/x.json", Pushf, 3},
		{"delete cfg/net", Delete, 2},
		{"transact", Transact, 1},
		{"jp cfg/net replace /ip 10.0.0.1", Jp, 4},
		{"jpf cfg/net replace /ip /tmp/x.json", Jpf, 5},
		{"exist cfg/net /ip", Exist, 3},
		{"jtest cfg/net /ip 10.0.0.1", Jtest, 3},
		{"jtestf cfg/net /ip /tmp/x.json", Jtestf, 4},
		{"test cfg/net {}", Test, 2},
		{"testf cfg/net /tmp/x.json", Testf, 3},
		{"diff", Diff, 1},
		{"commit", Commit, 1},
		{"abort", Abort, 1},
		{"exec /tmp/script.txt", Exec, 2},
		{"summary", Summary, 1},
		{"start mypipeline", Start, 2},
		{"stop mypipeline", Stop, 2},
		{"reload", Reload, 1},
		{"restart", Restart, 1},
		{"reboot", Reboot, 1},
		{"shutdown", Shutdown, 1},
	}

	for _, tc := range cases {
		cmd, err := Parse(tc.line, nil)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tc.line, err)
			continue
		}
		if cmd.Kind != tc.kind {
			t.Errorf("Parse(%q).Kind = %v, want %v", tc.line, cmd.Kind, tc.kind)
		}
		if len(cmd.Args) != tc.wantArgs {
			t.Errorf("Parse(%q) yielded %d args, want %d", tc.line, len(cmd.Args), tc.wantArgs)
		}
	}
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("frobnicate foo", nil)
	if err == nil {
		t.Fatal("Parse() error = nil, want bad_command")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.BadCommand {
		t.Errorf("error = %v, want *apperr.Error{Kind: BadCommand}", err)
	}
}

func TestParseArityShortfall(t *testing.T) {
	_, err := Parse("push", nil)
	if err == nil {
		t.Fatal("Parse() error = nil, want bad_command for missing positional arg")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.BadCommand {
		t.Errorf("error = %v, want *apperr.Error{Kind: BadCommand}", err)
	}
}

func TestParseEmptyBodyIsValid(t *testing.T) {
	cmd, err := Parse("push env/devname", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cmd.Args) != 2 {
		t.Fatalf("want 2 args, got %d", len(cmd.Args))
	}
	if cmd.Args[1] != "" {
		t.Errorf("body = %q, want empty string", cmd.Args[1])
	}
}

func TestVariableSubstitution(t *testing.T) {
	globArgs := []string{"alpha", "beta"}

	cmd, err := Parse("push env/devname $0", globArgs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Args[1] != "alpha" {
		t.Errorf("body = %q, want alpha", cmd.Args[1])
	}

	cmd, err = Parse("push env/devname $7", globArgs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Args[1] != "" {
		t.Errorf("body = %q, want empty string for out-of-range $7", cmd.Args[1])
	}
}

func TestVariableSubstitutionOnlyExactToken(t *testing.T) {
	globArgs := []string{"alpha"}
	cmd, err := Parse("push env/devname prefix-$0", globArgs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Args[1] != "prefix-$0" {
		t.Errorf("body = %q, want literal prefix-$0 (no partial substitution)", cmd.Args[1])
	}
}

func TestBodyPreservesInternalWhitespace(t *testing.T) {
	cmd, err := Parse(`jp cfg/net replace /ip  "10.0.0.1 and more"`, nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Args[3] != `"10.0.0.1 and more"` {
		t.Errorf("body = %q", cmd.Args[3])
	}
}
