// Package tokenize splits one command line into a tagged Command variant,
// per the fixed per-word arity table, and performs $N global-argument
// substitution on every positional and body argument.
package tokenize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bobcat66/wfctl/internal/apperr"
)

// Kind identifies which command word a line named.
type Kind int

const (
	Quit Kind = iota
	Fetch
	Push
	Pushf
	Delete
	Transact
	Jp
	Jpf
	Exist
	Jtest
	Jtestf
	Test
	Testf
	Diff
	Commit
	Abort
	Exec
	Summary
	Start
	Stop
	Reload
	Restart
	Reboot
	Shutdown
)

// arity is the number of positional arguments (excluding the trailing body
// slot, which is always present) a command word takes.
var arity = map[string]struct {
	kind Kind
	n    int
}{
	"quit":     {Quit, 0},
	"fetch":    {Fetch, 1},
	"push":     {Push, 1},
	"pushf":    {Pushf, 2},
	"delete":   {Delete, 1},
	"transact": {Transact, 0},
	"jp":       {Jp, 3},
	"jpf":      {Jpf, 4},
	"exist":    {Exist, 2},
	"jtest":    {Jtest, 2},
	"jtestf":   {Jtestf, 3},
	"test":     {Test, 1},
	"testf":    {Testf, 2},
	"diff":     {Diff, 0},
	"commit":   {Commit, 0},
	"abort":    {Abort, 0},
	"exec":     {Exec, 1},
	"summary":  {Summary, 0},
	"start":    {Start, 1},
	"stop":     {Stop, 1},
	"reload":   {Reload, 0},
	"restart":  {Restart, 0},
	"reboot":   {Reboot, 0},
	"shutdown": {Shutdown, 0},
}

// Command is the tagged-variant parse result: the arity check is a
// property of parsing, so by the time a Command exists, Args always has
// exactly N+1 slots.
type Command struct {
	Kind Kind
	Word string
	// Args holds the N positional arguments followed by the trailing body
	// argument, all already variable-resolved.
	Args []string
}

var varPattern = regexp.MustCompile(`^\$(\d+)$`)

// Parse tokenises one command line and resolves $N references against
// globArgs. An unknown command word or an arity shortfall returns
// apperr.BadCommand and never synthesizes a default arity.
func Parse(line string, globArgs []string) (*Command, error) {
	line = strings.TrimLeft(line, " \t")
	if line == "" {
		return nil, apperr.BadCommandf("empty command line")
	}

	word, rest := splitFirstToken(line)
	entry, ok := arity[word]
	if !ok {
		return nil, apperr.BadCommandf("%q is not a recognized command", word)
	}

	args := make([]string, 0, entry.n+1)
	remaining := rest
	for i := 0; i < entry.n; i++ {
		remaining = strings.TrimLeft(remaining, " \t")
		if remaining == "" {
			return nil, apperr.BadCommandf("%q: not enough positional args (need %d)", word, entry.n)
		}
		tok, next := splitFirstToken(remaining)
		args = append(args, resolve(tok, globArgs))
		remaining = next
	}

	body := strings.TrimSpace(remaining)
	args = append(args, resolve(body, globArgs))

	return &Command{Kind: entry.kind, Word: word, Args: args}, nil
}

// splitFirstToken splits s on the first run of whitespace, returning the
// first token and the untrimmed remainder.
func splitFirstToken(s string) (token, remainder string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// resolve replaces an arg matching ^\$(\d+)$ with globArgs[N], or "" if N
// is out of range. Any other arg is returned unchanged — no shell-style
// quoting or escaping is supported.
func resolve(arg string, globArgs []string) string {
	m := varPattern.FindStringSubmatch(arg)
	if m == nil {
		return arg
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n >= len(globArgs) {
		return ""
	}
	return globArgs[n]
}
