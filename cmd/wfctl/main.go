// Command wfctl is the control-session REPL: it parses process flags, opens
// one Session against a device, then reads command lines from stdin until
// `quit`, EOF, or a fatal error (with `-keepgoing=false`, the default).
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/bobcat66/wfctl/internal/apperr"
	"github.com/bobcat66/wfctl/internal/config"
	"github.com/bobcat66/wfctl/internal/session"
)

func main() {
	code, err := run()
	if err != nil {
		log.Printf("fatal: %v", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return apperr.BadCommand.ExitCode(), fmt.Errorf("config: %w", err)
	}

	var globArgs []string
	flag.StringVarP(&cfg.Host, "host", "H", cfg.Host, "device host")
	flag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "device port")
	flag.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "suppress informational stdout")
	flag.BoolVarP(&cfg.KeepGoing, "keepgoing", "k", cfg.KeepGoing, "continue the REPL after a command error")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable diagnostic logging")
	flag.StringArrayVarP(&globArgs, "arg", "a", nil, "session-global argument, referenced as $N in command order (repeatable)")
	flag.Parse()
	cfg.GlobArgs = globArgs

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.New(ctx, cfg, os.Stdout, os.Stderr)
	if err != nil {
		return exitCodeOf(err), fmt.Errorf("connect: %w", err)
	}

	return repl(ctx, s, cfg.KeepGoing), nil
}

// repl drives s from stdin, one line per command, until `quit`, EOF, or a
// fatal error when keepgoing is false.
func repl(ctx context.Context, s *session.Session, keepgoing bool) int {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return apperr.Nominal.ExitCode()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		err := s.Execute(ctx, line)
		if err == nil {
			continue
		}
		if err == session.ErrQuit {
			return apperr.Nominal.ExitCode()
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if !keepgoing {
			return exitCodeOf(err)
		}
	}
	return apperr.Nominal.ExitCode()
}

func exitCodeOf(err error) int {
	if e, ok := apperr.As(err); ok {
		return e.ExitCode()
	}
	return apperr.BadCommand.ExitCode()
}
