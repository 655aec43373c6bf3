package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"skillforge/internal/api"
	"skillforge/internal/session"
)

const shellHelp = `Commands:
  register <email> <name>   create an account (prompts for a password)
  login <email>             log in (prompts for a password)
  goal <text>               submit a goal and start its quest plan
  accomplish <text>         record an accomplishment for the active quest
  credential <id>           issue the credential for an accomplishment id
  quests                    show the quest plan
  status                    show login state and the active quest
  logout                    forget the token and the plan
  help                      show this help
  exit                      leave the shell`

var errUsage = errors.New("usage")

// shellCommand is one parsed shell line.
type shellCommand struct {
	action   string
	input    session.Input
	password bool
}

// parseCommand splits a shell line into an action and its input. Free text
// actions keep the rest of the line verbatim.
func parseCommand(line string) (shellCommand, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)

	switch verb {
	case session.ActionRegister:
		if len(fields) < 2 {
			return shellCommand{}, fmt.Errorf("%w: register <email> <name>", errUsage)
		}
		name := strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		return shellCommand{action: verb, input: session.Input{Email: fields[0], Name: name}, password: true}, nil
	case session.ActionLogin:
		if len(fields) != 1 {
			return shellCommand{}, fmt.Errorf("%w: login <email>", errUsage)
		}
		return shellCommand{action: verb, input: session.Input{Email: fields[0]}, password: true}, nil
	case session.ActionGoal:
		if rest == "" {
			return shellCommand{}, fmt.Errorf("%w: goal <text>", errUsage)
		}
		return shellCommand{action: verb, input: session.Input{Goal: rest}}, nil
	case session.ActionAccomplish, "done":
		return shellCommand{action: session.ActionAccomplish, input: session.Input{Accomplishment: rest}}, nil
	case session.ActionCredential:
		if len(fields) != 1 {
			return shellCommand{}, fmt.Errorf("%w: credential <accomplishment-id>", errUsage)
		}
		return shellCommand{action: verb, input: session.Input{AccomplishmentID: fields[0]}}, nil
	default:
		return shellCommand{action: verb}, nil
	}
}

const hintUnauthorized = "hint: the backend rejected the credentials; run 'login <email>' to sign in again"

// prompter reads shell lines and passwords from one input stream. Lines are
// scanned on a separate goroutine, one per request, so a prompt can be
// abandoned when the context is cancelled.
type prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner

	once    sync.Once
	req     chan struct{}
	lines   chan string
	done    chan struct{}
	err     error // set before lines is closed
	pending bool
	eof     bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
		req:     make(chan struct{}),
		lines:   make(chan string, 1),
		done:    make(chan struct{}),
	}
}

func (p *prompter) read() {
	defer close(p.lines)
	for {
		select {
		case <-p.req:
		case <-p.done:
			return
		}
		if !p.scanner.Scan() {
			p.err = p.scanner.Err()
			return
		}
		p.lines <- p.scanner.Text()
	}
}

// close stops the reader once it is idle. A read already blocked on the
// input ends when the input does.
func (p *prompter) close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// line prints prompt and waits for the next line. It returns io.EOF at the
// end of input and ctx.Err() when ctx is done first.
func (p *prompter) line(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if p.eof {
		return "", io.EOF
	}
	p.once.Do(func() { go p.read() })
	if !p.pending {
		p.req <- struct{}{}
		p.pending = true
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-p.lines:
		p.pending = false
		if !ok {
			p.eof = true
			if p.err != nil {
				return "", p.err
			}
			return "", io.EOF
		}
		return text, nil
	}
}

// password hides input on a terminal and falls back to a plain line
// otherwise.
func (p *prompter) password(ctx context.Context, prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	pw, err := p.line(ctx, prompt)
	if errors.Is(err, io.EOF) {
		return "", io.ErrUnexpectedEOF
	}
	return pw, err
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: log in, submit goals, record accomplishments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := a.terminal(cmd)
			if err != nil {
				return err
			}
			sess, err := a.newSession(view)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "skillforge shell (%s). Type 'help' for commands.\n", a.cfg.Server)
			return runShell(cmd.Context(), newPrompter(cmd.InOrStdin(), out), sess, view, a.logger)
		},
	}
}

type errorView interface {
	Error(err error)
}

// runShell reads commands until exit, end of input or cancellation of ctx.
// Cancellation ends the shell without an error.
func runShell(ctx context.Context, p *prompter, sess *session.Session, view errorView, logger *zap.Logger) error {
	defer p.close()
	for {
		if ctx.Err() != nil {
			return interrupted(p, logger)
		}
		line, err := p.line(ctx, "> ")
		switch {
		case ctx.Err() != nil:
			return interrupted(p, logger)
		case errors.Is(err, io.EOF):
			fmt.Fprintln(p.out)
			return nil
		case err != nil:
			return err
		}
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help", "?":
			fmt.Fprintln(p.out, shellHelp)
			continue
		}

		c, err := parseCommand(line)
		if err != nil {
			view.Error(err)
			continue
		}
		if c.password {
			c.input.Password, err = p.password(ctx, "Password: ")
			if ctx.Err() != nil {
				return interrupted(p, logger)
			}
			if err != nil {
				return err
			}
		}
		logger.Debug("dispatch", zap.String("action", c.action))
		if err := sess.Dispatch(ctx, c.action, c.input); err != nil {
			view.Error(err)
			if api.IsUnauthorized(err) {
				fmt.Fprintln(p.out, hintUnauthorized)
			}
		}
	}
}

func interrupted(p *prompter, logger *zap.Logger) error {
	fmt.Fprintln(p.out)
	logger.Info("shell interrupted")
	return nil
}
