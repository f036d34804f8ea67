// Package prompt surfaces pending dialogs to the local human and turns the
// answer into a resolution. On an interactive terminal it runs a full-screen
// decision form; everywhere else it falls back to plain line prompts so the
// flow still works under pipes and dumb terminals.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// ErrDismissed is returned when the human closes the prompt without deciding.
// The dialog stays pending and can be settled later through any other path.
var ErrDismissed = errors.New("dialog prompt dismissed")

// Presenter walks one dialog request through a human and returns the
// decision. Present blocks until the human answers, the prompt is dismissed,
// or the context ends.
type Presenter interface {
	Present(ctx context.Context, req dialog.Request) (dialog.Resolution, error)
}

// TerminalConfig configures a TerminalPresenter. The zero value targets the
// process's own stdin/stdout.
type TerminalConfig struct {
	Input  io.Reader
	Output io.Writer
	// ForceLine skips the full-screen form even on a real terminal.
	ForceLine bool
}

// TerminalPresenter presents dialogs on the controlling terminal. Only one
// dialog is on screen at a time; concurrent Present calls queue on the
// internal mutex in arrival order.
type TerminalPresenter struct {
	mu        sync.Mutex
	in        io.Reader
	out       io.Writer
	reader    *bufio.Reader
	forceLine bool
}

func NewTerminalPresenter(cfg TerminalConfig) *TerminalPresenter {
	in := cfg.Input
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &TerminalPresenter{
		in:        in,
		out:       out,
		reader:    bufio.NewReader(in),
		forceLine: cfg.ForceLine,
	}
}

func (p *TerminalPresenter) Present(ctx context.Context, req dialog.Request) (dialog.Resolution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dialog.Resolution{}, err
	}
	if p.useModal() {
		return runModal(ctx, p.in, p.out, req)
	}
	return p.presentLine(ctx, req)
}

// useModal requires both ends to be real terminals. Readers without a file
// descriptor (pipes wrapped in bufio, test buffers) always take the line
// path.
func (p *TerminalPresenter) useModal() bool {
	if p.forceLine {
		return false
	}
	fin, ok := p.in.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	fout, ok := p.out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(fin.Fd()) && isatty.IsTerminal(fout.Fd())
}

// presentLine is the non-TTY flow: reason, optional response line, then the
// continue/stop verdict. Reads block on the underlying reader and are not
// cancellable mid-line.
func (p *TerminalPresenter) presentLine(ctx context.Context, req dialog.Request) (dialog.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return dialog.Resolution{}, err
	}

	fmt.Fprintf(p.out, "\n-- decision #%d", req.SequenceNumber)
	if req.Workspace != "" {
		fmt.Fprintf(p.out, " (%s)", req.Workspace)
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, req.Reason)

	fmt.Fprint(p.out, "Response (enter to skip): ")
	input, err := readLine(p.reader)
	if err != nil {
		return dialog.Resolution{}, fmt.Errorf("read response: %w", err)
	}

	fmt.Fprint(p.out, "Continue? [y/N] ")
	verdict, err := readLine(p.reader)
	if err != nil {
		return dialog.Resolution{}, fmt.Errorf("read decision: %w", err)
	}

	res := dialog.Resolution{
		ShouldContinue: isAffirmative(verdict),
		UserInput:      strings.TrimSpace(input),
	}
	return res, nil
}

func isAffirmative(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
