// Package prompt reads operator input: confirmations, hidden tokens and
// REPL lines.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads from one input stream. All reads go through a single
// buffered reader so prompts and REPL lines never lose input to each other.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal file descriptor, -1 when input is not a terminal
}

// New creates a Prompter. When in is a terminal, Secret disables echo.
func New(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: bufio.NewReader(in), out: out, fd: fd}
}

// Interactive reports whether input comes from a terminal.
func (p *Prompter) Interactive() bool { return p.fd >= 0 }

// ReadLine prints label and returns the next line without its newline. At
// end of input it returns io.EOF, unless a final unterminated line was read.
func (p *Prompter) ReadLine(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm asks a yes/no question. Only "y" or "yes" approves; end of input
// declines.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintln(p.out, question)
	line, err := p.ReadLine("Type \"yes\" to confirm: ")
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Secret reads a value without echo when input is a terminal.
func (p *Prompter) Secret(label string) (string, error) {
	if p.fd < 0 {
		line, err := p.ReadLine(label)
		return strings.TrimSpace(line), err
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("prompt: read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
