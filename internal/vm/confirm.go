package vm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer decides whether a destructive overwrite may proceed. The
// strategy is injected so non-interactive callers can supply a
// predetermined answer instead of a terminal prompt.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// TerminalConfirmer prompts on Out and reads a single-line answer from In.
// Anything other than "y" or "yes" (case-insensitive) is a decline; the
// default on empty input is no.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm asks the user and returns their decision.
func (c *TerminalConfirmer) Confirm(prompt string) (bool, error) {
	if _, err := fmt.Fprintf(c.Out, "%s [y/N]: ", prompt); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// AutoApprove answers yes without prompting. Used by the --yes flag.
type AutoApprove struct{}

// Confirm always approves.
func (AutoApprove) Confirm(string) (bool, error) {
	return true, nil
}
