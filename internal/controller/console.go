package controller

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// ConsoleUI prompts the operator on a terminal. Prompting and progress lines
// share one output sink, so every write holds the same mutex; the status
// poller therefore never interleaves with an open error prompt.
type ConsoleUI struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

// NewConsoleUI creates a ConsoleUI reading answers from in and writing to out.
func NewConsoleUI(in io.Reader, out io.Writer) *ConsoleUI {
	return &ConsoleUI{
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// ReportError implements UI.
func (c *ConsoleUI) ReportError(message string) ErrorChoice {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		fmt.Fprintf(c.out, "error: %s\n(A)bort, (R)etry, (I)gnore? ", message)

		if !c.in.Scan() {
			return ChoiceAbort
		}

		switch strings.ToLower(strings.TrimSpace(c.in.Text())) {
		case "a", "abort":
			return ChoiceAbort
		case "r", "retry":
			return ChoiceRetry
		case "i", "ignore":
			return ChoiceIgnore
		}
	}
}

// Confirm implements UI.
func (c *ConsoleUI) Confirm(message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s (y/N) ", message)

	if !c.in.Scan() {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(c.in.Text()))

	return answer == "y" || answer == "yes"
}

// ShowFatal implements UI.
func (c *ConsoleUI) ShowFatal(message string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "fatal: %s: %v\n", message, cause)
	slog.Error("fatal pipeline error", "message", message, "error", cause)
}

// Progress implements UI.
func (c *ConsoleUI) Progress(stage m.Stage, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s] %s\n", stage, status)
}

// AutoUI answers every prompt without operator input: errors resolve to a
// fixed choice and confirmations to a fixed answer. The ignore-errors flag
// wires an AutoUI that always picks Ignore; non-interactive runs without that
// flag get one that always aborts.
type AutoUI struct {
	Choice ErrorChoice
	Yes    bool
	Out    io.Writer

	mu sync.Mutex
}

// ReportError implements UI.
func (a *AutoUI) ReportError(message string) ErrorChoice {
	a.mu.Lock()
	defer a.mu.Unlock()

	slog.Warn("recoverable error", "message", message, "choice", a.Choice)

	if a.Out != nil {
		fmt.Fprintf(a.Out, "error: %s (%s)\n", message, a.Choice)
	}

	return a.Choice
}

// Confirm implements UI.
func (a *AutoUI) Confirm(string) bool { return a.Yes }

// ShowFatal implements UI.
func (a *AutoUI) ShowFatal(message string, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slog.Error("fatal pipeline error", "message", message, "error", cause)

	if a.Out != nil {
		fmt.Fprintf(a.Out, "fatal: %s: %v\n", message, cause)
	}
}

// Progress implements UI.
func (a *AutoUI) Progress(stage m.Stage, status string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slog.Info("progress", "stage", stage, "status", status)

	if a.Out != nil {
		fmt.Fprintf(a.Out, "[%s] %s\n", stage, status)
	}
}
