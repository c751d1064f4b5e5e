package submit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/gridlaunch/internal/script"
)

// Recap is what the user is asked to approve.
type Recap struct {
	ScriptPath string
	Summary    script.Summary
	// HasSummary is false for scripts written by hand, which carry no
	// gridlaunch summary line.
	HasSummary bool
}

// String renders the recap line shown before the question.
func (r Recap) String() string {
	if !r.HasSummary {
		return "Recap: " + r.ScriptPath + " (no gridlaunch summary)"
	}
	return "Recap: " + r.Summary.Recap()
}

// Confirmer decides whether a submission goes ahead.
type Confirmer interface {
	Confirm(ctx context.Context, recap Recap) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, recap Recap) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, recap Recap) (bool, error) {
	return f(ctx, recap)
}

// AlwaysConfirm approves every submission without asking.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, Recap) (bool, error) {
	return true, nil
})

// Accepts applies the answer rule: empty, "y" and "Y" proceed. Anything else,
// including "yes", aborts.
func Accepts(answer string) bool {
	switch strings.TrimRight(answer, "\r\n") {
	case "", "y", "Y":
		return true
	default:
		return false
	}
}

// LineConfirmer prints the recap and reads one answer line.
type LineConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm asks once. Input that ends before any answer is given counts as a
// refusal.
func (c LineConfirmer) Confirm(ctx context.Context, recap Recap) (bool, error) {
	if c.Out != nil {
		fmt.Fprintln(c.Out, recap.String())
		fmt.Fprint(c.Out, "Proceed? (Y/n) ")
	}
	type answer struct {
		line string
		err  error
	}
	// A read cannot be interrupted, so on cancellation the reader stays
	// blocked on In until the process exits. The buffered channel lets it
	// finish without a receiver. Callers that reuse In after a cancelled
	// prompt may lose one line to it.
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(c.In).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			if errors.Is(a.err, io.EOF) {
				if a.line == "" {
					return false, nil
				}
				return Accepts(a.line), nil
			}
			return false, fmt.Errorf("submit: read answer: %w", a.err)
		}
		return Accepts(a.line), nil
	}
}
