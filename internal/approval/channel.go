package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fentz26/gapforge/internal/models"
)

// ChoiceKind is what a human answered.
type ChoiceKind int

const (
	ChoiceReject ChoiceKind = iota
	ChoiceAccept
	ChoiceBuild
	ChoiceSelect
)

// Choice is a human answer. Index is 1-based and only set for ChoiceSelect.
type Choice struct {
	Kind  ChoiceKind
	Index int
}

// Channel presents a recommendation to a human and returns their choice.
type Channel interface {
	Present(ctx context.Context, rec *models.Recommendation) (Choice, error)
}

// ParseChoice maps typed input to a choice. Unrecognized input rejects.
func ParseChoice(input string) Choice {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case "y", "yes", "a", "accept":
		return Choice{Kind: ChoiceAccept}
	case "b", "build":
		return Choice{Kind: ChoiceBuild}
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return Choice{Kind: ChoiceSelect, Index: n}
	}
	return Choice{Kind: ChoiceReject}
}

// WriteSummary renders rec for a human reviewer.
func WriteSummary(w io.Writer, rec *models.Recommendation) {
	fmt.Fprintf(w, "Capability:  %s\n", rec.Capability)
	fmt.Fprintf(w, "Recommended: %s (confidence %.0f%%)\n", rec.Action, rec.Confidence*100)
	fmt.Fprintf(w, "Rationale:   %s\n", rec.Rationale)
	fmt.Fprintf(w, "Build:       %.1fh, %d LOC, $%.0f over 12 months\n",
		rec.Build.Hours, rec.Build.LOC, rec.Build.TwelveMonthCost)
	for i, opt := range rec.BuyOptions {
		marker := " "
		if i == rec.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, " %s [%d] %-20s %-7s $%.0f/mo  maturity %.0f/10  $%.0f over 12 months\n",
			marker, i+1, opt.Source, opt.Kind, opt.MonthlyCost, opt.Maturity, opt.TwelveMonthCost)
	}
}

// LineChannel prompts on w and reads one line from r.
type LineChannel struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineChannel creates a line-oriented channel, usually over stdin and stdout.
func NewLineChannel(r io.Reader, w io.Writer) *LineChannel {
	return &LineChannel{in: bufio.NewReader(r), out: w}
}

type lineResult struct {
	line string
	err  error
}

// Present prints the summary and waits for an answer or ctx.
func (c *LineChannel) Present(ctx context.Context, rec *models.Recommendation) (Choice, error) {
	WriteSummary(c.out, rec)
	fmt.Fprint(c.out, "Approve? [y]es / [b]uild / option number / anything else rejects: ")

	// The read cannot be interrupted; on cancel the goroutine finishes with the next line.
	done := make(chan lineResult, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		done <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return Choice{}, ctx.Err()
	case res := <-done:
		if res.err != nil && res.line == "" {
			if res.err == io.EOF {
				return Choice{Kind: ChoiceReject}, nil
			}
			return Choice{}, fmt.Errorf("read approval: %w", res.err)
		}
		return ParseChoice(res.line), nil
	}
}
