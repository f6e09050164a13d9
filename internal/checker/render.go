package checker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sqlalign/sqlalign/internal/core/domain"
)

const (
	passGlyph    = "+"
	failGlyph    = "-"
	pendingGlyph = "?"
	errorGlyph   = "✗"
)

// failureMessage wraps msg at the display width and prefixes the first line
// with the failure glyph, indenting continuation lines underneath it.
func failureMessage(msg string) string {
	lines := domain.Wrap(msg, domain.WrapWidth)
	if len(lines) == 0 {
		return errorGlyph
	}
	out := make([]string, len(lines))
	out[0] = errorGlyph + " " + lines[0]
	for i, l := range lines[1:] {
		out[i+1] = "  " + l
	}
	return joinLines(out)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// RenderPending writes the block header and its not-yet-run assertion
// labels.
func (b *Block) RenderPending(w io.Writer) {
	b.renderHeader(w)
	fmt.Fprintln(w, "  {")
	for _, label := range b.Pending() {
		fmt.Fprintf(w, "    %s %s\n", pendingGlyph, label)
	}
	fmt.Fprintln(w, "  }")
}

// Render evaluates the block and writes it as an indented assertion block:
// header, open marker, one line per assertion with failure detail indented
// beneath it, close marker.
func (b *Block) Render(ctx context.Context, w io.Writer) {
	results := b.Evaluate(ctx)

	b.renderHeader(w)
	fmt.Fprintln(w, "  {")
	for _, r := range results {
		glyph := passGlyph
		if !r.Passed {
			glyph = failGlyph
		}
		fmt.Fprintf(w, "    %s %s\n", glyph, r.Label)
		if r.Message != "" {
			for _, line := range strings.Split(r.Message, "\n") {
				fmt.Fprintf(w, "        %s\n", line)
			}
		}
	}
	fmt.Fprintln(w, "  }")
}

// renderHeader writes the type-signature label, source location, and the
// SQL text trimmed and re-indented line by line.
func (b *Block) renderHeader(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", b.op.Signature(), b.op.Location())
	for _, line := range strings.Split(b.op.SQL, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "    %s\n", line)
	}
}
