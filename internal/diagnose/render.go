package diagnose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gowebpki/jcs"
)

const rule = "============================================================"

// TextRenderer prints results for a terminal as they arrive.
type TextRenderer struct {
	w      io.Writer
	checks int
	ok     *color.Color
	bad    *color.Color
	note   *color.Color
}

// NewTextRenderer returns a renderer for a run with the given number of counted checks.
func NewTextRenderer(w io.Writer, checks int, useColor bool) *TextRenderer {
	t := &TextRenderer{
		w:      w,
		checks: checks,
		ok:     color.New(color.FgGreen),
		bad:    color.New(color.FgRed),
		note:   color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{t.ok, t.bad, t.note} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// CountChecks returns the number of stages that are not summaries.
func CountChecks(stages []Stage) int {
	n := 0
	for _, s := range stages {
		if !s.Summary {
			n++
		}
	}
	return n
}

// Banner prints a title between rules.
func (t *TextRenderer) Banner(title string) {
	fmt.Fprintf(t.w, "%s\n%s\n%s\n", rule, title, rule)
}

func (t *TextRenderer) mark(ok bool) string {
	if ok {
		return t.ok.Sprint("✓")
	}
	return t.bad.Sprint("✗")
}

// Result prints one stage result.
func (t *TextRenderer) Result(r Result) {
	if r.Index > t.checks {
		t.summary(r)
		return
	}

	fmt.Fprintf(t.w, "\n[%d/%d] %s...\n", r.Index, t.checks, r.Name)
	for _, f := range r.Facts {
		fmt.Fprintf(t.w, "  %s: %s\n", f.Key, f.Value)
	}
	for _, it := range r.Items {
		if it.Detail != "" {
			fmt.Fprintf(t.w, "  %s %s: %s\n", t.mark(it.OK), it.Label, it.Detail)
		} else {
			fmt.Fprintf(t.w, "  %s %s\n", t.mark(it.OK), it.Label)
		}
	}
	switch r.Status {
	case StatusFail:
		fmt.Fprintf(t.w, "  %s Error: %s\n", t.mark(false), r.Detail)
	case StatusSkip:
		fmt.Fprintf(t.w, "  %s\n", t.note.Sprintf("- Skipped: %s", r.Detail))
	}
	for _, n := range r.Notes {
		fmt.Fprintf(t.w, "  %s\n", t.note.Sprintf("Note: %s", n))
	}
	if r.Fatal {
		fmt.Fprintf(t.w, "\n%s\n", t.bad.Sprintf("Stopping: %s is required for inference", r.Name))
	}
}

func (t *TextRenderer) summary(r Result) {
	fmt.Fprintln(t.w)
	t.Banner(r.Name + ":")
	for _, it := range r.Items {
		fmt.Fprintf(t.w, "%s %s\n", t.mark(it.OK), strings.TrimSpace(it.Label))
	}
	for _, f := range r.Facts {
		fmt.Fprintf(t.w, "%s: %s\n", f.Key, f.Value)
	}
	statement := t.bad.Sprint(r.Detail)
	if r.Detail == ReadyStatement {
		statement = t.ok.Sprint(r.Detail)
	}
	fmt.Fprintf(t.w, "%s\n%s\n", statement, rule)
}

// Digest returns the hex SHA-256 of the report's RFC 8785 canonical JSON.
func Digest(report *Report) (string, error) {
	canonical, err := canonicalJSON(report)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(report *Report) ([]byte, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize report: %w", err)
	}
	return canonical, nil
}

// WriteJSON writes {"report": ..., "digest": ...} with the report in canonical form.
func WriteJSON(w io.Writer, report *Report) error {
	canonical, err := canonicalJSON(report)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(canonical)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Report json.RawMessage `json:"report"`
		Digest string          `json:"digest"`
	}{canonical, hex.EncodeToString(sum[:])})
}
