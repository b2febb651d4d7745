package diagnose

import (
	"fmt"
	"strings"
)

// Status is the outcome of a stage.
type Status string

// Stage outcomes.
const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Kind classifies a failure.
type Kind string

// Failure kinds.
const (
	KindNone       Kind = ""
	KindMissing    Kind = "missing"    // A file the stage needs does not exist
	KindPolicy     Kind = "policy"     // The runtime refused a load under its security defaults
	KindDependency Kind = "dependency" // A native library or symbol is unavailable
	KindUnknown    Kind = "unknown"
)

// Fact is a labelled value a stage observed.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Item is one checked element of a stage, such as a single asset.
type Item struct {
	Label  string `json:"label"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Result is the recorded outcome of one stage.
type Result struct {
	Index  int      `json:"index"`
	Name   string   `json:"name"`
	Status Status   `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Facts  []Fact   `json:"facts,omitempty"`
	Items  []Item   `json:"items,omitempty"`
	Notes  []string `json:"notes,omitempty"`
	Kind   Kind     `json:"kind,omitempty"`
	Fatal  bool     `json:"fatal,omitempty"`
}

// Failed reports whether the stage failed.
func (r Result) Failed() bool {
	return r.Status == StatusFail
}

func (r *Result) fact(key, format string, args ...any) {
	r.Facts = append(r.Facts, Fact{Key: key, Value: fmt.Sprintf(format, args...)})
}

func (r *Result) item(label string, ok bool, detail string) {
	r.Items = append(r.Items, Item{Label: label, OK: ok, Detail: detail})
}

func (r *Result) fail(kind Kind, detail string) {
	r.Status = StatusFail
	r.Kind = kind
	r.Detail = detail
}

// ReadyStatement is the summary statement of a run without failures.
const ReadyStatement = "Ready for inference"

// Summary folds stage results into a readiness statement.
type Summary struct {
	Ready        bool     `json:"ready"`
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	Skipped      int      `json:"skipped"`
	FailedStages []string `json:"failed_stages,omitempty"`
	Statement    string   `json:"statement"`
}

// Summarize derives a Summary from results. It keeps no state of its own.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
			s.FailedStages = append(s.FailedStages, r.Name)
		case StatusSkip:
			s.Skipped++
		}
	}
	s.Ready = s.Failed == 0 && s.Skipped == 0 && len(results) > 0
	switch {
	case s.Ready:
		s.Statement = ReadyStatement
	case s.Failed > 0:
		s.Statement = fmt.Sprintf("Not ready: %d of %d checks failed (%s)",
			s.Failed, len(results), strings.Join(s.FailedStages, ", "))
	default:
		s.Statement = fmt.Sprintf("Not ready: %d of %d checks did not run", s.Skipped, len(results))
	}
	return s
}

// Report is the outcome of a pipeline run.
type Report struct {
	Results []Result `json:"results"`
	Halted  bool     `json:"halted"` // A fatal stage failed and later stages did not run
	Summary Summary  `json:"summary"`
}

// ExitCode returns the process exit code for the report: 1 after a fatal failure, else 0.
// Non-fatal failures are advisory.
func (r *Report) ExitCode() int {
	if r.Halted {
		return 1
	}
	return 0
}
