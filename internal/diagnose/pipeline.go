// Package diagnose runs the pre-inference environment self-test: an ordered list of
// stages whose results are recorded, reported as they complete and folded into a
// readiness summary.
//
// A stage failure never aborts the run unless the stage is marked fatal. A panic
// inside a stage is recorded as a failure of that stage.
package diagnose

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Stage is one check of the pipeline. Check receives the results recorded so far.
type Stage struct {
	Name    string
	Fatal   bool // A failure stops the run
	Summary bool // The stage reports on prior results and is not counted itself
	Check   func(ctx context.Context, prior []Result) Result
}

// Pipeline runs stages in order.
type Pipeline struct {
	Stages   []Stage
	OnResult func(Result) // Called with each result as soon as it is recorded
}

// Run executes the stages in order and stops right after a fatal failure.
func (p *Pipeline) Run(ctx context.Context) *Report {
	report := &Report{Results: make([]Result, 0, len(p.Stages))}
	checks := make([]Result, 0, len(p.Stages))

	for i, stage := range p.Stages {
		res := runStage(ctx, stage, report.Results)
		res.Index = i + 1
		res.Name = stage.Name
		res.Fatal = stage.Fatal && res.Failed()

		report.Results = append(report.Results, res)
		if !stage.Summary {
			checks = append(checks, res)
		}

		zap.L().Debug("diagnostic stage finished",
			zap.Int("index", res.Index),
			zap.String("stage", res.Name),
			zap.String("status", string(res.Status)),
			zap.String("kind", string(res.Kind)),
		)
		if p.OnResult != nil {
			p.OnResult(res)
		}

		if res.Fatal {
			report.Halted = true
			break
		}
	}

	report.Summary = Summarize(checks)
	return report
}

func runStage(ctx context.Context, stage Stage, prior []Result) (res Result) {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusSkip, Detail: err.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: StatusFail, Kind: KindUnknown, Detail: fmt.Sprintf("stage panicked: %v", r)}
		}
	}()

	// Hand the stage its own copy so it cannot rewrite recorded results.
	return stage.Check(ctx, append([]Result(nil), prior...))
}
