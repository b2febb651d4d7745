package main

import (
	"github.com/spf13/cobra"

	"github.com/born-ml/harness/internal/diagnose"
)

func newDoctorCmd() *cobra.Command {
	var (
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check native libraries, acceleration, model loading and inputs",
		Long: `Runs the environment checks in order:

  1. Runtime and backend
  2. Native extension (required)
  3. Dependent library (required)
  4. Model load probe
  5. Input assets

and prints a readiness summary. Exits with status 1 right after a required check
fails; failures of the other checks are reported but do not change the status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := diagnose.DefaultStages(cfg, diagnose.DefaultDeps())
			p := &diagnose.Pipeline{Stages: stages}

			if !asJSON {
				r := diagnose.NewTextRenderer(cmd.OutOrStdout(), diagnose.CountChecks(stages), !noColor)
				r.Banner("Born Harness Environment Check")
				p.OnResult = r.Result
			}

			report := p.Run(cmd.Context())

			if asJSON {
				if err := diagnose.WriteJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			if code := report.ExitCode(); code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
