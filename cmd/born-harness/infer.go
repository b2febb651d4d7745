package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/born-ml/harness/internal/inference"
	"github.com/born-ml/harness/internal/shim"
)

func newInferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer [inference flags]",
		Short: "Run inference with legacy checkpoint loading enabled",
		Long: `Installs the checkpoint compatibility shim for the whole process, then runs the
inference entry point with all remaining arguments, e.g.

  born-harness infer --inference_config configs/inference/test.yaml --result_dir results

--config and -v are accepted before or after "infer". The pose model defaults
come from the probe section of the configuration.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			argv, found, err := extractFlags(cmd.Root().PersistentFlags(), args)
			if err != nil {
				return err
			}
			if found {
				if err := setup(); err != nil {
					return err
				}
			}

			shim.Install()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "======================================================================")
			fmt.Fprintln(out, "Born Inference Runner (legacy checkpoint compatibility)")
			fmt.Fprintln(out, "======================================================================")
			fmt.Fprintln(out, "Applied compatibility patches for checkpoint loading")
			fmt.Fprintln(out)

			err = inference.Main(cmd.Context(), argv, inferenceDefaults())
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		},
	}
}

func inferenceDefaults() inference.Args {
	d := inference.DefaultArgs()
	if cfg == nil {
		return d
	}
	d.PoseConfig = cfg.Probe.PoseConfig
	d.PoseCheckpoint = cfg.Probe.PoseCheckpoint
	if cfg.Probe.Device != "" {
		d.Device = cfg.Probe.Device
	}
	return d
}

// extractFlags sets the flags of fs found in args and returns the remaining arguments.
// Everything after "--" is passed through untouched.
func extractFlags(fs *pflag.FlagSet, args []string) (rest []string, found bool, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i:]...)
			break
		}

		var f *pflag.Flag
		name, value, hasValue := "", "", false
		switch {
		case strings.HasPrefix(arg, "--") && len(arg) > 2:
			name, value, hasValue = strings.Cut(arg[2:], "=")
			f = fs.Lookup(name)
		case strings.HasPrefix(arg, "-") && len(arg) == 2:
			f = fs.ShorthandLookup(arg[1:])
		}
		if f == nil {
			rest = append(rest, arg)
			continue
		}

		if !hasValue {
			switch {
			case f.NoOptDefVal != "":
				value = f.NoOptDefVal
			case i+1 < len(args):
				i++
				value = args[i]
			default:
				return nil, false, fmt.Errorf("flag needs an argument: %s", arg)
			}
		}
		if err := fs.Set(f.Name, value); err != nil {
			return nil, false, fmt.Errorf("invalid argument %q for %s: %w", value, arg, err)
		}
		found = true
	}
	return rest, found, nil
}
