// SPDX-License-Identifier: Apache-2.0
package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"oath/internal/analysis"
	"oath/internal/contract"
	"oath/internal/solver"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file.oath>",
	Short: "Run only contract verification and show per-contract verdicts",
	Long: `Parses and typechecks the module, then proves or refutes every
requires/ensures contract with the SMT solver. Each contract gets one
verdict line; disproved contracts show the falsifying inputs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd, args[0])
	},
}

func init() {
	verifyCmd.Flags().Uint("timeout", solver.DefaultTimeoutMs, "Solver timeout per contract in milliseconds")
	verifyCmd.Flags().Bool("no-cache", false, "Skip the verification cache")
	verifyCmd.Flags().Int("jobs", 0, "Number of parallel analysis workers (0 = one per CPU)")
	verifyCmd.Flags().String("solver", "", "Path to the SMT solver binary")
}

func runVerify(cmd *cobra.Command, path string) error {
	start := time.Now()

	conf, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	conf.EnableDataflow = false
	conf.EnableBugPatterns = false
	conf.EnableTaintAnalysis = false
	conf.UseSmtVerification = true

	front, err := loadFrontEnd(path)
	if err != nil {
		return err
	}
	if front.module == nil || front.errors > 0 {
		color.Red("Verification failed after %s", formatDuration(time.Since(start)))
		return ErrFindings
	}

	coord := analysis.NewCoordinator(conf, front.registry, nil, openCache(conf))
	res := coord.Analyze(cmd.Context(), front.module)

	for _, d := range res.Diagnostics {
		fmt.Print(front.reporter.Format(d))
	}
	printOutcomes(res)

	if res.Failed() {
		color.Red("Verification failed after %s", formatDuration(time.Since(start)))
		return ErrFindings
	}
	color.Green("Verified %s in %s", path, formatDuration(time.Since(start)))
	return nil
}

func printOutcomes(res *analysis.AnalysisResult) {
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, fr := range res.Verification {
		if len(fr.Outcomes) == 0 {
			continue
		}
		fmt.Printf("%s\n", bold(fr.Function))

		width := 0
		for _, out := range fr.Outcomes {
			if n := len(clauseText(out)); n > width {
				width = n
			}
		}
		for _, out := range fr.Outcomes {
			timing := formatDuration(out.Duration)
			if out.CacheHit {
				timing += " (cached)"
			}
			fmt.Printf("  %-*s  %s  %s\n", width, clauseText(out), statusLabel(out.Status), dim(timing))

			if out.Status == contract.Disproven && out.Counterexample != nil {
				fmt.Printf("    %s %s\n", color.RedString("counterexample:"), out.Counterexample.String())
			} else if out.Reason != "" {
				fmt.Printf("    %s\n", dim(out.Reason))
			}
		}
	}

	s := res.Summary
	if s.Total() == 0 {
		fmt.Println("no contracts to verify")
		return
	}
	line := fmt.Sprintf("%s: %d proven, %d disproven, %d unproven", plural(s.Total(), "contract"), s.Proven, s.Disproven, s.Unproven)
	if s.Unsupported > 0 {
		line += fmt.Sprintf(", %d unsupported", s.Unsupported)
	}
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	if s.CacheHits > 0 {
		line += fmt.Sprintf(" (%d from cache)", s.CacheHits)
	}
	fmt.Println(line)
}

func clauseText(out contract.Outcome) string {
	return fmt.Sprintf("%s(%s)", out.Kind, out.Expr)
}

func statusLabel(s contract.Status) string {
	switch s {
	case contract.Proven:
		return color.GreenString("proven")
	case contract.Disproven:
		return color.RedString("disproven")
	case contract.Skipped:
		return color.New(color.Faint).Sprint("skipped")
	default:
		return color.YellowString(s.String())
	}
}
