// SPDX-License-Identifier: Apache-2.0
package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"oath/internal/analysis"
)

var version = "0.1.0"

// ErrFindings signals a run that completed but reported errors or
// disproved contracts. The diagnostics are already rendered, so the
// caller exits nonzero without printing the error again.
var ErrFindings = errors.New("findings reported")

// RootCmd is the base command; every subcommand hangs off it.
var RootCmd = &cobra.Command{
	Use:   "oath",
	Short: "oath - contract verification and static analysis",
	Long: `oath analyzes Oath modules: it proves or refutes requires/ensures
contracts with an SMT solver, and runs dataflow, bug-pattern, and taint
analyses over each function.

Commands:
  analyze     Run every enabled analysis over a module
  verify      Run only contract verification and show per-contract verdicts
  cache       Inspect or clear the verification cache
  version     Print the version

Use "oath [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbosity := 0
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			verbosity = 2
		}
		commonlog.Configure(verbosity, nil)
	},
}

// Execute runs the CLI and returns the first error a command reports.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Path to an oath.yaml config file")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log analysis internals")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(cacheCmd)
	RootCmd.AddCommand(versionCmd)
}

// resolveConfig layers the config sources: defaults, then the YAML file
// (--config, or ./oath.yaml when present), then command-line flags.
func resolveConfig(cmd *cobra.Command) (analysis.Config, error) {
	conf := analysis.DefaultConfig()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat("oath.yaml"); err == nil {
			path = "oath.yaml"
		}
	}
	if path != "" {
		loaded, err := analysis.LoadConfig(path)
		if err != nil {
			return conf, err
		}
		conf = loaded
	}

	if cmd.Flags().Changed("timeout") {
		conf.VerificationTimeoutMs, _ = cmd.Flags().GetUint("timeout")
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		conf.CacheEnabled = false
	}
	if cmd.Flags().Changed("jobs") {
		conf.Workers, _ = cmd.Flags().GetInt("jobs")
	}
	if solverPath, _ := cmd.Flags().GetString("solver"); solverPath != "" {
		conf.SolverPath = solverPath
	}
	return conf, nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
