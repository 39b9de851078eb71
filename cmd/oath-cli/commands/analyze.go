// SPDX-License-Identifier: Apache-2.0
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"oath/internal/analysis"
	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/parser"
	"oath/internal/semantic"
	"oath/internal/solver"
	"oath/internal/vcache"
)

var log = commonlog.GetLogger("oath.cli")

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.oath>",
	Short: "Run every enabled analysis over a module",
	Long: `Parses and typechecks the module, then runs the enabled analyses over
each function: dataflow, bug patterns, taint tracking, and SMT contract
verification. Diagnostics are rendered with their source excerpts; the
command exits nonzero when any error-level diagnostic or disproved
contract is found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args[0])
	},
}

func init() {
	analyzeCmd.Flags().Uint("timeout", solver.DefaultTimeoutMs, "Solver timeout per contract in milliseconds")
	analyzeCmd.Flags().Bool("no-cache", false, "Skip the verification cache")
	analyzeCmd.Flags().Int("jobs", 0, "Number of parallel analysis workers (0 = one per CPU)")
	analyzeCmd.Flags().String("solver", "", "Path to the SMT solver binary")
	analyzeCmd.Flags().String("dump-cfg", "", "Dump each function's control-flow graph (text or dot)")
	analyzeCmd.Flags().Lookup("dump-cfg").NoOptDefVal = "text"
}

func runAnalyze(cmd *cobra.Command, path string) error {
	start := time.Now()

	conf, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	dump, _ := cmd.Flags().GetString("dump-cfg")
	if dump != "" && dump != "text" && dump != "dot" {
		return fmt.Errorf("--dump-cfg must be text or dot, not %q", dump)
	}

	front, err := loadFrontEnd(path)
	if err != nil {
		return err
	}
	if front.module == nil || front.errors > 0 {
		color.Red("Analysis failed after %s", formatDuration(time.Since(start)))
		return ErrFindings
	}

	if dump != "" {
		dumpGraphs(front.module, dump)
	}

	coord := analysis.NewCoordinator(conf, front.registry, nil, openCache(conf))
	res := coord.Analyze(cmd.Context(), front.module)

	for _, d := range res.Diagnostics {
		fmt.Print(front.reporter.Format(d))
	}
	printSummary(conf, res)

	if res.Failed() {
		color.Red("Analysis failed after %s", formatDuration(time.Since(start)))
		return ErrFindings
	}
	color.Green("Analyzed %s in %s", path, formatDuration(time.Since(start)))
	return nil
}

// loadedModule carries the front end's output into the engine commands.
type loadedModule struct {
	module   *ast.Module
	registry *effects.Registry
	reporter *diag.Reporter
	errors   int
}

// loadFrontEnd reads, parses, and typechecks one source file, rendering
// any front-end diagnostics as it goes.
func loadFrontEnd(path string) (*loadedModule, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	reporter := diag.NewReporter(path, string(source))
	module, diags := parser.ParseModule(path, string(source))

	registry := effects.NewRegistry()
	if module != nil {
		diags = append(diags, semantic.NewAnalyzer(registry).Analyze(module)...)
	}

	loaded := &loadedModule{module: module, registry: registry, reporter: reporter}
	for _, d := range diags {
		fmt.Print(reporter.Format(d))
		if d.Severity == diag.Error {
			loaded.errors++
		}
	}
	return loaded, nil
}

func openCache(conf analysis.Config) *vcache.Cache {
	if !conf.CacheEnabled {
		return vcache.Disabled()
	}
	dir, err := vcache.DefaultDir()
	if err == nil {
		var cache *vcache.Cache
		if cache, err = vcache.NewFileCache(dir); err == nil {
			return cache
		}
	}
	log.Warningf("verification cache unavailable, keeping results in memory: %v", err)
	return vcache.NewMemory()
}

func dumpGraphs(module *ast.Module, format string) {
	for _, fn := range module.Functions {
		graph := cfg.Build(fn)
		if format == "dot" {
			fmt.Println(cfg.DOT(graph))
			continue
		}
		fmt.Println(cfg.Print(graph))
	}
}

func printSummary(conf analysis.Config, res *analysis.AnalysisResult) {
	errors := res.ErrorCount()
	warnings := len(res.Diagnostics) - errors
	fmt.Printf("%s analyzed: %s, %s\n",
		plural(res.Functions, "function"), plural(errors, "error"), plural(warnings, "warning"))

	if !conf.UseSmtVerification {
		return
	}
	s := res.Summary
	if s.Total() == 0 {
		return
	}
	line := fmt.Sprintf("verification: %d proven, %d disproven, %d unproven", s.Proven, s.Disproven, s.Unproven)
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
