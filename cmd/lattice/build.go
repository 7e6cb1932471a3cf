package main

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"lattice"
)

var flagVerbose bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Discover, parse, and evaluate the source tree once",
	Long:  "Resolves entry points, walks relative imports in parallel, and evaluates every module in dependency order. Cached snapshots are reused when file content is unchanged.",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	addSessionFlags(buildCmd)
	buildCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "include per-module definitions in output")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError("build", err)
	}
	logger := newLogger(cfg)

	session, backend, err := newSession(cfg, logger)
	if err != nil {
		return outputError("build", err)
	}
	defer backend.Close()

	start := time.Now()
	state, err := session.BuildInitial(context.Background())
	if err != nil {
		return outputError("build", err)
	}

	report := buildReport(session, state, "full", time.Since(start), flagVerbose)
	return outputResult(CLIResult{Command: "build", Results: report})
}

// buildReport flattens a state generation into the CLI report shape.
func buildReport(session *lattice.Session, state *lattice.State, kind string, elapsed time.Duration, verbose bool) CLIBuildReport {
	snap := session.Snapshot()
	report := CLIBuildReport{
		SessionID:    snap.SessionID,
		Kind:         kind,
		Files:        len(state.Snapshots),
		GraphNodes:   state.Graph.NodeCount(),
		GraphEdges:   state.Graph.EdgeCount(),
		Cycles:       state.CycleDiagnostics,
		DurationMS:   elapsed.Milliseconds(),
		CacheVersion: snap.CacheVersion,
	}

	files := make([]string, 0, len(state.Evaluation))
	for file := range state.Evaluation {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		result := state.Evaluation[file]
		report.Definitions += len(result.Definitions)
		for _, issue := range result.Issues {
			report.Issues = append(report.Issues, CLIIssue{
				Severity:    issue.Severity,
				Message:     issue.Message,
				File:        file,
				CanonicalID: issue.CanonicalID,
				Line:        issue.Loc.Line,
			})
		}
		if verbose && len(result.Definitions) > 0 {
			mod := CLIModuleInfo{File: file}
			for _, def := range result.Definitions {
				mod.Definitions = append(mod.Definitions, CLIDefinition{
					CanonicalID: def.CanonicalID,
					ExportName:  def.ExportName,
					Kind:        string(def.Kind),
					Line:        def.Loc.Line,
				})
			}
			report.Modules = append(report.Modules, mod)
		}
	}
	return report
}
