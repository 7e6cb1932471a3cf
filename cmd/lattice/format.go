package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case CLIBuildReport:
		formatBuildReportText(w, v)
	case CLIStatus:
		formatStatusText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// formatBuildReportText formats a build report as readable text.
func formatBuildReportText(w io.Writer, report CLIBuildReport) {
	fmt.Fprintf(w, "Build (%s): %d files, %d definitions in %dms\n",
		report.Kind, report.Files, report.Definitions, report.DurationMS)
	fmt.Fprintf(w, "Graph: %d nodes, %d edges\n", report.GraphNodes, report.GraphEdges)

	for _, cycle := range report.Cycles {
		fmt.Fprintf(w, "Cycle: %s\n", cycle)
	}

	if len(report.Issues) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tFILE\tLINE\tMESSAGE")
		for _, issue := range report.Issues {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
				issue.Severity, issue.File, issue.Line, issue.Message)
		}
		tw.Flush()
	}

	if len(report.Modules) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CANONICAL ID\tKIND\tLINE")
		for _, mod := range report.Modules {
			for _, def := range mod.Definitions {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", def.CanonicalID, def.Kind, def.Line)
			}
		}
		tw.Flush()
	}
}

// formatStatusText formats the session projection as readable text.
func formatStatusText(w io.Writer, status CLIStatus) {
	fmt.Fprintln(w, "Session Status")
	fmt.Fprintln(w, "==============")
	fmt.Fprintf(w, "Session: %s\n", status.SessionID)
	fmt.Fprintf(w, "Built: %t\n", status.Built)
	fmt.Fprintf(w, "Files: %d\n", status.Files)
	fmt.Fprintf(w, "Graph: %d nodes, %d edges\n", status.GraphNodes, status.GraphEdges)
	fmt.Fprintf(w, "Issues: %d\n", status.Issues)
	fmt.Fprintf(w, "Cycles: %d\n", status.Cycles)
	fmt.Fprintf(w, "Cache version: %s\n", status.CacheVersion)
	if status.BuiltAt != "" {
		fmt.Fprintf(w, "Built at: %s\n", status.BuiltAt)
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
