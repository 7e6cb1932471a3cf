package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Build from cache and report session counts",
	Long:  "Runs a build served from the snapshot cache where possible and prints the session projection: file, graph, issue, and cycle counts.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	addSessionFlags(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError("status", err)
	}
	logger := newLogger(cfg)

	session, backend, err := newSession(cfg, logger)
	if err != nil {
		return outputError("status", err)
	}
	defer backend.Close()

	if _, err := session.BuildInitial(context.Background()); err != nil {
		return outputError("status", err)
	}

	snap := session.Snapshot()
	status := CLIStatus{
		SessionID:    snap.SessionID,
		Built:        snap.Built,
		Files:        snap.SnapshotCount,
		GraphNodes:   snap.GraphNodes,
		GraphEdges:   snap.GraphEdges,
		Issues:       snap.IssueCount,
		Cycles:       snap.CycleCount,
		CacheVersion: snap.CacheVersion,
	}
	if !snap.BuiltAt.IsZero() {
		status.BuiltAt = snap.BuiltAt.Format(time.RFC3339)
	}
	return outputResult(CLIResult{Command: "status", Results: status})
}
