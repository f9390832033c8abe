package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
)

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatJSON  ReportFormat = "json"
	ReportFormatTable ReportFormat = "table"
)

// SyncOptions configures a single sync run.
// It is the sole input to Engine.RunSync.
type SyncOptions struct {
	// Source identifies the repository location candidates are read
	// from. Stamped into the report; the fetcher is already bound to it.
	Source models.SourceRef

	// DryRun verifies unseen rules but never uploads them. Verified
	// rules are counted as planned instead of uploaded.
	DryRun bool
}

// Engine is the central orchestration interface. It diffs the repository
// rule files against the remote rule directory and uploads what is
// missing, returning a fully populated SyncReport.
//
// Engine must not speak HTTP directly; it delegates to the rule
// directory and rule source interfaces.
type Engine interface {
	RunSync(ctx context.Context, opts SyncOptions) (*models.SyncReport, error)
}
