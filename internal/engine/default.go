package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/bitbucket"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/chronicle"
)

// DefaultEngine is the production implementation of Engine.
// It coordinates the two service clients and assembles the report.
// It never performs HTTP requests itself.
type DefaultEngine struct {
	directory chronicle.RuleDirectory
	source    bitbucket.RuleSource
	logger    *slog.Logger
}

// NewDefaultEngine constructs a DefaultEngine wired to the supplied rule
// directory and rule source. A nil logger discards all output.
func NewDefaultEngine(
	directory chronicle.RuleDirectory,
	source bitbucket.RuleSource,
	logger *slog.Logger,
) *DefaultEngine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultEngine{
		directory: directory,
		source:    source,
		logger:    logger,
	}
}

// RunSync implements Engine.
//
// Flow:
//  1. Fetch the set of rule names already registered remotely. Failure
//     aborts the run before the repository is consulted.
//  2. Fetch the repository rule candidates. Failure aborts; an empty
//     list short-circuits into an empty success report.
//  3. Process candidates in listing order: known names are skipped,
//     unseen ones are verified and then uploaded. A verification
//     failure suppresses the upload for that rule only.
//  4. Re-count the registered rules once, for the log line only.
//
// Every remote call is attempted exactly once; there are no retries and
// no rollback. Failed rules stay absent remotely and surface in the
// report counters.
func (e *DefaultEngine) RunSync(ctx context.Context, opts SyncOptions) (*models.SyncReport, error) {
	existing, err := e.directory.ListRuleNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing rules: %w", err)
	}

	candidates, err := e.source.ListRuleCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rule candidates: %w", err)
	}

	summary := models.SyncSummary{ExistingRules: len(existing)}
	if len(candidates) == 0 {
		e.logger.Warn("no rule files found, nothing to sync",
			"directory", opts.Source.Directory, "ref", opts.Source.Ref)
		return buildReport(opts, summary, nil), nil
	}

	results := make([]models.RuleResult, 0, len(candidates))
	for _, cand := range candidates {
		summary.Processed++
		results = append(results, e.processCandidate(ctx, cand, existing, opts.DryRun, &summary))
	}

	e.logger.Info("sync finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"uploaded", summary.Uploaded,
		"planned", summary.Planned,
		"failed_verification", summary.FailedVerification,
		"failed_upload", summary.FailedUpload)

	// Informational only; never changes the outcome.
	if after, err := e.directory.ListRuleNames(ctx); err != nil {
		e.logger.Warn("final rule recount failed", "error", err)
	} else {
		e.logger.Info("rules registered after sync", "count", len(after))
	}

	return buildReport(opts, summary, results), nil
}

// processCandidate decides and executes the action for one candidate,
// bumping the matching summary counter.
func (e *DefaultEngine) processCandidate(
	ctx context.Context,
	cand models.RuleCandidate,
	existing map[string]struct{},
	dryRun bool,
	sum *models.SyncSummary,
) models.RuleResult {
	res := models.RuleResult{RuleName: cand.Name, SourcePath: cand.SourcePath}

	if _, ok := existing[cand.Name]; ok {
		e.logger.Info("rule already registered, skipping", "rule", cand.Name)
		sum.Skipped++
		res.Action = models.ActionSkipped
		return res
	}

	e.logger.Info("new rule, verifying", "rule", cand.Name, "path", cand.SourcePath)
	if err := e.directory.VerifyRule(ctx, cand.Name, cand.Text); err != nil {
		e.logger.Error("rule failed verification", "rule", cand.Name, "error", err)
		sum.FailedVerification++
		res.Action = models.ActionFailedVerification
		res.Detail = err.Error()
		return res
	}

	if dryRun {
		e.logger.Info("dry run, upload planned", "rule", cand.Name)
		sum.Planned++
		res.Action = models.ActionPlanned
		return res
	}

	ruleID, err := e.directory.CreateRule(ctx, cand.Name, cand.Text)
	if err != nil {
		e.logger.Error("rule upload failed", "rule", cand.Name, "error", err)
		sum.FailedUpload++
		res.Action = models.ActionFailedUpload
		res.Detail = err.Error()
		return res
	}

	e.logger.Info("rule uploaded", "rule", cand.Name, "rule_id", ruleID)
	sum.Uploaded++
	res.Action = models.ActionUploaded
	res.RuleID = ruleID
	return res
}

// buildReport assembles the final SyncReport.
func buildReport(opts SyncOptions, summary models.SyncSummary, results []models.RuleResult) *models.SyncReport {
	return &models.SyncReport{
		ReportID:    "sync-" + uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Source:      opts.Source,
		DryRun:      opts.DryRun,
		Summary:     summary,
		Results:     results,
	}
}
