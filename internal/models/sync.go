package models

import "time"

// SyncAction classifies the outcome of processing one repository rule file.
type SyncAction string

const (
	ActionSkipped            SyncAction = "SKIPPED"
	ActionUploaded           SyncAction = "UPLOADED"
	ActionPlanned            SyncAction = "PLANNED"
	ActionFailedVerification SyncAction = "FAILED_VERIFICATION"
	ActionFailedUpload       SyncAction = "FAILED_UPLOAD"
)

// RuleCandidate is a detection rule read from the repository and considered
// for upload. Name is the file base name without the rule extension and is
// the identity used when diffing against the remote rule directory.
type RuleCandidate struct {
	Name       string `json:"name"`
	Text       string `json:"text"`
	SourcePath string `json:"source_path"`
}

// SourceRef identifies the repository location candidates were read from.
type SourceRef struct {
	Workspace  string `json:"workspace"`
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
	Directory  string `json:"directory"`
}

// RuleResult records what happened to a single candidate during a sync run.
type RuleResult struct {
	RuleName   string     `json:"rule_name"`
	SourcePath string     `json:"source_path"`
	Action     SyncAction `json:"action"`
	// RuleID is the identifier assigned by the rule directory on upload.
	RuleID string `json:"rule_id,omitempty"`
	// Detail carries the failure reason for FAILED_* actions.
	Detail string `json:"detail,omitempty"`
}

// SyncSummary aggregates counts across all processed candidates.
type SyncSummary struct {
	Processed          int `json:"processed"`
	Skipped            int `json:"skipped"`
	Uploaded           int `json:"uploaded"`
	Planned            int `json:"planned,omitempty"`
	FailedVerification int `json:"failed_verification"`
	FailedUpload       int `json:"failed_upload"`
	// ExistingRules is the number of named rules already registered in the
	// remote directory when the run started.
	ExistingRules int `json:"existing_rules"`
}

// Failed reports whether the run must exit non-zero. Skips never count as
// failures; only rejected verifications and failed uploads do.
func (s SyncSummary) Failed() bool {
	return s.FailedVerification+s.FailedUpload > 0
}

// SyncReport is the top-level output of a sync run.
type SyncReport struct {
	ReportID    string       `json:"report_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Source      SourceRef    `json:"source"`
	DryRun      bool         `json:"dry_run,omitempty"`
	Summary     SyncSummary  `json:"summary"`
	Results     []RuleResult `json:"results"`
}
