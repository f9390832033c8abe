package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/engine"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
)

// ── provider mocks ────────────────────────────────────────────────────────────

// mockDirectory implements chronicle.RuleDirectory with canned responses.
// Shared with the doctor tests.
type mockDirectory struct {
	names    map[string]struct{}
	namesErr error
}

func (m *mockDirectory) ListRuleNames(context.Context) (map[string]struct{}, error) {
	if m.namesErr != nil {
		return nil, m.namesErr
	}
	return m.names, nil
}

func (m *mockDirectory) VerifyRule(context.Context, string, string) error { return nil }

func (m *mockDirectory) CreateRule(context.Context, string, string) (string, error) {
	return "ru_0", nil
}

// mockRuleSource implements bitbucket.RuleSource with canned responses.
// Shared with the doctor tests.
type mockRuleSource struct {
	candidates []models.RuleCandidate
	err        error
}

func (m *mockRuleSource) ListRuleCandidates(context.Context) ([]models.RuleCandidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *mockRuleSource) CheckAccess(context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.candidates), nil
}

// mockEngine implements engine.Engine and records the options it ran with.
type mockEngine struct {
	report  *models.SyncReport
	err     error
	gotOpts engine.SyncOptions
}

func (m *mockEngine) RunSync(_ context.Context, opts engine.SyncOptions) (*models.SyncReport, error) {
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

// mockArchiver implements reportArchiver and records the stored report.
type mockArchiver struct {
	err    error
	stored *models.SyncReport
}

func (m *mockArchiver) Store(_ context.Context, report *models.SyncReport) (string, error) {
	m.stored = report
	if m.err != nil {
		return "", m.err
	}
	return "s3://audit/reports/" + report.ReportID + ".json", nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func makeReport(results []models.RuleResult) *models.SyncReport {
	var s models.SyncSummary
	s.Processed = len(results)
	for _, r := range results {
		switch r.Action {
		case models.ActionSkipped:
			s.Skipped++
		case models.ActionUploaded:
			s.Uploaded++
		case models.ActionPlanned:
			s.Planned++
		case models.ActionFailedVerification:
			s.FailedVerification++
		case models.ActionFailedUpload:
			s.FailedUpload++
		}
	}
	return &models.SyncReport{
		ReportID:    "sync-test",
		GeneratedAt: time.Now().UTC(),
		Source: models.SourceRef{
			Workspace:  "acme",
			Repository: "detection-rules",
			Ref:        "main",
			Directory:  "rules",
		},
		Summary: s,
		Results: results,
	}
}

func uploadedResult(name string) models.RuleResult {
	return models.RuleResult{
		RuleName:   name,
		SourcePath: "rules/" + name + ".yaral",
		Action:     models.ActionUploaded,
		RuleID:     "ru_" + name,
	}
}

// ── runSync ──────────────────────────────────────────────────────────────────

func TestRunSync_TableOutput(t *testing.T) {
	eng := &mockEngine{report: makeReport([]models.RuleResult{uploadedResult("suspicious_login")})}

	var buf bytes.Buffer
	report, err := runSync(context.Background(), eng, nil, engine.SyncOptions{}, &buf, "table", false, "")
	if err != nil {
		t.Fatalf("runSync error: %v", err)
	}
	if report == nil {
		t.Fatal("runSync returned nil report")
	}

	out := buf.String()
	for _, want := range []string{"suspicious_login", "UPLOADED", "rules/suspicious_login.yaral"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestRunSync_JSONOutput(t *testing.T) {
	eng := &mockEngine{report: makeReport([]models.RuleResult{uploadedResult("suspicious_login")})}

	var buf bytes.Buffer
	if _, err := runSync(context.Background(), eng, nil, engine.SyncOptions{}, &buf, "json", false, ""); err != nil {
		t.Fatalf("runSync error: %v", err)
	}

	var got models.SyncReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw:\n%s", err, buf.String())
	}
	if got.ReportID != "sync-test" {
		t.Errorf("report_id: got %q; want sync-test", got.ReportID)
	}
	if got.Summary.Uploaded != 1 {
		t.Errorf("uploaded: got %d; want 1", got.Summary.Uploaded)
	}
}

func TestRunSync_SummaryOutput(t *testing.T) {
	eng := &mockEngine{report: makeReport([]models.RuleResult{uploadedResult("suspicious_login")})}

	var buf bytes.Buffer
	if _, err := runSync(context.Background(), eng, nil, engine.SyncOptions{}, &buf, "table", true, ""); err != nil {
		t.Fatalf("runSync error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Processed", "Uploaded", "acme/detection-rules"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestRunSync_EngineError(t *testing.T) {
	eng := &mockEngine{err: errors.New("rule listing exploded")}

	var buf bytes.Buffer
	report, err := runSync(context.Background(), eng, nil, engine.SyncOptions{}, &buf, "table", false, "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if report != nil {
		t.Errorf("report must be nil on engine failure; got %+v", report)
	}
	if !strings.Contains(err.Error(), "sync failed") {
		t.Errorf("error %q missing 'sync failed' prefix", err)
	}
}

func TestRunSync_OptionsForwarded(t *testing.T) {
	eng := &mockEngine{report: makeReport(nil)}
	opts := engine.SyncOptions{
		Source: models.SourceRef{Workspace: "w", Repository: "r", Ref: "dev", Directory: "d"},
		DryRun: true,
	}

	var buf bytes.Buffer
	if _, err := runSync(context.Background(), eng, nil, opts, &buf, "table", false, ""); err != nil {
		t.Fatalf("runSync error: %v", err)
	}
	if eng.gotOpts != opts {
		t.Errorf("engine options: got %+v; want %+v", eng.gotOpts, opts)
	}
}

func TestRunSync_WritesReportFile(t *testing.T) {
	eng := &mockEngine{report: makeReport([]models.RuleResult{uploadedResult("suspicious_login")})}
	path := filepath.Join(t.TempDir(), "report.json")

	var buf bytes.Buffer
	if _, err := runSync(context.Background(), eng, nil, engine.SyncOptions{}, &buf, "table", false, path); err != nil {
		t.Fatalf("runSync error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report file: %v", err)
	}
	var got models.SyncReport
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal report file: %v", err)
	}
	if got.ReportID != "sync-test" {
		t.Errorf("report_id: got %q; want sync-test", got.ReportID)
	}
}

func TestRunSync_ArchiverReceivesReport(t *testing.T) {
	eng := &mockEngine{report: makeReport(nil)}
	arch := &mockArchiver{}

	var buf bytes.Buffer
	report, err := runSync(context.Background(), eng, arch, engine.SyncOptions{}, &buf, "table", false, "")
	if err != nil {
		t.Fatalf("runSync error: %v", err)
	}
	if arch.stored != report {
		t.Error("archiver did not receive the rendered report")
	}
}

func TestRunSync_ArchiveFailureIsNotFatal(t *testing.T) {
	eng := &mockEngine{report: makeReport([]models.RuleResult{uploadedResult("suspicious_login")})}
	arch := &mockArchiver{err: errors.New("bucket gone")}

	var buf bytes.Buffer
	report, err := runSync(context.Background(), eng, arch, engine.SyncOptions{}, &buf, "table", false, "")
	if err != nil {
		t.Fatalf("archive failure must not fail the run; got: %v", err)
	}
	if report == nil {
		t.Fatal("runSync returned nil report")
	}
	if !strings.Contains(buf.String(), "suspicious_login") {
		t.Errorf("report must still render after archive failure; got:\n%s", buf.String())
	}
}

// ── runRules ─────────────────────────────────────────────────────────────────

func TestRunRules_RemoteSorted(t *testing.T) {
	directory := &mockDirectory{names: map[string]struct{}{"zeta_rule": {}, "alpha_rule": {}}}

	var buf bytes.Buffer
	if err := runRules(context.Background(), directory, &mockRuleSource{}, "remote", &buf, "table"); err != nil {
		t.Fatalf("runRules error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "2 rules registered.") {
		t.Errorf("output missing count line\ngot:\n%s", out)
	}
	alpha := strings.Index(out, "alpha_rule")
	zeta := strings.Index(out, "zeta_rule")
	if alpha == -1 || zeta == -1 {
		t.Fatalf("output missing rule names\ngot:\n%s", out)
	}
	if alpha > zeta {
		t.Errorf("rules not sorted alphabetically\ngot:\n%s", out)
	}
}

func TestRunRules_RemoteError(t *testing.T) {
	directory := &mockDirectory{namesErr: errors.New("401 from API")}

	var buf bytes.Buffer
	err := runRules(context.Background(), directory, &mockRuleSource{}, "remote", &buf, "table")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "list remote rules") {
		t.Errorf("error %q missing context", err)
	}
}

func TestRunRules_Repo(t *testing.T) {
	source := &mockRuleSource{candidates: []models.RuleCandidate{
		{Name: "suspicious_login", Text: "rule suspicious_login {}", SourcePath: "rules/suspicious_login.yaral"},
		{Name: "dns_tunnel", Text: "rule dns_tunnel {}", SourcePath: "rules/dns_tunnel.yaral"},
	}}

	var buf bytes.Buffer
	if err := runRules(context.Background(), &mockDirectory{}, source, "repo", &buf, "table"); err != nil {
		t.Fatalf("runRules error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"suspicious_login",
		"rules/dns_tunnel.yaral",
		"2 rule files found.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestRunRules_RemoteJSON(t *testing.T) {
	directory := &mockDirectory{names: map[string]struct{}{"zeta_rule": {}, "alpha_rule": {}}}

	var buf bytes.Buffer
	if err := runRules(context.Background(), directory, &mockRuleSource{}, "remote", &buf, "json"); err != nil {
		t.Fatalf("runRules error: %v", err)
	}

	var got ruleListing
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw:\n%s", err, buf.String())
	}
	if got.Source != "remote" {
		t.Errorf("source: got %q; want remote", got.Source)
	}
	if got.Count != 2 || len(got.Rules) != 2 {
		t.Fatalf("count: got %d (%d items); want 2", got.Count, len(got.Rules))
	}
	if got.Rules[0].Name != "alpha_rule" || got.Rules[1].Name != "zeta_rule" {
		t.Errorf("rules not sorted: got %+v", got.Rules)
	}
}

func TestRunRules_RepoJSON(t *testing.T) {
	source := &mockRuleSource{candidates: []models.RuleCandidate{
		{Name: "dns_tunnel", Text: "rule dns_tunnel {}", SourcePath: "rules/dns_tunnel.yaral"},
	}}

	var buf bytes.Buffer
	if err := runRules(context.Background(), &mockDirectory{}, source, "repo", &buf, "json"); err != nil {
		t.Fatalf("runRules error: %v", err)
	}

	var got ruleListing
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw:\n%s", err, buf.String())
	}
	if got.Count != 1 || len(got.Rules) != 1 {
		t.Fatalf("count: got %d (%d items); want 1", got.Count, len(got.Rules))
	}
	item := got.Rules[0]
	if item.Name != "dns_tunnel" {
		t.Errorf("name: got %q; want dns_tunnel", item.Name)
	}
	if item.SourcePath != "rules/dns_tunnel.yaral" {
		t.Errorf("source_path: got %q; want rules/dns_tunnel.yaral", item.SourcePath)
	}
	if item.SizeBytes != len("rule dns_tunnel {}") {
		t.Errorf("size_bytes: got %d; want %d", item.SizeBytes, len("rule dns_tunnel {}"))
	}
}

func TestRunRules_RepoError(t *testing.T) {
	source := &mockRuleSource{err: errors.New("listing failed")}

	var buf bytes.Buffer
	if err := runRules(context.Background(), &mockDirectory{}, source, "repo", &buf, "table"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunRules_UnknownMode(t *testing.T) {
	var buf bytes.Buffer
	err := runRules(context.Background(), &mockDirectory{}, &mockRuleSource{}, "sideways", &buf, "table")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "sideways") {
		t.Errorf("error %q must name the bad mode", err)
	}
}

// ── command wiring ───────────────────────────────────────────────────────────

// TestSyncCmd_CobraCleanOutput verifies that newSyncCmd sets SilenceErrors
// and SilenceUsage so Cobra does not append "Error: ..." or the usage block
// to output when RunE returns an error.
func TestSyncCmd_CobraCleanOutput(t *testing.T) {
	cmd := newSyncCmd(&app{})
	if !cmd.SilenceErrors {
		t.Error("sync command must have SilenceErrors=true")
	}
	if !cmd.SilenceUsage {
		t.Error("sync command must have SilenceUsage=true")
	}
}

func TestRulesCmd_CobraCleanOutput(t *testing.T) {
	cmd := newRulesCmd(&app{})
	if !cmd.SilenceErrors {
		t.Error("rules command must have SilenceErrors=true")
	}
	if !cmd.SilenceUsage {
		t.Error("rules command must have SilenceUsage=true")
	}
}

// ── writeReportToFile ────────────────────────────────────────────────────────

func TestWriteReportToFile_Success(t *testing.T) {
	report := makeReport(nil)
	path := filepath.Join(t.TempDir(), "report.json")

	if err := writeReportToFile(path, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}

func TestWriteReportToFile_InvalidPath(t *testing.T) {
	report := makeReport(nil)
	// Directory does not exist — write must fail.
	path := filepath.Join(t.TempDir(), "nonexistent", "report.json")

	if err := writeReportToFile(path, report); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestWriteReportToFile_ContentMatchesJSON(t *testing.T) {
	report := makeReport([]models.RuleResult{uploadedResult("dns_tunnel")})
	path := filepath.Join(t.TempDir(), "report.json")

	if err := writeReportToFile(path, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	var got models.SyncReport
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ReportID != report.ReportID {
		t.Errorf("report_id: got %q; want %q", got.ReportID, report.ReportID)
	}
	if len(got.Results) != 1 {
		t.Fatalf("results count: got %d; want 1", len(got.Results))
	}
	if got.Results[0].RuleName != "dns_tunnel" {
		t.Errorf("result rule_name: got %q; want dns_tunnel", got.Results[0].RuleName)
	}
	if got.Summary.Uploaded != 1 {
		t.Errorf("uploaded: got %d; want 1", got.Summary.Uploaded)
	}
}
