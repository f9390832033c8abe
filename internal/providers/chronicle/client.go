// Package chronicle implements the client for the Chronicle v2
// rule-management API: listing registered rules, verifying rule text,
// and creating new rules.
package chronicle

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/httpapi"
)

const (
	// rulesPath serves both the paginated listing (GET) and rule
	// creation (POST).
	rulesPath = "detect/rules"

	// verifyRulePath validates rule text without registering it.
	verifyRulePath = "detect/rules:verifyRule"
)

// BaseURL returns the regional API endpoint for region ("us", "europe", ...).
func BaseURL(region string) string {
	return fmt.Sprintf("https://%s-backstory.googleapis.com/v2", region)
}

// RuleDirectory is the remote rule-management surface the sync engine and
// the doctor command depend on. Implemented by DefaultRuleDirectory; swap
// in a mock in tests.
type RuleDirectory interface {
	// ListRuleNames returns the set of ruleNames currently registered.
	// Rules without a ruleName are logged and excluded: they can never
	// match a repository file. A failure on the first page is returned
	// as an error; a failure on a later page truncates the listing and
	// the partial set is returned.
	ListRuleNames(ctx context.Context) (map[string]struct{}, error)

	// VerifyRule submits rule text for server-side syntax validation.
	// nil means the service accepted the text.
	VerifyRule(ctx context.Context, name, text string) error

	// CreateRule registers a new rule and returns the identifier the
	// service assigned to it.
	CreateRule(ctx context.Context, name, text string) (string, error)
}

// DefaultRuleDirectory is the production RuleDirectory backed by the
// Chronicle REST API.
type DefaultRuleDirectory struct {
	api    *httpapi.Client
	logger *slog.Logger
}

// NewDefaultRuleDirectory returns a RuleDirectory speaking to the service
// behind api. A nil logger discards all output.
func NewDefaultRuleDirectory(api *httpapi.Client, logger *slog.Logger) *DefaultRuleDirectory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultRuleDirectory{api: api, logger: logger}
}

// verifyRuleRequest is the verifyRule payload. The field is snake_case
// while the create payload is camelCase; the service really is that
// inconsistent.
type verifyRuleRequest struct {
	RuleText string `json:"rule_text"`
}

// createRuleRequest is the rule-creation payload.
type createRuleRequest struct {
	RuleName string `json:"ruleName"`
	RuleText string `json:"ruleText"`
}

// createRuleResponse carries the identifier assigned to a new rule.
// Older API revisions return "id" instead of "ruleId".
type createRuleResponse struct {
	RuleID string `json:"ruleId"`
	ID     string `json:"id"`
}

// ListRuleNames pages through the full rule listing and collects every
// ruleName into a set.
func (d *DefaultRuleDirectory) ListRuleNames(ctx context.Context) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	pager := newRuleListPager(d.api)

	var total, pages int
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if pages == 0 {
				return nil, fmt.Errorf("list rules page: %w", err)
			}
			d.logger.Error("rule listing truncated, continuing with partial set",
				"pages_fetched", pages, "error", err)
			break
		}
		pages++
		total += len(page.Rules)
		for _, r := range page.Rules {
			if r.RuleName == "" {
				d.logger.Warn("registered rule has no ruleName, cannot match it",
					"rule_id", r.Identifier())
				continue
			}
			names[r.RuleName] = struct{}{}
		}
	}

	d.logger.Info("fetched existing rules",
		"total", total, "named", len(names), "pages", pages)
	return names, nil
}

// VerifyRule asks the service to validate text. Any transport or status
// failure counts as a verification failure.
func (d *DefaultRuleDirectory) VerifyRule(ctx context.Context, name, text string) error {
	if err := d.api.PostJSON(ctx, verifyRulePath, verifyRuleRequest{RuleText: text}, nil); err != nil {
		return fmt.Errorf("verify rule %s: %w", name, err)
	}
	d.logger.Debug("rule verified", "rule", name)
	return nil
}

// CreateRule registers a new rule. A 2xx response without a rule
// identifier is still a failure: the service did not confirm creation.
func (d *DefaultRuleDirectory) CreateRule(ctx context.Context, name, text string) (string, error) {
	var resp createRuleResponse
	if err := d.api.PostJSON(ctx, rulesPath, createRuleRequest{RuleName: name, RuleText: text}, &resp); err != nil {
		return "", fmt.Errorf("create rule %s: %w", name, err)
	}
	id := resp.RuleID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("create rule %s: response carries no rule identifier", name)
	}
	d.logger.Debug("rule created", "rule", name, "rule_id", id)
	return id, nil
}
