package chronicle

import (
	"context"
	"net/url"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/httpapi"
)

// ruleListPage is one page of the rule listing.
type ruleListPage struct {
	Rules         []ruleEntry `json:"rules"`
	NextPageToken string      `json:"nextPageToken"`
}

// ruleEntry is a single registered rule as returned by the listing.
type ruleEntry struct {
	RuleID   string `json:"ruleId"`
	ID       string `json:"id"`
	RuleName string `json:"ruleName"`
}

// Identifier returns the best available id for log lines.
func (r ruleEntry) Identifier() string {
	switch {
	case r.RuleID != "":
		return r.RuleID
	case r.ID != "":
		return r.ID
	default:
		return "unknown"
	}
}

// ruleListPager walks the paginated rule listing one page at a time,
// following the service's opaque continuation tokens. It mirrors the
// aws-sdk-go-v2 paginator contract: call NextPage while HasMorePages
// reports true. Consumers never see tokens.
type ruleListPager struct {
	api       *httpapi.Client
	nextToken string
	started   bool
}

func newRuleListPager(api *httpapi.Client) *ruleListPager {
	return &ruleListPager{api: api}
}

// HasMorePages reports whether another NextPage call can return data.
func (p *ruleListPager) HasMorePages() bool {
	return !p.started || p.nextToken != ""
}

// NextPage fetches the next listing page. The first call carries no
// pageToken parameter at all; later calls pass the token from the
// previous page verbatim.
func (p *ruleListPager) NextPage(ctx context.Context) (*ruleListPage, error) {
	var query url.Values
	if p.nextToken != "" {
		query = url.Values{"pageToken": {p.nextToken}}
	}

	var page ruleListPage
	if err := p.api.GetJSON(ctx, rulesPath, query, &page); err != nil {
		return nil, err
	}

	p.started = true
	p.nextToken = page.NextPageToken
	return &page, nil
}
