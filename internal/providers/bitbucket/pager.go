package bitbucket

import (
	"context"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/httpapi"
)

// directoryPage is one page of a directory listing.
type directoryPage struct {
	Values []directoryEntry `json:"values"`
	// Next is the absolute URL of the following page, absent on the
	// last one.
	Next string `json:"next"`
}

// directoryEntry is a single tree entry in a listing page.
type directoryEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// directoryPager walks a paginated directory listing by following the
// absolute "next" links embedded in every page. Same contract as the
// aws-sdk-go-v2 paginators: call NextPage while HasMorePages is true.
type directoryPager struct {
	api     *httpapi.Client
	nextURL string
	started bool
}

// newDirectoryPager starts a pager at firstPath, a path relative to the
// API base URL. Every later page address is absolute.
func newDirectoryPager(api *httpapi.Client, firstPath string) *directoryPager {
	return &directoryPager{api: api, nextURL: firstPath}
}

// HasMorePages reports whether another NextPage call can return data.
func (p *directoryPager) HasMorePages() bool {
	return !p.started || p.nextURL != ""
}

// NextPage fetches the next listing page.
func (p *directoryPager) NextPage(ctx context.Context) (*directoryPage, error) {
	var page directoryPage
	if err := p.api.GetJSON(ctx, p.nextURL, nil, &page); err != nil {
		return nil, err
	}

	p.started = true
	p.nextURL = page.Next
	return &page, nil
}
