// Package bitbucket reads detection-rule files out of a repository
// directory via the Bitbucket Cloud 2.0 API.
package bitbucket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/httpapi"
)

// APIBaseURL is the Bitbucket Cloud REST endpoint.
const APIBaseURL = "https://api.bitbucket.org/2.0"

// entryTypeFile marks file blobs in directory listings; subdirectories
// arrive as "commit_directory" and are not descended into.
const entryTypeFile = "commit_file"

// RuleSource lists the rule files in the configured repository directory.
// Implemented by DefaultRuleSource; swap in a mock in tests.
type RuleSource interface {
	// ListRuleCandidates fetches every qualifying rule file at the
	// configured ref, in listing order. Any listing-page failure is
	// fatal. Per-file problems (fetch failure, non-UTF-8 content,
	// empty content) skip that file only.
	ListRuleCandidates(ctx context.Context) ([]models.RuleCandidate, error)

	// CheckAccess walks the directory listing without fetching any
	// content and returns the number of qualifying rule files.
	CheckAccess(ctx context.Context) (int, error)
}

// DefaultRuleSource is the production RuleSource backed by the Bitbucket
// Cloud API.
type DefaultRuleSource struct {
	api    *httpapi.Client
	ref    models.SourceRef
	ext    string
	logger *slog.Logger
}

// NewDefaultRuleSource returns a RuleSource reading from ref, counting
// files with extension ext as rules. A nil logger discards all output.
func NewDefaultRuleSource(api *httpapi.Client, ref models.SourceRef, ext string, logger *slog.Logger) *DefaultRuleSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultRuleSource{api: api, ref: ref, ext: ext, logger: logger}
}

// ListRuleCandidates walks the directory listing and reads every rule
// file's content.
func (s *DefaultRuleSource) ListRuleCandidates(ctx context.Context) ([]models.RuleCandidate, error) {
	pager := newDirectoryPager(s.api, s.listingPath())

	var candidates []models.RuleCandidate
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s at %s: %w", s.ref.Directory, s.ref.Ref, err)
		}
		for _, entry := range page.Values {
			if !s.isRuleFile(entry) {
				continue
			}
			s.logger.Info("found rule file", "path", entry.Path)
			cand, ok := s.fetchCandidate(ctx, entry.Path)
			if !ok {
				continue
			}
			candidates = append(candidates, cand)
		}
	}

	s.logger.Info("finished reading rule files", "count", len(candidates))
	return candidates, nil
}

// CheckAccess walks the directory listing without fetching any content
// and returns the number of qualifying rule files. Used by diagnostics.
func (s *DefaultRuleSource) CheckAccess(ctx context.Context) (int, error) {
	pager := newDirectoryPager(s.api, s.listingPath())

	count := 0
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list %s at %s: %w", s.ref.Directory, s.ref.Ref, err)
		}
		for _, entry := range page.Values {
			if s.isRuleFile(entry) {
				count++
			}
		}
	}
	return count, nil
}

func (s *DefaultRuleSource) listingPath() string {
	return fmt.Sprintf("repositories/%s/%s/src/%s/%s",
		s.ref.Workspace, s.ref.Repository, s.ref.Ref, s.ref.Directory)
}

func (s *DefaultRuleSource) contentPath(filePath string) string {
	return fmt.Sprintf("repositories/%s/%s/src/%s/%s",
		s.ref.Workspace, s.ref.Repository, s.ref.Ref, filePath)
}

func (s *DefaultRuleSource) isRuleFile(e directoryEntry) bool {
	return e.Type == entryTypeFile && strings.HasSuffix(e.Path, s.ext)
}

// fetchCandidate reads one file's content and builds its candidate.
// Returns false when the file must be skipped; the listing walk
// continues either way.
func (s *DefaultRuleSource) fetchCandidate(ctx context.Context, filePath string) (models.RuleCandidate, bool) {
	raw, err := s.api.GetBytes(ctx, s.contentPath(filePath))
	if err != nil {
		s.logger.Error("failed to fetch rule file, skipping", "path", filePath, "error", err)
		return models.RuleCandidate{}, false
	}
	if !utf8.Valid(raw) {
		s.logger.Error("rule file is not valid UTF-8, skipping", "path", filePath)
		return models.RuleCandidate{}, false
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("rule file is empty, skipping", "path", filePath)
		return models.RuleCandidate{}, false
	}

	return models.RuleCandidate{
		Name:       strings.TrimSuffix(path.Base(filePath), s.ext),
		Text:       text,
		SourcePath: filePath,
	}, true
}
