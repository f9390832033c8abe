// Package config builds the explicit configuration value object every
// component receives at construction time. Nothing reads the environment
// after Load returns.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the top-level application configuration, assembled from
// defaults, an optional crs.yaml, environment variables, and flags.
type Config struct {
	Chronicle ChronicleConfig `koanf:"chronicle"`
	Bitbucket BitbucketConfig `koanf:"bitbucket"`

	// RulesDir is the repository directory scanned for rule files.
	// Stored without leading or trailing slashes.
	RulesDir string `koanf:"rules_dir"`

	// RuleExtension selects which files count as rules (".yaral").
	RuleExtension string `koanf:"rule_extension"`

	Log     LogConfig     `koanf:"log"`
	HTTP    HTTPConfig    `koanf:"http"`
	Archive ArchiveConfig `koanf:"archive"`
}

// ChronicleConfig holds the rule-directory service connection details.
type ChronicleConfig struct {
	// Region selects the regional API endpoint (e.g. "us", "europe").
	Region string `koanf:"region"`

	// AccessToken is the OAuth bearer token. Never committed.
	AccessToken string `koanf:"access_token"`
}

// Validate reports the environment variables still missing.
func (c ChronicleConfig) Validate() error {
	var missing []string
	if c.Region == "" {
		missing = append(missing, "CHRONICLE_REGION")
	}
	if c.AccessToken == "" {
		missing = append(missing, "CHRONICLE_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Chronicle configuration: set %s", strings.Join(missing, ", "))
	}
	return nil
}

// BitbucketConfig holds the repository connection details.
type BitbucketConfig struct {
	Workspace string `koanf:"workspace"`
	RepoSlug  string `koanf:"repo_slug"`

	// AccessToken is the repository access token. Never committed.
	AccessToken string `koanf:"access_token"`

	// BranchOrCommit is the ref whose tree is listed. Defaults to "main".
	BranchOrCommit string `koanf:"branch_or_commit"`
}

// Validate reports the environment variables still missing.
func (b BitbucketConfig) Validate() error {
	var missing []string
	if b.Workspace == "" {
		missing = append(missing, "BITBUCKET_WORKSPACE")
	}
	if b.RepoSlug == "" {
		missing = append(missing, "BITBUCKET_REPO_SLUG")
	}
	if b.AccessToken == "" {
		missing = append(missing, "BITBUCKET_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Bitbucket configuration: set %s", strings.Join(missing, ", "))
	}
	return nil
}

// LogConfig selects handler format and minimum level.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig tunes the shared REST client.
type HTTPConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// Timeout returns the per-request timeout as a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// ArchiveConfig configures the optional S3 report archive.
type ArchiveConfig struct {
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
}

// Enabled reports whether reports should be archived after a run.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Validate checks that both services are fully configured. It aggregates
// the per-service errors so one run reports everything that is missing.
func (c *Config) Validate() error {
	return errors.Join(c.Chronicle.Validate(), c.Bitbucket.Validate())
}
