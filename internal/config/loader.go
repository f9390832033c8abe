package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Environment variables recognized by the loader. The Chronicle and
// Bitbucket names match the contract of the deployment pipelines that
// drive this tool, so they are mapped explicitly rather than derived
// from a tool-specific prefix.
//
//	CHRONICLE_REGION            chronicle.region
//	CHRONICLE_ACCESS_TOKEN      chronicle.access_token
//	BITBUCKET_WORKSPACE         bitbucket.workspace
//	BITBUCKET_REPO_SLUG         bitbucket.repo_slug
//	BITBUCKET_ACCESS_TOKEN      bitbucket.access_token
//	BITBUCKET_BRANCH_OR_COMMIT  bitbucket.branch_or_commit
//	RULES_DIR                   rules_dir
//	RULE_EXTENSION              rule_extension
//	LOG_LEVEL / LOG_FORMAT      log.level / log.format
//	HTTP_TIMEOUT_SECONDS        http.timeout_seconds
//	ARCHIVE_BUCKET / _PREFIX    archive.bucket / archive.prefix

// flagKeys maps persistent CLI flags onto config keys. Flags not listed
// here never reach the configuration.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"rules-dir":  "rules_dir",
	"ref":        "bitbucket.branch_or_commit",
}

// Load assembles the configuration. Precedence, highest to lowest:
// flags > environment > config file > defaults. cfgFile may be empty,
// in which case crs.yaml / crs.yml in the working directory are tried.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"bitbucket.branch_or_commit": "main",
		"rules_dir":                  "rules",
		"rule_extension":             ".yaral",
		"log.level":                  "info",
		"log.format":                 "text",
		"http.timeout_seconds":       30,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := cfgFile != ""
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found", cfgFile)
	}

	if err := k.Load(env.Provider("", ".", mapEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	normalize(&cfg)
	return &cfg, nil
}

// findConfigFile picks the config file to use.
// Priority: explicit path > crs.yaml > crs.yml. Empty means none.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{"crs.yaml", "crs.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// mapEnvKey translates a recognized environment variable into its config
// key. Returning "" drops the variable, so unrelated environment noise
// (PATH, HTTP_PROXY, ...) never lands in the configuration.
func mapEnvKey(s string) string {
	s = strings.ToLower(s)
	switch s {
	case "rules_dir", "rule_extension":
		return s
	}
	for _, prefix := range []string{"chronicle_", "bitbucket_", "log_", "archive_"} {
		if strings.HasPrefix(s, prefix) {
			return strings.Replace(s, "_", ".", 1)
		}
	}
	if s == "http_timeout_seconds" {
		return "http.timeout_seconds"
	}
	return ""
}

// normalize cleans up values that arrive in several equivalent spellings.
func normalize(cfg *Config) {
	cfg.RulesDir = strings.Trim(cfg.RulesDir, "/")
	if cfg.RuleExtension != "" && !strings.HasPrefix(cfg.RuleExtension, ".") {
		cfg.RuleExtension = "." + cfg.RuleExtension
	}
}
