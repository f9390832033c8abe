package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/config"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/bitbucket"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/chronicle"
)

// DoctorResult is the structured output of crs doctor. It can be serialised
// to JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	Config struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	} `json:"config"`

	Chronicle struct {
		Reachable bool   `json:"reachable"`
		RuleCount int    `json:"rule_count,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"chronicle"`

	Bitbucket struct {
		Reachable bool   `json:"reachable"`
		RuleFiles int    `json:"rule_files,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"bitbucket"`

	Archive struct {
		Configured bool   `json:"configured"`
		Bucket     string `json:"bucket,omitempty"`
	} `json:"archive"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			// Connectivity probes need a complete configuration; with an
			// incomplete one the checks are reported as skipped.
			var directory chronicle.RuleDirectory
			var source bitbucket.RuleSource
			if a.cfg.Validate() == nil {
				directory, source = buildClients(a.cfg, a.logger)
			}

			result, err := runDoctor(cmd.Context(), a.cfg, directory, source, cmd.OutOrStdout(), format)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main.go's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy; runDoctor itself never returns an error for an
// unhealthy result so that no error text leaks to callers (such as main).
func runDoctor(ctx context.Context, cfg *config.Config, directory chronicle.RuleDirectory, source bitbucket.RuleSource, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, cfg, directory, source)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, cfg *config.Config, directory chronicle.RuleDirectory, source bitbucket.RuleSource) DoctorResult {
	var result DoctorResult

	// Configuration: every required variable must be present.
	if err := cfg.Validate(); err != nil {
		result.Config.Error = err.Error()
	} else {
		result.Config.Valid = true
	}

	// Chronicle: list the registered rules to prove the token and region work.
	if result.Config.Valid && directory != nil {
		names, err := directory.ListRuleNames(ctx)
		if err != nil {
			result.Chronicle.Error = err.Error()
		} else {
			result.Chronicle.Reachable = true
			result.Chronicle.RuleCount = len(names)
		}
	}

	// Bitbucket: walk the rule directory listing without fetching content.
	if result.Config.Valid && source != nil {
		count, err := source.CheckAccess(ctx)
		if err != nil {
			result.Bitbucket.Error = err.Error()
		} else {
			result.Bitbucket.Reachable = true
			result.Bitbucket.RuleFiles = count
		}
	}

	// Archive: optional, informational only. Reachability is not probed
	// because a PutObject dry run would write to the bucket.
	result.Archive.Configured = cfg.Archive.Enabled()
	if result.Archive.Configured {
		result.Archive.Bucket = cfg.Archive.Bucket
	}

	result.OverallHealthy = result.Config.Valid &&
		result.Chronicle.Reachable &&
		result.Bitbucket.Reachable

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nConfiguration:")
	if result.Config.Valid {
		doctorPrint(w, "Required variables", "OK", "")
	} else {
		doctorPrint(w, "Required variables", "FAIL", result.Config.Error)
	}

	fmt.Fprintln(w, "\nChronicle:")
	switch {
	case result.Chronicle.Reachable:
		doctorPrint(w, "Rules API", "OK", fmt.Sprintf("%d rules visible", result.Chronicle.RuleCount))
	case result.Config.Valid:
		doctorPrint(w, "Rules API", "FAIL", result.Chronicle.Error)
	default:
		doctorPrint(w, "Rules API", "FAIL", "skipped")
	}

	fmt.Fprintln(w, "\nBitbucket:")
	switch {
	case result.Bitbucket.Reachable:
		doctorPrint(w, "Repository", "OK", fmt.Sprintf("%d rule files", result.Bitbucket.RuleFiles))
	case result.Config.Valid:
		doctorPrint(w, "Repository", "FAIL", result.Bitbucket.Error)
	default:
		doctorPrint(w, "Repository", "FAIL", "skipped")
	}

	fmt.Fprintln(w, "\nArchive:")
	if result.Archive.Configured {
		doctorPrint(w, "S3 bucket", result.Archive.Bucket, "")
	} else {
		doctorPrint(w, "S3 bucket", "Not configured (optional)", "")
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
