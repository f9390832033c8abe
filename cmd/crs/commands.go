package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/archive"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/config"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/engine"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/logging"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/output"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/bitbucket"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/chronicle"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/providers/httpapi"
	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/version"
)

// app carries the state shared between the root command and its
// subcommands. PersistentPreRunE populates it before any RunE runs.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "crs",
		Short: "Chronicle Rule Sync — pushes repository detection rules to Google Chronicle",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.Setup(cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Path to a crs.yaml config file (default: ./crs.yaml if present)")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "text", "Log format: text or json")
	root.PersistentFlags().String("rules-dir", "rules", "Repository directory scanned for rule files")
	root.PersistentFlags().String("ref", "main", "Branch name or commit hash to read rule files from")

	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newRulesCmd(a))
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func newSyncCmd(a *app) *cobra.Command {
	var (
		dryRun    bool
		reportFmt string
		summary   bool
		outPath   string
	)

	cmd := &cobra.Command{
		Use:           "sync",
		Short:         "Upload new repository rules to Chronicle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			directory, source := buildClients(a.cfg, a.logger)
			eng := engine.NewDefaultEngine(directory, source, a.logger)

			var archiver reportArchiver
			if a.cfg.Archive.Enabled() {
				uploader, err := archive.NewFromConfig(cmd.Context(), a.cfg.Archive.Bucket, a.cfg.Archive.Prefix, a.logger)
				if err != nil {
					a.logger.Warn("report archive unavailable", "error", err)
				} else {
					archiver = uploader
				}
			}

			opts := engine.SyncOptions{Source: sourceRef(a.cfg), DryRun: dryRun}
			report, err := runSync(cmd.Context(), eng, archiver, opts, cmd.OutOrStdout(), reportFmt, summary, outPath)
			if err != nil {
				return err
			}
			if report.Summary.Failed() {
				// Exit directly so the rendered report stays the only
				// output; the failures are visible in its counters.
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Verify candidate rules without uploading them")
	cmd.Flags().StringVar(&reportFmt, "report", "table", "Output format: json or table")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print compact counters instead of the full result table")
	cmd.Flags().StringVar(&outPath, "output", "", "Write full JSON report to this file path (in addition to stdout output)")

	return cmd
}

func newRulesCmd(a *app) *cobra.Command {
	var (
		source    string
		reportFmt string
	)

	cmd := &cobra.Command{
		Use:           "rules",
		Short:         "List detection rules on either side of the sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			directory, src := buildClients(a.cfg, a.logger)
			return runRules(cmd.Context(), directory, src, source, cmd.OutOrStdout(), reportFmt)
		},
	}

	cmd.Flags().StringVar(&source, "source", "remote", `Which side to list: "remote" (Chronicle) or "repo" (Bitbucket)`)
	cmd.Flags().StringVar(&reportFmt, "report", "table", "Output format: json or table")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// reportArchiver stores a finished report and returns its location.
// *archive.Uploader implements it; sync runs without one when no archive
// bucket is configured.
type reportArchiver interface {
	Store(ctx context.Context, report *models.SyncReport) (string, error)
}

// runSync executes the engine, optionally persists the report, and renders
// it to w in the requested format. Archive failures are logged and never
// fail the run; the report on disk and on stdout is already complete.
func runSync(ctx context.Context, eng engine.Engine, archiver reportArchiver, opts engine.SyncOptions, w io.Writer, format string, summary bool, outPath string) (*models.SyncReport, error) {
	report, err := eng.RunSync(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sync failed: %w", err)
	}

	if outPath != "" {
		if err := writeReportToFile(outPath, report); err != nil {
			return nil, err
		}
	}

	if archiver != nil {
		if _, err := archiver.Store(ctx, report); err != nil {
			slog.Warn("report archive failed", "error", err)
		}
	}

	if summary {
		output.RenderSummary(w, report)
		return report, nil
	}
	if format == string(engine.ReportFormatJSON) {
		return report, printJSON(w, report)
	}
	output.RenderTable(w, report)
	return report, nil
}

// ruleListing is the JSON shape of the rules command. Remote listings
// carry names only; repository listings add path and size.
type ruleListing struct {
	Source string         `json:"source"`
	Count  int            `json:"count"`
	Rules  []ruleListItem `json:"rules"`
}

type ruleListItem struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path,omitempty"`
	SizeBytes  int    `json:"size_bytes,omitempty"`
}

// runRules lists rule names from the requested side and renders them to w
// as a table or JSON. mode is "remote" for the Chronicle rule directory or
// "repo" for the repository rule files.
func runRules(ctx context.Context, directory chronicle.RuleDirectory, source bitbucket.RuleSource, mode string, w io.Writer, format string) error {
	switch mode {
	case "remote":
		names, err := directory.ListRuleNames(ctx)
		if err != nil {
			return fmt.Errorf("list remote rules: %w", err)
		}
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)

		if format == string(engine.ReportFormatJSON) {
			listing := ruleListing{Source: mode, Count: len(sorted), Rules: make([]ruleListItem, 0, len(sorted))}
			for _, name := range sorted {
				listing.Rules = append(listing.Rules, ruleListItem{Name: name})
			}
			return printJSON(w, listing)
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"RULE NAME"})
		for _, name := range sorted {
			t.AppendRow(table.Row{name})
		}
		t.Render()
		fmt.Fprintf(w, "%d rules registered.\n", len(sorted))
		return nil

	case "repo":
		candidates, err := source.ListRuleCandidates(ctx)
		if err != nil {
			return fmt.Errorf("list repository rules: %w", err)
		}

		if format == string(engine.ReportFormatJSON) {
			listing := ruleListing{Source: mode, Count: len(candidates), Rules: make([]ruleListItem, 0, len(candidates))}
			for _, c := range candidates {
				listing.Rules = append(listing.Rules, ruleListItem{
					Name:       c.Name,
					SourcePath: c.SourcePath,
					SizeBytes:  len(c.Text),
				})
			}
			return printJSON(w, listing)
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"RULE NAME", "SOURCE PATH", "SIZE"})
		for _, c := range candidates {
			t.AppendRow(table.Row{c.Name, c.SourcePath, fmt.Sprintf("%d B", len(c.Text))})
		}
		t.Render()
		fmt.Fprintf(w, "%d rule files found.\n", len(candidates))
		return nil

	default:
		return fmt.Errorf("unknown source %q: use \"remote\" or \"repo\"", mode)
	}
}

// buildClients constructs the HTTP-backed rule directory and rule source
// from the loaded configuration.
func buildClients(cfg *config.Config, logger *slog.Logger) (*chronicle.DefaultRuleDirectory, *bitbucket.DefaultRuleSource) {
	chronicleAPI := httpapi.New(chronicle.BaseURL(cfg.Chronicle.Region), cfg.Chronicle.AccessToken, cfg.HTTP.Timeout(), logger)
	bitbucketAPI := httpapi.New(bitbucket.APIBaseURL, cfg.Bitbucket.AccessToken, cfg.HTTP.Timeout(), logger)

	directory := chronicle.NewDefaultRuleDirectory(chronicleAPI, logger)
	source := bitbucket.NewDefaultRuleSource(bitbucketAPI, sourceRef(cfg), cfg.RuleExtension, logger)
	return directory, source
}

// sourceRef assembles the repository coordinates the engine reports on.
func sourceRef(cfg *config.Config) models.SourceRef {
	return models.SourceRef{
		Workspace:  cfg.Bitbucket.Workspace,
		Repository: cfg.Bitbucket.RepoSlug,
		Ref:        cfg.Bitbucket.BranchOrCommit,
		Directory:  cfg.RulesDir,
	}
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReportToFile serialises report as indented JSON and writes it to path,
// creating or overwriting the file. It does not affect stdout output.
func writeReportToFile(path string, report *models.SyncReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	return nil
}
