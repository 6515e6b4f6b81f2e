package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/github"
	"github.com/QTest-hq/queryscope/internal/report"
	"github.com/QTest-hq/queryscope/internal/scanner"
)

// exitThreshold is returned when findings reach the --fail-on severity
const exitThreshold = 2

type analyzeOptions struct {
	format     string
	output     string
	repo       string
	configPath string
	failOn     string
	workers    int
	allFiles   bool
	prComment  string
	token      string
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze PHP files or project directories",
		Long: `Analyze every controller method under the given directories and files.
Directories are scanned with the project's .queryscope.yaml; with no
arguments the current directory is scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json, yaml, github, markdown)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "GitHub repository to clone and analyze (URL or owner/name)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Project config file (default: <dir>/.queryscope.yaml)")
	cmd.Flags().StringVar(&opts.failOn, "fail-on", "", "Exit with status 2 when a finding reaches this severity (normal, heavy, at_risk)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "Files analyzed in parallel")
	cmd.Flags().BoolVar(&opts.allFiles, "all-files", false, "Analyze every PHP file, not only controllers")
	cmd.Flags().StringVar(&opts.prComment, "pr-comment", "", "Post the report as a pull request comment (owner/name#number)")
	cmd.Flags().StringVar(&opts.token, "token", "", "GitHub token (default: $GITHUB_TOKEN)")

	return cmd
}

func runAnalyze(ctx context.Context, stdout io.Writer, args []string, opts analyzeOptions) error {
	registry := report.NewRegistry()
	reporter, err := registry.Get(opts.format)
	if err != nil {
		return err
	}

	if opts.failOn != "" {
		if _, err := analyzer.ParseSeverity(opts.failOn); err != nil {
			return fmt.Errorf("invalid --fail-on: %w", err)
		}
	}

	var target *prTarget
	if opts.prComment != "" {
		if target, err = parsePRTarget(opts.prComment); err != nil {
			return err
		}
	}

	if opts.token == "" {
		opts.token = os.Getenv("GITHUB_TOKEN")
	}

	if opts.repo != "" {
		dir, err := cloneRepo(ctx, opts.repo, opts.token)
		if err != nil {
			return err
		}
		args = []string{dir}
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	reports, project, err := analyzePaths(ctx, args, opts)
	if err != nil {
		return err
	}

	doc := report.NewDocument(reports)
	out, err := reporter.Render(doc)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info().Str("file", opts.output).Msg("report written")
	} else {
		fmt.Fprint(stdout, out)
	}

	if target != nil {
		if err := postComment(ctx, target, opts.token, doc); err != nil {
			return err
		}
	}

	failOn := opts.failOn
	if failOn == "" {
		failOn = project.FailOn
	}
	if report.ExceedsThreshold(reports, analyzer.Severity(failOn)) {
		return &exitError{
			code: exitThreshold,
			msg:  fmt.Sprintf("findings at or above %q severity", failOn),
		}
	}
	return nil
}

// analyzePaths scans directories and analyzes individual files. The project
// config of the first directory (or the working directory) is returned for
// its fail_on setting.
func analyzePaths(ctx context.Context, paths []string, opts analyzeOptions) ([]*analyzer.FileReport, *config.ProjectConfig, error) {
	var (
		reports []*analyzer.FileReport
		files   []string
		first   *config.ProjectConfig
	)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot analyze %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		s, project, err := newScanner(path, opts)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = project
		}
		result, err := s.Scan(ctx)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, result.Reports...)
	}

	if len(files) > 0 {
		s, project, err := newScanner(".", opts)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = project
		}
		result, err := s.ScanFiles(ctx, files)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, result.Reports...)
	}

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	return reports, first, nil
}

// newScanner loads the project config for root and applies CLI overrides
func newScanner(root string, opts analyzeOptions) (*scanner.Scanner, *config.ProjectConfig, error) {
	project, err := loadProject(root, opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.allFiles {
		project.Controllers.Only = false
	}

	return scanner.New(scanner.Options{
		Root:    root,
		Project: project,
		Workers: opts.workers,
	}), project, nil
}

func loadProject(root, configPath string) (*config.ProjectConfig, error) {
	if configPath != "" {
		return config.LoadProjectConfigFile(configPath)
	}
	return config.LoadProjectConfig(root)
}

func cloneRepo(ctx context.Context, repoURL, token string) (string, error) {
	info, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	log.Info().Str("repo", info.FullName()).Str("branch", info.Branch).Msg("cloning repository")
	result, err := github.NewRepoService(cfg.CloneDir, token).Checkout(ctx, info)
	if err != nil {
		return "", err
	}
	log.Info().Str("path", result.Path).Str("commit", result.CommitSHA).Msg("repository cloned")
	return result.Path, nil
}

type prTarget struct {
	owner  string
	repo   string
	number int
}

// parsePRTarget parses owner/name#number
func parsePRTarget(s string) (*prTarget, error) {
	repoPart, numPart, ok := strings.Cut(s, "#")
	if !ok {
		return nil, fmt.Errorf("invalid --pr-comment %q, expected owner/name#number", s)
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid --pr-comment %q, expected owner/name#number", s)
	}
	number, err := strconv.Atoi(numPart)
	if err != nil || number <= 0 {
		return nil, fmt.Errorf("invalid pull request number in %q", s)
	}
	return &prTarget{owner: owner, repo: repo, number: number}, nil
}

func postComment(ctx context.Context, target *prTarget, token string, doc *report.Document) error {
	if token == "" {
		return fmt.Errorf("GitHub token required for --pr-comment. Set GITHUB_TOKEN env var or use --token flag")
	}

	body, err := (&report.MarkdownReporter{}).Render(doc)
	if err != nil {
		return fmt.Errorf("failed to render comment: %w", err)
	}

	comment, err := github.NewCommentService(token).UpsertReport(ctx, target.owner, target.repo, target.number, body)
	if err != nil {
		return fmt.Errorf("failed to post pull request comment: %w", err)
	}
	log.Info().Str("url", comment.HTMLURL).Msg("pull request comment updated")
	return nil
}
