// Package scanner discovers PHP files in a project and analyzes them in
// parallel.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/cache"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/parser"
)

// Options configures a Scanner. Zero values get defaults.
type Options struct {
	Root     string
	Project  *config.ProjectConfig
	Workers  int
	Analyzer *analyzer.Analyzer
	Parser   *parser.Parser
	Cache    *cache.Cache
}

// Scanner finds and analyzes files under a root directory
type Scanner struct {
	root     string
	project  *config.ProjectConfig
	workers  int
	analyzer *analyzer.Analyzer
	parser   *parser.Parser
	cache    *cache.Cache
}

// Result is the outcome of a scan
type Result struct {
	Root     string                 `json:"root"`
	Reports  []*analyzer.FileReport `json:"reports"`
	Summary  analyzer.Summary       `json:"summary"`
	Duration time.Duration          `json:"duration_ns"`
}

// New creates a Scanner
func New(opts Options) *Scanner {
	s := &Scanner{
		root:     opts.Root,
		project:  opts.Project,
		workers:  opts.Workers,
		analyzer: opts.Analyzer,
		parser:   opts.Parser,
		cache:    opts.Cache,
	}
	if s.root == "" {
		s.root = "."
	}
	if s.project == nil {
		s.project = config.DefaultProjectConfig()
	}
	if s.workers < 1 {
		s.workers = 4
	}
	if s.analyzer == nil {
		s.analyzer = analyzer.New(analyzer.Options{Heuristics: s.project.BuildHeuristics()})
	}
	if s.parser == nil {
		s.parser = parser.NewParser()
	}
	if s.cache == nil {
		s.cache = cache.New(0)
	}
	return s
}

// Root returns the scanned directory
func (s *Scanner) Root() string {
	return s.root
}

// Matches reports whether a slash-separated path relative to the root should
// be analyzed
func (s *Scanner) Matches(rel string) bool {
	if parser.DetectLanguage(rel) != parser.LanguagePHP {
		return false
	}
	if s.Excluded(rel) {
		return false
	}
	if len(s.project.Include) > 0 && !matchAny(s.project.Include, rel) {
		return false
	}
	return !s.project.Controllers.Only || IsController(rel, s.project.Controllers.Path)
}

// Excluded reports whether a root-relative path matches an exclude pattern
func (s *Scanner) Excluded(rel string) bool {
	return matchAny(s.project.Exclude, rel)
}

// Forget drops any cached report for a root-relative path
func (s *Scanner) Forget(rel string) {
	s.cache.Invalidate(rel)
}

// IsController reports whether path lies in a controller directory
func IsController(path, fragment string) bool {
	if fragment == "" {
		fragment = config.DefaultControllerPath
	}
	return strings.Contains(filepath.ToSlash(path), strings.Trim(fragment, "/"))
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		// A bad pattern must not break scanning
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

// Discover returns the root-relative paths of all files to analyze, sorted
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Matches(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	sort.Strings(files)
	return files, nil
}

// Scan discovers and analyzes every matching file
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	files, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.ScanFiles(ctx, files)
}

// ScanFiles analyzes the given root-relative paths in parallel. A file that
// fails to read or parse is reported with ParseError and does not stop the
// scan; only cancellation does.
func (s *Scanner) ScanFiles(ctx context.Context, files []string) (*Result, error) {
	start := time.Now()
	reports := make([]*analyzer.FileReport, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = s.AnalyzeFile(gctx, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })

	result := &Result{
		Root:     s.root,
		Reports:  reports,
		Summary:  analyzer.Summarize(reports),
		Duration: time.Since(start),
	}

	log.Info().
		Str("root", s.root).
		Int("files", result.Summary.Files).
		Int("methods", result.Summary.Methods).
		Int("n_plus_one", result.Summary.NPlusOneMethods).
		Dur("duration", result.Duration).
		Msg("scan complete")

	return result, nil
}

// AnalyzeFile analyzes one root-relative file. Failures are recorded in the
// report rather than returned.
func (s *Scanner) AnalyzeFile(ctx context.Context, rel string) *analyzer.FileReport {
	path := rel
	if !filepath.IsAbs(rel) {
		path = filepath.Join(s.root, filepath.FromSlash(rel))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return failed(rel, fmt.Errorf("failed to read file: %w", err))
	}

	if report, ok := s.cache.Get(rel, content); ok {
		return report
	}

	report, err := s.AnalyzeContent(ctx, rel, content)
	if err != nil {
		return failed(rel, err)
	}
	s.cache.Put(rel, content, report)
	return report
}

// AnalyzeContent parses and analyzes in-memory content. The language is
// detected from path.
func (s *Scanner) AnalyzeContent(ctx context.Context, path string, content []byte) (*analyzer.FileReport, error) {
	return s.AnalyzeSource(ctx, path, content, parser.DetectLanguage(path))
}

// AnalyzeSource analyses content in an explicit language, for submissions
// whose path does not carry a usable extension
func (s *Scanner) AnalyzeSource(ctx context.Context, path string, content []byte, lang parser.Language) (*analyzer.FileReport, error) {
	parsed, err := s.parser.ParseContent(ctx, path, content, lang)
	if err != nil {
		return nil, err
	}
	if parsed.HasErrors() {
		log.Debug().Str("file", path).Ints("lines", parsed.ErrorLines).Msg("recovered from syntax errors")
	}

	report, err := s.analyzer.AnalyzeFile(path, parsed.Root)
	if err != nil {
		return nil, err
	}
	report.Language = string(lang)
	return report, nil
}

func failed(path string, err error) *analyzer.FileReport {
	level := log.Warn()
	if errors.Is(err, analyzer.ErrBudgetExceeded) {
		level = log.Info()
	}
	level.Err(err).Str("file", path).Msg("file not analyzed")
	return &analyzer.FileReport{Path: path, Methods: []analyzer.MethodReport{}, ParseError: err.Error()}
}
