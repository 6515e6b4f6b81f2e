// Package report renders analysis results in the supported output formats
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/QTest-hq/queryscope/internal/analyzer"
)

// Document is the unit every reporter renders
type Document struct {
	Summary analyzer.Summary       `json:"summary" yaml:"summary"`
	Files   []*analyzer.FileReport `json:"files" yaml:"files"`
}

// NewDocument wraps reports with their summary
func NewDocument(reports []*analyzer.FileReport) *Document {
	if reports == nil {
		reports = []*analyzer.FileReport{}
	}
	return &Document{Summary: analyzer.Summarize(reports), Files: reports}
}

// Reporter renders a document in one output format
type Reporter interface {
	// Name returns the format name used on the command line
	Name() string

	// FileExtension returns the extension for a saved report (e.g., ".json")
	FileExtension() string

	// Render produces the report text
	Render(doc *Document) (string, error)
}

// Registry holds all available reporters
type Registry struct {
	reporters map[string]Reporter
}

// NewRegistry creates a registry with all built-in reporters
func NewRegistry() *Registry {
	r := &Registry{
		reporters: make(map[string]Reporter),
	}

	r.Register(&TextReporter{})
	r.Register(&JSONReporter{})
	r.Register(&YAMLReporter{})

	// CI integrations
	r.Register(&GitHubReporter{})
	r.Register(&MarkdownReporter{})

	return r
}

// Register adds a reporter to the registry
func (r *Registry) Register(rep Reporter) {
	r.reporters[rep.Name()] = rep
}

// minSuggestionScore is the Jaro-Winkler similarity a format name needs to
// be offered as a correction
const minSuggestionScore = 0.7

// Get returns a reporter by name. Unknown names that are close to a
// registered one produce a "did you mean" hint.
func (r *Registry) Get(name string) (Reporter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if rep, ok := r.reporters[key]; ok {
		return rep, nil
	}

	if s := r.suggest(key); s != "" {
		return nil, fmt.Errorf("unknown report format: %s (did you mean %q?)", name, s)
	}
	return nil, fmt.Errorf("unknown report format: %s (available: %s)", name, strings.Join(r.List(), ", "))
}

func (r *Registry) suggest(name string) string {
	if name == "" {
		return ""
	}
	best, bestScore := "", float32(0)
	for _, candidate := range r.List() {
		score, err := edlib.StringsSimilarity(name, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < minSuggestionScore {
		return ""
	}
	return best
}

// List returns all registered format names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.reporters))
	for name := range r.reporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Title is the one-line method summary shown above a method in editors:
// "Complexity: O(n) | Queries: 2 | ⚠ N+1 risk"
func Title(m analyzer.MethodAnalysis) string {
	parts := []string{
		fmt.Sprintf("Complexity: %s", m.EstimatedComplexity),
		fmt.Sprintf("Queries: %d", m.QueriesTotal),
	}
	if m.PossibleNPlusOne {
		parts = append(parts, "⚠ N+1 risk")
	}
	return strings.Join(parts, " | ")
}

// ExceedsThreshold reports whether any finding is at least as severe as
// failOn. An empty threshold never fails.
func ExceedsThreshold(reports []*analyzer.FileReport, failOn analyzer.Severity) bool {
	limit := failOn.Rank()
	if failOn == "" || limit < 0 {
		return false
	}
	for _, r := range reports {
		for _, f := range r.Findings() {
			if f.Severity.Rank() >= limit {
				return true
			}
		}
	}
	return false
}

func lineSpan(m analyzer.MethodAnalysis) string {
	if m.StartLine < 0 {
		return "lines ?"
	}
	if m.StartLine == m.EndLine {
		return fmt.Sprintf("line %d", m.StartLine)
	}
	return fmt.Sprintf("lines %d-%d", m.StartLine, m.EndLine)
}
