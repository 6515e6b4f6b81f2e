package analyzer

import (
	"errors"
	"fmt"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// ErrBudgetExceeded is returned when a tree has more nodes than allowed
var ErrBudgetExceeded = errors.New("analysis node budget exceeded")

// Options configures an Analyzer
type Options struct {
	// Heuristics defaults to DefaultHeuristics()
	Heuristics *Heuristics
	// MaxNodes abandons files with more nodes; 0 means unlimited
	MaxNodes int
}

// Analyzer runs the analysis passes with a fixed heuristic set. It holds no
// mutable state and may be shared between goroutines.
type Analyzer struct {
	heuristics *Heuristics
	maxNodes   int
}

var defaultAnalyzer = New(Options{})

// New creates an Analyzer
func New(opts Options) *Analyzer {
	h := opts.Heuristics
	if h == nil {
		h = DefaultHeuristics()
	}
	return &Analyzer{heuristics: h, maxNodes: opts.MaxNodes}
}

// Heuristics returns the heuristic set in use
func (a *Analyzer) Heuristics() *Heuristics {
	return a.heuristics
}

// AnalyzeFile analyzes every method in a file tree using the default options
func AnalyzeFile(path string, root syntax.Node) (*FileReport, error) {
	return defaultAnalyzer.AnalyzeFile(path, root)
}

// AnalyzeFile extracts the methods under root and reports each one in
// extraction order. A nil root yields an empty report.
func (a *Analyzer) AnalyzeFile(path string, root syntax.Node) (*FileReport, error) {
	if a.maxNodes > 0 {
		if n := syntax.Count(root, a.maxNodes); n > a.maxNodes {
			return nil, fmt.Errorf("%s: more than %d nodes: %w", path, a.maxNodes, ErrBudgetExceeded)
		}
	}

	report := &FileReport{Path: path, Methods: []MethodReport{}}
	for _, m := range ExtractMethods(root) {
		findings := a.FindQueryDecorations(m.Node)
		report.Methods = append(report.Methods, MethodReport{
			MethodAnalysis: a.AnalyzeMethod(m.Node),
			Findings:       findings,
			Diagnostics:    diagnosticsOf(findings),
		})
	}
	return report, nil
}
