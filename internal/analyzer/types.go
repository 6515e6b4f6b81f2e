package analyzer

import (
	"fmt"
	"strings"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// MethodRecord is a method definition located in a file tree
type MethodRecord struct {
	Name      string
	StartLine int // -1 when the tree has no position
	EndLine   int
	Node      syntax.Node
}

// LoopMetrics summarises loop constructs in one method
type LoopMetrics struct {
	Loops    int
	MaxDepth int
}

// QueryMetrics holds query weights for one method. InLoops is always a
// subset sum of Total.
type QueryMetrics struct {
	Total   int
	InLoops int
}

// Complexity is a coarse, advisory complexity label
type Complexity string

const (
	ComplexityConstant   Complexity = "O(1)"
	ComplexityLinear     Complexity = "O(n)"
	ComplexityQueryBound Complexity = "O(n * query)"
	ComplexityUnknown    Complexity = "O(?)"
)

// ComplexityPolynomial returns the label for k nested loops
func ComplexityPolynomial(k int) Complexity {
	return Complexity(fmt.Sprintf("O(n^%d)", k))
}

// Class describes the label in words
func (c Complexity) Class() string {
	switch {
	case c == ComplexityConstant:
		return "constant"
	case c == ComplexityLinear:
		return "linear"
	case c == ComplexityQueryBound:
		return "linear-times-query-cost"
	case strings.HasPrefix(string(c), "O(n^"):
		return "polynomial"
	default:
		return "unknown"
	}
}

// MethodAnalysis is the summary of one method
type MethodAnalysis struct {
	MethodName          string     `json:"method_name" yaml:"method_name"`
	StartLine           int        `json:"start_line" yaml:"start_line"`
	EndLine             int        `json:"end_line" yaml:"end_line"`
	Loops               int        `json:"loops" yaml:"loops"`
	MaxLoopDepth        int        `json:"max_loop_depth" yaml:"max_loop_depth"`
	QueriesTotal        int        `json:"queries_total" yaml:"queries_total"`
	QueriesInLoops      int        `json:"queries_in_loops" yaml:"queries_in_loops"`
	PossibleNPlusOne    bool       `json:"possible_n_plus_one" yaml:"possible_n_plus_one"`
	EstimatedComplexity Complexity `json:"estimated_complexity" yaml:"estimated_complexity"`
}

// Severity classifies a finding for presentation
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityAtRisk Severity = "at_risk"
	SeverityHeavy  Severity = "heavy"
	SeveritySafe   Severity = "safe"
)

// Rank orders severities from least to most concerning
func (s Severity) Rank() int {
	switch s {
	case SeveritySafe:
		return 0
	case SeverityNormal:
		return 1
	case SeverityHeavy:
		return 2
	case SeverityAtRisk:
		return 3
	default:
		return -1
	}
}

// ParseSeverity accepts the severity names, case-insensitively, plus the
// "nplus" alias used by editor integrations
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return SeverityNormal, nil
	case "at_risk", "at-risk", "nplus":
		return SeverityAtRisk, nil
	case "heavy":
		return SeverityHeavy, nil
	case "safe":
		return SeveritySafe, nil
	default:
		return "", fmt.Errorf("unknown severity: %q", s)
	}
}

// Finding is one flagged call site or property access
type Finding struct {
	Line     int      `json:"line" yaml:"line"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// Diagnostic is a flat warning for the AT_RISK subset of findings
type Diagnostic struct {
	Line    int    `json:"line" yaml:"line"`
	Message string `json:"message" yaml:"message"`
}

// MethodReport groups a method summary with its findings
type MethodReport struct {
	MethodAnalysis `yaml:",inline"`
	Findings       []Finding    `json:"findings" yaml:"findings"`
	Diagnostics    []Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// FileReport is the result of analysing one file
type FileReport struct {
	Path       string         `json:"path" yaml:"path"`
	Language   string         `json:"language,omitempty" yaml:"language,omitempty"`
	Methods    []MethodReport `json:"methods" yaml:"methods"`
	ParseError string         `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`
}

// Findings returns all findings in method order
func (r *FileReport) Findings() []Finding {
	var out []Finding
	for _, m := range r.Methods {
		out = append(out, m.Findings...)
	}
	return out
}

// Diagnostics returns all diagnostics in method order
func (r *FileReport) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, m := range r.Methods {
		out = append(out, m.Diagnostics...)
	}
	return out
}

// Summary aggregates counts over a set of reports
type Summary struct {
	Files           int `json:"files" yaml:"files"`
	FailedFiles     int `json:"failed_files" yaml:"failed_files"`
	Methods         int `json:"methods" yaml:"methods"`
	NPlusOneMethods int `json:"n_plus_one_methods" yaml:"n_plus_one_methods"`
	QueriesTotal    int `json:"queries_total" yaml:"queries_total"`
	QueriesInLoops  int `json:"queries_in_loops" yaml:"queries_in_loops"`
	Findings        int `json:"findings" yaml:"findings"`
	AtRisk          int `json:"at_risk" yaml:"at_risk"`
}

// Summarize computes a Summary over reports
func Summarize(reports []*FileReport) Summary {
	var s Summary
	for _, r := range reports {
		s.Files++
		if r.ParseError != "" {
			s.FailedFiles++
		}
		for _, m := range r.Methods {
			s.Methods++
			s.QueriesTotal += m.QueriesTotal
			s.QueriesInLoops += m.QueriesInLoops
			if m.PossibleNPlusOne {
				s.NPlusOneMethods++
			}
			s.Findings += len(m.Findings)
			s.AtRisk += len(m.Diagnostics)
		}
	}
	return s
}
