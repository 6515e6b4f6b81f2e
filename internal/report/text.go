package report

import (
	"fmt"
	"strings"
)

// TextReporter renders a human-readable listing grouped by file and method
type TextReporter struct{}

func (r *TextReporter) Name() string          { return "text" }
func (r *TextReporter) FileExtension() string { return ".txt" }

// Render lists each method with its title line followed by its findings
func (r *TextReporter) Render(doc *Document) (string, error) {
	var sb strings.Builder

	for _, file := range doc.Files {
		sb.WriteString(file.Path)
		sb.WriteString("\n")

		if file.ParseError != "" {
			sb.WriteString(fmt.Sprintf("  parse error: %s\n", file.ParseError))
		}
		if len(file.Methods) == 0 && file.ParseError == "" {
			sb.WriteString("  no methods\n")
		}

		for _, m := range file.Methods {
			sb.WriteString(fmt.Sprintf("  %s (%s)  %s\n", m.MethodName, lineSpan(m.MethodAnalysis), Title(m.MethodAnalysis)))
			for _, f := range m.Findings {
				sb.WriteString(fmt.Sprintf("    %4d  %-8s %s\n", f.Line, f.Severity, f.Message))
			}
		}
		sb.WriteString("\n")
	}

	s := doc.Summary
	sb.WriteString(fmt.Sprintf("%d files, %d methods, %d possible N+1, %d queries (%d in loops)",
		s.Files, s.Methods, s.NPlusOneMethods, s.QueriesTotal, s.QueriesInLoops))
	if s.FailedFiles > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", s.FailedFiles))
	}
	sb.WriteString("\n")

	return sb.String(), nil
}
