package report

import (
	"fmt"
	"strings"

	"github.com/QTest-hq/queryscope/internal/analyzer"
)

// MarkdownReporter renders a summary suited to a pull request comment.
// Only methods with a possible N+1 are listed in detail.
type MarkdownReporter struct{}

func (r *MarkdownReporter) Name() string          { return "markdown" }
func (r *MarkdownReporter) FileExtension() string { return ".md" }

func (r *MarkdownReporter) Render(doc *Document) (string, error) {
	var sb strings.Builder
	s := doc.Summary

	sb.WriteString("## Query analysis\n\n")
	sb.WriteString("| Files | Methods | Possible N+1 | Queries | In loops |\n")
	sb.WriteString("|------:|--------:|-------------:|--------:|---------:|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d |\n\n",
		s.Files, s.Methods, s.NPlusOneMethods, s.QueriesTotal, s.QueriesInLoops))

	if s.NPlusOneMethods == 0 {
		sb.WriteString("No queries inside loops found. :white_check_mark:\n")
	} else {
		sb.WriteString("### Methods at risk\n\n")
		for _, file := range doc.Files {
			for _, m := range file.Methods {
				if !m.PossibleNPlusOne {
					continue
				}
				sb.WriteString(fmt.Sprintf("- **%s** `%s` (%s): %s\n",
					m.MethodName, file.Path, lineSpan(m.MethodAnalysis), Title(m.MethodAnalysis)))
				for _, d := range m.Diagnostics {
					sb.WriteString(fmt.Sprintf("  - line %d: %s\n", d.Line, d.Message))
				}
			}
		}
	}

	if failed := failedFiles(doc.Files); len(failed) > 0 {
		sb.WriteString("\n<details><summary>Files that could not be parsed</summary>\n\n")
		for _, f := range failed {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", f.Path, f.ParseError))
		}
		sb.WriteString("\n</details>\n")
	}

	return sb.String(), nil
}

func failedFiles(files []*analyzer.FileReport) []*analyzer.FileReport {
	var out []*analyzer.FileReport
	for _, f := range files {
		if f.ParseError != "" {
			out = append(out, f)
		}
	}
	return out
}
