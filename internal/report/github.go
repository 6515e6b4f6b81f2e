package report

import (
	"fmt"
	"strings"

	"github.com/QTest-hq/queryscope/internal/analyzer"
)

// GitHubReporter emits GitHub Actions workflow commands so findings show up
// as annotations on the pull request diff
type GitHubReporter struct{}

func (r *GitHubReporter) Name() string          { return "github" }
func (r *GitHubReporter) FileExtension() string { return ".log" }

// Render annotates at-risk findings as warnings and heavy ones as notices.
// Normal and safe findings are not annotated.
func (r *GitHubReporter) Render(doc *Document) (string, error) {
	var sb strings.Builder

	for _, file := range doc.Files {
		if file.ParseError != "" {
			sb.WriteString(fmt.Sprintf("::error file=%s,title=Parse error::%s\n",
				escapeProperty(file.Path), escapeData(file.ParseError)))
		}
		for _, m := range file.Methods {
			for _, f := range m.Findings {
				level := annotationLevel(f.Severity)
				if level == "" {
					continue
				}
				title := fmt.Sprintf("%s: %s", m.MethodName, Title(m.MethodAnalysis))
				sb.WriteString(fmt.Sprintf("::%s file=%s,line=%d,title=%s::%s\n",
					level, escapeProperty(file.Path), f.Line, escapeProperty(title), escapeData(f.Message)))
			}
		}
	}

	s := doc.Summary
	sb.WriteString(fmt.Sprintf("::notice title=queryscope::%d methods analysed, %d possible N+1\n",
		s.Methods, s.NPlusOneMethods))
	return sb.String(), nil
}

func annotationLevel(s analyzer.Severity) string {
	switch s {
	case analyzer.SeverityAtRisk:
		return "warning"
	case analyzer.SeverityHeavy:
		return "notice"
	default:
		return ""
	}
}

var (
	dataEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")
	propEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C")
)

func escapeData(s string) string     { return dataEscaper.Replace(s) }
func escapeProperty(s string) string { return propEscaper.Replace(s) }
