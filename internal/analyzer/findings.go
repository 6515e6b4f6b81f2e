package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

// Finding messages, one per severity plus the lazy-load variant
const (
	MessageQueryInLoop    = "⚠ Query executed inside a loop (possible N+1). Consider eager loading or batching."
	MessagePaginate       = "🔴 paginate() often runs 2 SQL queries (COUNT + page fetch). Consider simplePaginate() if total count not needed."
	MessageSimplePaginate = "🟢 simplePaginate() avoids COUNT query (usually 1 query)."
	MessageQuery          = "🔵 Detected query execution."
	MessageLazyLoad       = "⚠ Magic property access inside loop (possible lazy loading). Consider eager loading."

	// MessageDiagnostic is shared by every entry of the flat AT_RISK view
	MessageDiagnostic = "Possible N+1: query executed inside a loop (or lazy loaded relation)"
)

// FindQueryDecorations classifies findings using the default heuristics
func FindQueryDecorations(method syntax.Node) []Finding {
	return defaultAnalyzer.FindQueryDecorations(method)
}

// FindQueriesInsideLoops returns the AT_RISK view using the default heuristics
func FindQueriesInsideLoops(method syntax.Node) []Diagnostic {
	return defaultAnalyzer.FindQueriesInsideLoops(method)
}

// FindQueryDecorations returns one finding per terminal query call and per
// relation read inside a loop, in source order. Nodes without a line are
// dropped.
func (a *Analyzer) FindQueryDecorations(method syntax.Node) []Finding {
	findings := []Finding{}
	s := newScan(a.heuristics)
	syntax.Walk(method, func(n syntax.Node, depth int) bool {
		read := s.isRead(n)
		line := n.Span().StartLine
		if line <= 0 {
			return true
		}

		if name, ok := a.heuristics.TerminalCall(n); ok {
			f := classifyCall(name, depth)
			f.Line = line
			findings = append(findings, f)
		}
		if read && depth > 0 && a.heuristics.IsRelationAccess(n) {
			findings = append(findings, Finding{Line: line, Severity: SeverityAtRisk, Message: MessageLazyLoad})
		}
		return true
	})
	return findings
}

// FindQueriesInsideLoops is the AT_RISK subset of FindQueryDecorations as
// flat line/message pairs.
func (a *Analyzer) FindQueriesInsideLoops(method syntax.Node) []Diagnostic {
	return diagnosticsOf(a.FindQueryDecorations(method))
}

func diagnosticsOf(findings []Finding) []Diagnostic {
	diags := []Diagnostic{}
	for _, f := range findings {
		if f.Severity == SeverityAtRisk {
			diags = append(diags, Diagnostic{Line: f.Line, Message: MessageDiagnostic})
		}
	}
	return diags
}

// classifyCall picks the severity of a terminal call. Being inside a loop
// outranks the pagination classes.
func classifyCall(name string, depth int) Finding {
	switch {
	case depth > 0:
		return Finding{Severity: SeverityAtRisk, Message: MessageQueryInLoop}
	case name == methodPaginate:
		return Finding{Severity: SeverityHeavy, Message: MessagePaginate}
	case name == methodSimplePaginate:
		return Finding{Severity: SeveritySafe, Message: MessageSimplePaginate}
	default:
		return Finding{Severity: SeverityNormal, Message: MessageQuery}
	}
}
