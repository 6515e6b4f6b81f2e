package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

// AnalyzeQueries sums query weights under root using the default heuristics
func AnalyzeQueries(root syntax.Node) QueryMetrics {
	return defaultAnalyzer.AnalyzeQueries(root)
}

// AnalyzeQueries sums query weights under root. Weight found inside a loop
// body counts toward both Total and InLoops.
func (a *Analyzer) AnalyzeQueries(root syntax.Node) QueryMetrics {
	var m QueryMetrics
	s := newScan(a.heuristics)
	syntax.Walk(root, func(n syntax.Node, depth int) bool {
		m.add(s.weigh(n, depth), depth)
		return true
	})
	return m
}

func (m *QueryMetrics) add(weight, depth int) {
	if weight <= 0 {
		return
	}
	m.Total += weight
	if depth > 0 {
		m.InLoops += weight
	}
}
