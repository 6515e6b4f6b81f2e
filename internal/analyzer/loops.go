package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

// AnalyzeLoops counts loop constructs under root and the deepest nesting.
// A loop at the top level has depth 1.
func AnalyzeLoops(root syntax.Node) LoopMetrics {
	var m LoopMetrics
	syntax.Walk(root, func(n syntax.Node, depth int) bool {
		m.observe(n, depth)
		return true
	})
	return m
}

// observe records n, which is enclosed by depth loop bodies
func (m *LoopMetrics) observe(n syntax.Node, depth int) {
	if !syntax.IsLoop(n.Kind()) {
		return
	}
	m.Loops++
	if depth+1 > m.MaxDepth {
		m.MaxDepth = depth + 1
	}
}
