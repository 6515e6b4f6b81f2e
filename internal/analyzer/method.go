package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

const unknownName = "unknown"

// AnalyzeMethod summarises one method using the default heuristics
func AnalyzeMethod(method syntax.Node) MethodAnalysis {
	return defaultAnalyzer.AnalyzeMethod(method)
}

// AnalyzeMethod computes loop and query metrics for a method in a single
// traversal and derives the N+1 flag and complexity label.
func (a *Analyzer) AnalyzeMethod(method syntax.Node) MethodAnalysis {
	var (
		loops   LoopMetrics
		queries QueryMetrics
		s       = newScan(a.heuristics)
	)
	syntax.Walk(method, func(n syntax.Node, depth int) bool {
		loops.observe(n, depth)
		queries.add(s.weigh(n, depth), depth)
		return true
	})

	name := unknownName
	if resolved, ok := syntax.ResolveName(method); ok {
		name = resolved
	}
	start, end := lineRange(method)

	return MethodAnalysis{
		MethodName:          name,
		StartLine:           start,
		EndLine:             end,
		Loops:               loops.Loops,
		MaxLoopDepth:        loops.MaxDepth,
		QueriesTotal:        queries.Total,
		QueriesInLoops:      queries.InLoops,
		PossibleNPlusOne:    queries.InLoops > 0,
		EstimatedComplexity: EstimateComplexity(loops.MaxDepth, queries.InLoops),
	}
}

// EstimateComplexity maps loop nesting and in-loop query weight to a label.
// Rules are checked in order; the first match wins.
func EstimateComplexity(maxDepth, queriesInLoops int) Complexity {
	switch {
	case maxDepth == 0 && queriesInLoops == 0:
		return ComplexityConstant
	case maxDepth == 1 && queriesInLoops == 0:
		return ComplexityLinear
	case maxDepth >= 2 && queriesInLoops == 0:
		return ComplexityPolynomial(maxDepth)
	case maxDepth >= 1 && queriesInLoops > 0:
		return ComplexityQueryBound
	default:
		return ComplexityUnknown
	}
}

// lineRange returns the node's lines, -1 for each one that is unknown
func lineRange(n syntax.Node) (start, end int) {
	start, end = -1, -1
	if syntax.IsNil(n) {
		return start, end
	}
	span := n.Span()
	if span.StartLine > 0 {
		start = span.StartLine
	}
	if span.EndLine > 0 {
		end = span.EndLine
	}
	return start, end
}
