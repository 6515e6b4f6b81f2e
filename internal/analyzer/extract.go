package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

// ExtractMethods returns every named method declaration under root in
// pre-order, which is source order.
func ExtractMethods(root syntax.Node) []MethodRecord {
	var methods []MethodRecord
	syntax.Inspect(root, func(n syntax.Node) bool {
		m, ok := n.(*syntax.Method)
		if !ok || syntax.IsNil(m.Name) {
			return true
		}

		name, ok := syntax.ResolveName(m)
		if !ok {
			name = unknownName
		}
		start, end := lineRange(m)
		methods = append(methods, MethodRecord{Name: name, StartLine: start, EndLine: end, Node: m})
		return true
	})
	return methods
}
