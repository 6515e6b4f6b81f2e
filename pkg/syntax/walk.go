package syntax

// Visitor is called once per node with the number of scoped fields (loop
// bodies) enclosing it. Returning false skips the node's children.
type Visitor func(n Node, depth int) bool

type frame struct {
	node  Node
	depth int
}

// Walk traverses root in pre-order. It uses an explicit stack, so tree depth
// is bounded only by memory. nil and typed-nil nodes are skipped.
func Walk(root Node, visit Visitor) {
	if IsNil(root) {
		return
	}

	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(top.node, top.depth) {
			continue
		}

		// Push children in reverse so the first child is visited next
		fields := top.node.Children()
		for i := len(fields) - 1; i >= 0; i-- {
			depth := top.depth
			if fields[i].Scoped {
				depth++
			}
			nodes := fields[i].Nodes
			for j := len(nodes) - 1; j >= 0; j-- {
				if !IsNil(nodes[j]) {
					stack = append(stack, frame{node: nodes[j], depth: depth})
				}
			}
		}
	}
}

// Inspect traverses root in pre-order without tracking depth
func Inspect(root Node, fn func(Node) bool) {
	Walk(root, func(n Node, _ int) bool {
		return fn(n)
	})
}

// Count returns the number of nodes under root. When limit > 0 it stops
// descending once the limit is passed, so the result is only exact up to
// limit+1 and callers should compare with >.
func Count(root Node, limit int) int {
	count := 0
	Inspect(root, func(Node) bool {
		count++
		return limit <= 0 || count <= limit
	})
	return count
}
