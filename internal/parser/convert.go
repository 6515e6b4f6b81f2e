package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// tree-sitter-php node types with a dedicated syntax node
const (
	tsMethod             = "method_declaration"
	tsClass              = "class_declaration"
	tsMemberCall         = "member_call_expression"
	tsNullsafeMemberCall = "nullsafe_member_call_expression"
	tsScopedCall         = "scoped_call_expression"
	tsFunctionCall       = "function_call_expression"
	tsMemberAccess       = "member_access_expression"
	tsNullsafeAccess     = "nullsafe_member_access_expression"
	tsVariable           = "variable_name"
	tsName               = "name"
	tsQualifiedName      = "qualified_name"
	tsString             = "string"
	tsEncapsedString     = "encapsed_string"
	tsHeredoc            = "heredoc"
	tsNowdoc             = "nowdoc"
	tsArray              = "array_creation_expression"
	tsArrayElement       = "array_element_initializer"
	tsArgument           = "argument"
	tsForeach            = "foreach_statement"
	tsFor                = "for_statement"
	tsWhile              = "while_statement"
	tsDo                 = "do_statement"
	tsCompound           = "compound_statement"
	tsComment            = "comment"
	tsError              = "ERROR"
)

var loopKinds = map[string]syntax.Kind{
	tsForeach: syntax.KindForeach,
	tsFor:     syntax.KindFor,
	tsWhile:   syntax.KindWhile,
	tsDo:      syntax.KindDo,
}

// converter maps a tree-sitter CST onto syntax nodes. Recursion depth follows
// the nesting of the PHP source, which tree-sitter has already parsed
// recursively.
type converter struct {
	source     []byte
	errorLines []int
}

func (c *converter) convert(n *sitter.Node) syntax.Node {
	if n == nil {
		return nil
	}
	base := syntax.Base{Loc: span(n)}

	switch t := n.Type(); t {
	case tsComment:
		return nil

	case tsMethod:
		return &syntax.Method{
			Base:      base,
			Name:      c.member(n.ChildByFieldName("name")),
			Arguments: c.namedChildren(n.ChildByFieldName("parameters")),
			Body:      c.convert(n.ChildByFieldName("body")),
		}

	case tsClass:
		return &syntax.Class{
			Base: base,
			Name: c.member(n.ChildByFieldName("name")),
			Body: c.namedChildren(n.ChildByFieldName("body")),
		}

	case tsMemberCall, tsNullsafeMemberCall:
		return &syntax.Call{
			Base: base,
			What: &syntax.PropertyLookup{
				Base:     base,
				What:     c.convert(n.ChildByFieldName("object")),
				Offset:   c.member(n.ChildByFieldName("name")),
				Nullsafe: t == tsNullsafeMemberCall,
			},
			Arguments: c.arguments(n.ChildByFieldName("arguments")),
		}

	case tsScopedCall:
		return &syntax.Call{
			Base: base,
			What: &syntax.StaticLookup{
				Base:   base,
				What:   c.convert(n.ChildByFieldName("scope")),
				Offset: c.member(n.ChildByFieldName("name")),
			},
			Arguments: c.arguments(n.ChildByFieldName("arguments")),
		}

	case tsFunctionCall:
		return &syntax.Call{
			Base:      base,
			What:      c.convert(n.ChildByFieldName("function")),
			Arguments: c.arguments(n.ChildByFieldName("arguments")),
		}

	case tsMemberAccess, tsNullsafeAccess:
		return &syntax.PropertyLookup{
			Base:     base,
			What:     c.convert(n.ChildByFieldName("object")),
			Offset:   c.member(n.ChildByFieldName("name")),
			Nullsafe: t == tsNullsafeAccess,
		}

	case tsVariable:
		return &syntax.Variable{Base: base, Name: strings.TrimPrefix(c.text(n), "$")}

	case tsName, tsQualifiedName:
		return &syntax.Name{Base: base, Name: strings.TrimPrefix(c.text(n), `\`)}

	case tsString, tsHeredoc, tsNowdoc:
		return &syntax.String{Base: base, Value: unquote(c.text(n))}

	case tsEncapsedString:
		if interpolated(n) {
			return c.raw(n, base)
		}
		return &syntax.String{Base: base, Value: unquote(c.text(n))}

	case tsArray:
		return &syntax.Array{Base: base, Items: c.arrayItems(n)}

	case tsForeach, tsFor, tsWhile, tsDo:
		return c.loop(n, base, loopKinds[t])

	case tsError:
		c.errorLines = append(c.errorLines, base.Loc.StartLine)
		return c.raw(n, base)

	default:
		return c.raw(n, base)
	}
}

// member converts a member or declaration name. Plain names become
// identifiers; dynamic names ($obj->$prop) keep their expression.
func (c *converter) member(n *sitter.Node) syntax.Node {
	if n == nil {
		return nil
	}
	if n.Type() == tsName {
		return &syntax.Identifier{Base: syntax.Base{Loc: span(n)}, Name: c.text(n)}
	}
	return c.convert(n)
}

// arguments unwraps each argument to its value expression
func (c *converter) arguments(n *sitter.Node) []syntax.Node {
	if n == nil {
		return nil
	}
	var out []syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == tsArgument {
			child = lastNamed(child)
		}
		if node := c.convert(child); node != nil {
			out = append(out, node)
		}
	}
	return out
}

// arrayItems returns element values; keys are dropped
func (c *converter) arrayItems(n *sitter.Node) []syntax.Node {
	var items []syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == tsArrayElement {
			child = lastNamed(child)
		}
		if node := c.convert(child); node != nil {
			items = append(items, node)
		}
	}
	return items
}

// loop splits a loop statement into header clauses and the iterated body
func (c *converter) loop(n *sitter.Node, base syntax.Base, kind syntax.Kind) *syntax.Loop {
	l := &syntax.Loop{Base: base, LoopKind: kind}

	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if !child.IsNamed() || sameNode(child, body) {
				continue
			}
			c.clause(l, fieldName(n, i, "clause"), child)
		}
		l.Body = c.convert(body)
		return l
	}

	// Older grammars and the alternative syntax (foreach (...): ... endforeach;)
	// carry no body field. The header ends at the closing parenthesis, or
	// at the condition for while and do.
	var stmts []syntax.Node
	inBody := kind == syntax.KindDo
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch {
		case child.Type() == ")":
			inBody = true
		case child.Type() == "parenthesized_expression":
			c.clause(l, "test", child)
			inBody = kind != syntax.KindDo
		case !child.IsNamed():
		case inBody:
			if node := c.convert(child); node != nil {
				stmts = append(stmts, node)
			}
		default:
			c.clause(l, fieldName(n, i, "clause"), child)
		}
	}

	switch len(stmts) {
	case 0:
	case 1:
		l.Body = stmts[0]
	default:
		l.Body = &syntax.Raw{
			Base:   base,
			Tag:    syntax.KindBlock,
			Fields: []syntax.Field{{Name: "children", Nodes: stmts}},
		}
	}
	return l
}

func (c *converter) clause(l *syntax.Loop, name string, n *sitter.Node) {
	if node := c.convert(n); node != nil {
		l.Clauses = append(l.Clauses, syntax.Field{Name: name, Nodes: []syntax.Node{node}})
	}
}

// raw keeps an unrecognised node with its named children in source order
func (c *converter) raw(n *sitter.Node, base syntax.Base) *syntax.Raw {
	tag := syntax.Kind(n.Type())
	if n.Type() == tsCompound {
		tag = syntax.KindBlock
	}
	r := &syntax.Raw{Base: base, Tag: tag}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsMissing() {
			c.errorLines = append(c.errorLines, span(child).StartLine)
		}
		if !child.IsNamed() {
			continue
		}
		node := c.convert(child)
		if node == nil {
			continue
		}
		name := fieldName(n, i, "children")
		if k := len(r.Fields); k > 0 && r.Fields[k-1].Name == name {
			r.Fields[k-1].Nodes = append(r.Fields[k-1].Nodes, node)
			continue
		}
		r.Fields = append(r.Fields, syntax.Field{Name: name, Nodes: []syntax.Node{node}})
	}
	return r
}

func (c *converter) namedChildren(n *sitter.Node) []syntax.Node {
	if n == nil {
		return nil
	}
	var out []syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if node := c.convert(n.NamedChild(i)); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (c *converter) text(n *sitter.Node) string {
	return n.Content(c.source)
}

func span(n *sitter.Node) syntax.Span {
	return syntax.Lines(int(n.StartPoint().Row)+1, int(n.EndPoint().Row)+1)
}

func fieldName(parent *sitter.Node, i int, fallback string) string {
	if name := parent.FieldNameForChild(i); name != "" {
		return name
	}
	return fallback
}

func lastNamed(n *sitter.Node) *sitter.Node {
	if count := int(n.NamedChildCount()); count > 0 {
		return n.NamedChild(count - 1)
	}
	return n
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// interpolated reports whether a double-quoted string embeds expressions
func interpolated(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		switch n.NamedChild(i).Type() {
		case "string_content", "string_value", "escape_sequence":
		default:
			return true
		}
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
