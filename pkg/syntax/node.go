// Package syntax defines the read-only syntax tree the analyzer works on.
//
// Front-ends (tree-sitter, php-parser JSON) convert their own trees into these
// nodes. Recognised constructs get a dedicated type; anything else is kept as
// a Raw node so its children can still be traversed.
package syntax

// Kind is the discriminator carried by every node
type Kind string

const (
	KindCall                   Kind = "call"
	KindPropertyLookup         Kind = "propertylookup"
	KindNullsafePropertyLookup Kind = "nullsafepropertylookup"
	KindStaticLookup           Kind = "staticlookup"
	KindIdentifier             Kind = "identifier"
	KindName                   Kind = "name"
	KindVariable               Kind = "variable"
	KindString                 Kind = "string"
	KindArray                  Kind = "array"
	KindFor                    Kind = "for"
	KindForeach                Kind = "foreach"
	KindWhile                  Kind = "while"
	KindDo                     Kind = "do"
	KindMethod                 Kind = "method"
	KindClass                  Kind = "class"
	KindBlock                  Kind = "block"
)

// Span is the source range of a node. Lines are 1-based; zero means the
// front-end supplied no position.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Known reports whether the span carries a start line
func (s Span) Known() bool {
	return s.StartLine > 0
}

// Lines returns a span covering start..end
func Lines(start, end int) Span {
	return Span{StartLine: start, EndLine: end}
}

// Field is one named child slot of a node, in source order.
type Field struct {
	Name  string
	Nodes []Node
	// Scoped marks the body of an iteration construct. The walker descends
	// into scoped fields one level deeper than the owning node.
	Scoped bool
}

// Node is implemented by every tree node. The set of implementations is
// closed: isNil is declared on each node type, not on Base, so types
// outside this package cannot implement Node. Unknown constructs use Raw.
type Node interface {
	Kind() Kind
	Span() Span
	Children() []Field
	isNil() bool
}

// IsNil reports whether n is absent, either a nil interface or a typed nil
// pointer such as (*Call)(nil). Traversal and name resolution treat both as
// missing children.
func IsNil(n Node) bool {
	return n == nil || n.isNil()
}

// Base carries the position shared by all node types
type Base struct {
	Loc Span
}

// At returns a Base positioned on a single line
func At(line int) Base {
	return Base{Loc: Span{StartLine: line, EndLine: line}}
}

func (b Base) Span() Span { return b.Loc }

// Call is a function, method or static call. What is the call target:
// a Name for foo(), a PropertyLookup for $x->foo(), a StaticLookup for X::foo().
type Call struct {
	Base
	What      Node
	Arguments []Node
}

func (*Call) Kind() Kind { return KindCall }

func (c *Call) Children() []Field {
	if c == nil {
		return nil
	}
	return []Field{one("what", c.What), {Name: "arguments", Nodes: c.Arguments}}
}

// PropertyLookup is $object->offset (or $object?->offset when Nullsafe)
type PropertyLookup struct {
	Base
	What     Node
	Offset   Node
	Nullsafe bool
}

func (p *PropertyLookup) Kind() Kind {
	if p != nil && p.Nullsafe {
		return KindNullsafePropertyLookup
	}
	return KindPropertyLookup
}

func (p *PropertyLookup) Children() []Field {
	if p == nil {
		return nil
	}
	return []Field{one("what", p.What), one("offset", p.Offset)}
}

// StaticLookup is Class::offset
type StaticLookup struct {
	Base
	What   Node
	Offset Node
}

func (*StaticLookup) Kind() Kind { return KindStaticLookup }

func (s *StaticLookup) Children() []Field {
	if s == nil {
		return nil
	}
	return []Field{one("what", s.What), one("offset", s.Offset)}
}

// Identifier is a bare member or declaration name
type Identifier struct {
	Base
	Name string
}

func (*Identifier) Kind() Kind        { return KindIdentifier }
func (*Identifier) Children() []Field { return nil }

// Name is a (possibly qualified) reference to a class or function
type Name struct {
	Base
	Name string
}

func (*Name) Kind() Kind        { return KindName }
func (*Name) Children() []Field { return nil }

// Variable is $name. Name is empty for variable-variables.
type Variable struct {
	Base
	Name string
}

func (*Variable) Kind() Kind        { return KindVariable }
func (*Variable) Children() []Field { return nil }

// String is a string literal with quotes removed
type String struct {
	Base
	Value string
}

func (*String) Kind() Kind        { return KindString }
func (*String) Children() []Field { return nil }

// Array is an array literal
type Array struct {
	Base
	Items []Node
}

func (*Array) Kind() Kind { return KindArray }

func (a *Array) Children() []Field {
	if a == nil {
		return nil
	}
	return []Field{{Name: "items", Nodes: a.Items}}
}

// Loop is any iteration construct. Clauses hold the header parts (foreach
// source, for init/test/increment, while condition); Body is iterated.
type Loop struct {
	Base
	LoopKind Kind
	Clauses  []Field
	Body     Node
}

func (l *Loop) Kind() Kind {
	if l == nil {
		return ""
	}
	return l.LoopKind
}

func (l *Loop) Children() []Field {
	if l == nil {
		return nil
	}
	fields := make([]Field, 0, len(l.Clauses)+1)
	fields = append(fields, l.Clauses...)
	body := one("body", l.Body)
	body.Scoped = true
	if l.LoopKind == KindDo {
		// do { body } while (cond): body precedes the condition in source
		return append([]Field{body}, fields...)
	}
	return append(fields, body)
}

// Method is a class method declaration
type Method struct {
	Base
	Name      Node
	Arguments []Node
	Body      Node
}

func (*Method) Kind() Kind { return KindMethod }

func (m *Method) Children() []Field {
	if m == nil {
		return nil
	}
	return []Field{one("name", m.Name), {Name: "arguments", Nodes: m.Arguments}, one("body", m.Body)}
}

// Class is a class declaration
type Class struct {
	Base
	Name Node
	Body []Node
}

func (*Class) Kind() Kind { return KindClass }

func (c *Class) Children() []Field {
	if c == nil {
		return nil
	}
	return []Field{one("name", c.Name), {Name: "body", Nodes: c.Body}}
}

// Raw is any construct without a dedicated type. Attrs keeps scalar string
// properties reported by the front-end (a "name" attribute is honoured by
// ResolveName).
type Raw struct {
	Base
	Tag    Kind
	Attrs  map[string]string
	Fields []Field
}

func (r *Raw) Kind() Kind {
	if r == nil {
		return ""
	}
	return r.Tag
}

func (r *Raw) Children() []Field {
	if r == nil {
		return nil
	}
	return r.Fields
}

// Child returns the first node stored under the named field
func (r *Raw) Child(name string) Node {
	if r == nil {
		return nil
	}
	for _, f := range r.Fields {
		if f.Name == name && len(f.Nodes) > 0 {
			return f.Nodes[0]
		}
	}
	return nil
}

func one(name string, n Node) Field {
	if IsNil(n) {
		return Field{Name: name}
	}
	return Field{Name: name, Nodes: []Node{n}}
}

func (n *Call) isNil() bool           { return n == nil }
func (n *PropertyLookup) isNil() bool { return n == nil }
func (n *StaticLookup) isNil() bool   { return n == nil }
func (n *Identifier) isNil() bool     { return n == nil }
func (n *Name) isNil() bool           { return n == nil }
func (n *Variable) isNil() bool       { return n == nil }
func (n *String) isNil() bool         { return n == nil }
func (n *Array) isNil() bool          { return n == nil }
func (n *Loop) isNil() bool           { return n == nil }
func (n *Method) isNil() bool         { return n == nil }
func (n *Class) isNil() bool          { return n == nil }
func (n *Raw) isNil() bool            { return n == nil }

// IsLoop reports whether k is an iteration construct
func IsLoop(k Kind) bool {
	switch k {
	case KindFor, KindForeach, KindWhile, KindDo:
		return true
	}
	return false
}
