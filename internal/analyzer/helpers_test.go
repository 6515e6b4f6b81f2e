package analyzer

import "github.com/QTest-hq/queryscope/pkg/syntax"

func ident(name string) *syntax.Identifier { return &syntax.Identifier{Name: name} }

func variable(name string) *syntax.Variable { return &syntax.Variable{Name: name} }

func block(nodes ...syntax.Node) *syntax.Raw {
	return &syntax.Raw{Tag: syntax.KindBlock, Fields: []syntax.Field{{Name: "children", Nodes: nodes}}}
}

func method(name string, line int, body ...syntax.Node) *syntax.Method {
	return &syntax.Method{
		Base: syntax.Base{Loc: syntax.Lines(line, line+10)},
		Name: ident(name),
		Body: block(body...),
	}
}

func foreach(line int, source syntax.Node, body ...syntax.Node) *syntax.Loop {
	return &syntax.Loop{
		Base:     syntax.At(line),
		LoopKind: syntax.KindForeach,
		Clauses:  []syntax.Field{{Name: "source", Nodes: []syntax.Node{source}}},
		Body:     block(body...),
	}
}

func while(line int, body ...syntax.Node) *syntax.Loop {
	return &syntax.Loop{
		Base:     syntax.At(line),
		LoopKind: syntax.KindWhile,
		Clauses:  []syntax.Field{{Name: "test", Nodes: []syntax.Node{variable("more")}}},
		Body:     block(body...),
	}
}

// chain builds $target->name(args...)
func chain(line int, target syntax.Node, name string, args ...syntax.Node) *syntax.Call {
	return &syntax.Call{
		Base:      syntax.At(line),
		What:      &syntax.PropertyLookup{Base: syntax.At(line), What: target, Offset: ident(name)},
		Arguments: args,
	}
}

// static builds Class::name(args...)
func static(line int, class, name string, args ...syntax.Node) *syntax.Call {
	return &syntax.Call{
		Base:      syntax.At(line),
		What:      &syntax.StaticLookup{Base: syntax.At(line), What: &syntax.Name{Name: class}, Offset: ident(name)},
		Arguments: args,
	}
}

// prop builds $v->name
func prop(line int, v, name string) *syntax.PropertyLookup {
	return &syntax.PropertyLookup{Base: syntax.At(line), What: variable(v), Offset: ident(name)}
}

func str(s string) *syntax.String { return &syntax.String{Value: s} }

func array(items ...syntax.Node) *syntax.Array { return &syntax.Array{Items: items} }
