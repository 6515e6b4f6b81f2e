package syntax

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DecodeJSON converts the JSON AST emitted by php-parser (nodes carrying
// "kind" and "loc" keys) into a Node tree. Only the JSON itself can fail;
// unexpected shapes degrade to Raw nodes or nil children.
func DecodeJSON(data []byte) (Node, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode AST: %w", err)
	}
	return fromJSON(v), nil
}

// keys that never hold child nodes
var skippedJSONKeys = map[string]bool{
	"kind":             true,
	"loc":              true,
	"leadingComments":  true,
	"trailingComments": true,
}

func fromJSON(v any) Node {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	kind, _ := m["kind"].(string)
	base := Base{Loc: locOf(m)}

	switch Kind(kind) {
	case KindCall:
		return &Call{Base: base, What: fromJSON(m["what"]), Arguments: listJSON(m["arguments"])}
	case KindPropertyLookup, KindNullsafePropertyLookup:
		return &PropertyLookup{
			Base:     base,
			What:     fromJSON(m["what"]),
			Offset:   fromJSON(m["offset"]),
			Nullsafe: Kind(kind) == KindNullsafePropertyLookup,
		}
	case KindStaticLookup:
		return &StaticLookup{Base: base, What: fromJSON(m["what"]), Offset: fromJSON(m["offset"])}
	case KindIdentifier:
		return &Identifier{Base: base, Name: stringOf(m["name"])}
	case KindName:
		return &Name{Base: base, Name: strings.TrimPrefix(stringOf(m["name"]), `\`)}
	case KindVariable:
		return &Variable{Base: base, Name: stringOf(m["name"])}
	case KindString, "nowdoc":
		return &String{Base: base, Value: stringOf(m["value"])}
	case KindArray:
		return &Array{Base: base, Items: listJSON(m["items"])}
	case KindFor:
		return &Loop{Base: base, LoopKind: KindFor, Body: fromJSON(m["body"]), Clauses: []Field{
			fieldJSON("init", m["init"]),
			fieldJSON("test", m["test"]),
			fieldJSON("increment", m["increment"]),
		}}
	case KindForeach:
		return &Loop{Base: base, LoopKind: KindForeach, Body: fromJSON(m["body"]), Clauses: []Field{
			fieldJSON("source", m["source"]),
			fieldJSON("key", m["key"]),
			fieldJSON("value", m["value"]),
		}}
	case KindWhile, KindDo:
		return &Loop{Base: base, LoopKind: Kind(kind), Body: fromJSON(m["body"]), Clauses: []Field{
			fieldJSON("test", m["test"]),
		}}
	case KindMethod:
		return &Method{
			Base:      base,
			Name:      nameJSON(m["name"]),
			Arguments: listJSON(m["arguments"]),
			Body:      fromJSON(m["body"]),
		}
	case KindClass:
		return &Class{Base: base, Name: nameJSON(m["name"]), Body: listJSON(m["body"])}
	}

	return rawJSON(Kind(kind), base, m)
}

func rawJSON(kind Kind, base Base, m map[string]any) Node {
	raw := &Raw{Base: base, Tag: kind}
	for key, val := range m {
		if skippedJSONKeys[key] {
			continue
		}
		if s, ok := val.(string); ok {
			if raw.Attrs == nil {
				raw.Attrs = make(map[string]string)
			}
			raw.Attrs[key] = s
			continue
		}
		if f := fieldJSON(key, val); len(f.Nodes) > 0 {
			raw.Fields = append(raw.Fields, f)
		}
	}

	// Map iteration order is random; restore source order
	sort.SliceStable(raw.Fields, func(i, j int) bool {
		li, lj := raw.Fields[i].Nodes[0].Span().StartLine, raw.Fields[j].Nodes[0].Span().StartLine
		if li != lj {
			return li < lj
		}
		return raw.Fields[i].Name < raw.Fields[j].Name
	})
	return raw
}

// nameJSON accepts both the bare-string and the identifier-object forms
func nameJSON(v any) Node {
	if s, ok := v.(string); ok {
		return &Identifier{Name: s}
	}
	return fromJSON(v)
}

func fieldJSON(name string, v any) Field {
	return Field{Name: name, Nodes: listJSON(v)}
}

// listJSON converts a node or an array of nodes, dropping non-node entries
func listJSON(v any) []Node {
	switch val := v.(type) {
	case []any:
		nodes := make([]Node, 0, len(val))
		for _, item := range val {
			if n := fromJSON(item); n != nil {
				nodes = append(nodes, n)
			}
		}
		return nodes
	case map[string]any:
		if n := fromJSON(val); n != nil {
			return []Node{n}
		}
	}
	return nil
}

func locOf(m map[string]any) Span {
	loc, _ := m["loc"].(map[string]any)
	return Span{StartLine: lineOf(loc, "start"), EndLine: lineOf(loc, "end")}
}

func lineOf(loc map[string]any, key string) int {
	pos, _ := loc[key].(map[string]any)
	line, _ := pos["line"].(float64)
	return int(line)
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
