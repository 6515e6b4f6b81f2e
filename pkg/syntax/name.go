package syntax

import "strings"

// ResolveName returns the best-effort name carried by n. It accepts
// identifier-like nodes, declarations whose name is itself a node, and raw
// nodes with a "name" attribute or child. ok is false when nothing usable is
// found; that is an expected outcome, not an error.
func ResolveName(n Node) (name string, ok bool) {
	if IsNil(n) {
		return "", false
	}
	if name, ok := directName(n); ok {
		return name, true
	}

	switch v := n.(type) {
	case *Method:
		return directName(v.Name)
	case *Class:
		return directName(v.Name)
	case *Raw:
		return directName(v.Child("name"))
	}
	return "", false
}

func directName(n Node) (string, bool) {
	if IsNil(n) {
		return "", false
	}
	var name string
	switch v := n.(type) {
	case *Identifier:
		name = v.Name
	case *Name:
		name = v.Name
	case *Variable:
		name = v.Name
	case *Raw:
		name = v.Attrs["name"]
	}
	return name, name != ""
}

// CalledMethodName returns the name a call invokes: foo for foo() and
// $x->foo(). Static calls (X::foo()) are not resolved here; their target is
// the StaticLookup child, which is classified on its own.
func CalledMethodName(n Node) (string, bool) {
	call, ok := n.(*Call)
	if !ok || call == nil {
		return "", false
	}

	if name, ok := ResolveName(call.What); ok {
		return name, true
	}
	if lookup, ok := call.What.(*PropertyLookup); ok && lookup != nil {
		return ResolveName(lookup.Offset)
	}
	return "", false
}

// ShortName strips any namespace qualifier: \App\Facades\DB becomes DB
func ShortName(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
