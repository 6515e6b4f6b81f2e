package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveName(t *testing.T) {
	tests := []struct {
		name   string
		node   Node
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"identifier", &Identifier{Name: "get"}, "get", true},
		{"name", &Name{Name: "User"}, "User", true},
		{"variable", &Variable{Name: "user"}, "user", true},
		{"dynamic variable", &Variable{}, "", false},
		{"method nested identifier", &Method{Name: &Identifier{Name: "index"}}, "index", true},
		{"class nested name", &Class{Name: &Identifier{Name: "UserController"}}, "UserController", true},
		{"method without name", &Method{}, "", false},
		{"typed nil identifier", (*Identifier)(nil), "", false},
		{"method with typed nil name", &Method{Name: (*Identifier)(nil)}, "", false},
		{"raw attribute", &Raw{Tag: "function", Attrs: map[string]string{"name": "helper"}}, "helper", true},
		{"raw nested child", &Raw{Tag: "trait", Fields: []Field{{Name: "name", Nodes: []Node{&Identifier{Name: "HasPosts"}}}}}, "HasPosts", true},
		{"property lookup has no name", &PropertyLookup{Offset: &Identifier{Name: "posts"}}, "", false},
		{"string literal", &String{Value: "posts"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveName(tt.node)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCalledMethodName(t *testing.T) {
	tests := []struct {
		name   string
		node   Node
		want   string
		wantOK bool
	}{
		{
			name:   "typed nil call",
			node:   (*Call)(nil),
			wantOK: false,
		},
		{
			name:   "typed nil lookup target",
			node:   &Call{What: (*PropertyLookup)(nil)},
			wantOK: false,
		},
		{
			name:   "direct call",
			node:   &Call{What: &Name{Name: "collect"}},
			want:   "collect",
			wantOK: true,
		},
		{
			name:   "chained call",
			node:   &Call{What: &PropertyLookup{What: &Variable{Name: "query"}, Offset: &Identifier{Name: "get"}}},
			want:   "get",
			wantOK: true,
		},
		{
			name:   "nullsafe chained call",
			node:   &Call{What: &PropertyLookup{Nullsafe: true, What: &Variable{Name: "user"}, Offset: &Identifier{Name: "first"}}},
			want:   "first",
			wantOK: true,
		},
		{
			name: "static call is not resolved",
			node: &Call{What: &StaticLookup{What: &Name{Name: "User"}, Offset: &Identifier{Name: "find"}}},
		},
		{
			name: "not a call",
			node: &PropertyLookup{Offset: &Identifier{Name: "get"}},
		},
		{
			name: "call without target",
			node: &Call{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CalledMethodName(tt.node)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "DB", ShortName(`\Illuminate\Support\Facades\DB`))
	assert.Equal(t, "DB", ShortName("DB"))
	assert.Equal(t, "", ShortName(""))
}
