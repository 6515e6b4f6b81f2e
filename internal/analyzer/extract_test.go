package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

func controller() *syntax.Class {
	return &syntax.Class{
		Base: syntax.Base{Loc: syntax.Lines(1, 40)},
		Name: ident("UserController"),
		Body: []syntax.Node{
			method("index", 3, foreach(4, static(4, "User", "all"), prop(5, "user", "posts"))),
			&syntax.Raw{Tag: "propertystatement", Attrs: map[string]string{"visibility": "protected"}},
			method("show", 15, static(16, "User", "findOrFail", variable("id"))),
			&syntax.Method{Body: block()},
		},
	}
}

func TestExtractMethods(t *testing.T) {
	methods := ExtractMethods(controller())

	require.Len(t, methods, 2)
	assert.Equal(t, "index", methods[0].Name)
	assert.Equal(t, 3, methods[0].StartLine)
	assert.Equal(t, 13, methods[0].EndLine)
	assert.Equal(t, "show", methods[1].Name)
	assert.IsType(t, &syntax.Method{}, methods[1].Node)
}

func TestExtractMethods_UnknownNameAndLines(t *testing.T) {
	m := &syntax.Method{Name: &syntax.Raw{Tag: "dynamic"}}
	methods := ExtractMethods(block(m))

	require.Len(t, methods, 1)
	assert.Equal(t, "unknown", methods[0].Name)
	assert.Equal(t, -1, methods[0].StartLine)
	assert.Equal(t, -1, methods[0].EndLine)
}

func TestExtractMethods_Empty(t *testing.T) {
	assert.Empty(t, ExtractMethods(nil))
	assert.Empty(t, ExtractMethods(block(variable("x"))))
}
