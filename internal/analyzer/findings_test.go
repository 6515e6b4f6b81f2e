package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

func TestFindQueryDecorations(t *testing.T) {
	root := method("index", 1,
		chain(2, variable("q"), "get"),
		chain(3, variable("q"), "paginate"),
		chain(4, variable("q"), "simplePaginate"),
		foreach(5, variable("users"),
			chain(6, variable("q"), "paginate"),
			prop(7, "user", "comments"),
			prop(8, "user", "email"),
		),
		prop(10, "user", "comments"),
	)

	got := FindQueryDecorations(root)

	assert.Equal(t, []Finding{
		{Line: 2, Severity: SeverityNormal, Message: MessageQuery},
		{Line: 3, Severity: SeverityHeavy, Message: MessagePaginate},
		{Line: 4, Severity: SeveritySafe, Message: MessageSimplePaginate},
		{Line: 6, Severity: SeverityAtRisk, Message: MessageQueryInLoop},
		{Line: 7, Severity: SeverityAtRisk, Message: MessageLazyLoad},
	}, got)
}

func TestFindQueryDecorations_DropsNodesWithoutLines(t *testing.T) {
	unplaced := &syntax.Call{
		What: &syntax.PropertyLookup{What: variable("q"), Offset: ident("get")},
	}
	root := method("index", 1, foreach(2, variable("users"), unplaced, &syntax.PropertyLookup{What: variable("u"), Offset: ident("posts")}))

	assert.Empty(t, FindQueryDecorations(root))
	assert.Empty(t, FindQueriesInsideLoops(root))
}

func TestFindQueryDecorations_CallTargetIsNotLazyLoad(t *testing.T) {
	root := method("index", 1, foreach(2, variable("users"),
		chain(3, chain(3, variable("user"), "posts"), "first"),
	))

	got := FindQueryDecorations(root)
	require.Len(t, got, 1)
	assert.Equal(t, SeverityAtRisk, got[0].Severity)
	assert.Equal(t, MessageQueryInLoop, got[0].Message)
}

func TestFindQueriesInsideLoops(t *testing.T) {
	root := method("index", 1,
		chain(2, variable("q"), "get"),
		foreach(3, variable("users"),
			chain(4, variable("q"), "count"),
			prop(5, "user", "profile"),
		),
	)

	assert.Equal(t, []Diagnostic{
		{Line: 4, Message: MessageDiagnostic},
		{Line: 5, Message: MessageDiagnostic},
	}, FindQueriesInsideLoops(root))
}

func TestSeverity(t *testing.T) {
	assert.Greater(t, SeverityAtRisk.Rank(), SeverityHeavy.Rank())
	assert.Greater(t, SeverityHeavy.Rank(), SeverityNormal.Rank())
	assert.Greater(t, SeverityNormal.Rank(), SeveritySafe.Rank())

	for in, want := range map[string]Severity{
		"normal": SeverityNormal, "AT_RISK": SeverityAtRisk, "at-risk": SeverityAtRisk,
		"nplus": SeverityAtRisk, " heavy ": SeverityHeavy, "safe": SeveritySafe,
	} {
		got, err := ParseSeverity(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSeverity("critical")
	assert.Error(t, err)
}
