package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/report"
	"github.com/QTest-hq/queryscope/pkg/syntax"
)

const postsController = `<?php
class PostController {
    public function index() {
        $posts = Post::all();
        foreach ($posts as $post) {
            echo $post->author;
        }
    }

    public function show($id) {
        return Post::with('author')->findOrFail($id);
    }
}
`

// writeProject lays out a minimal Laravel tree under a temp dir
func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "app", "Http", "Controllers")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PostController.php"), []byte(postsController), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "helpers.php"), []byte("<?php\nfunction x() { return DB::table('a')->get(); }\n"), 0o644))
	return root
}

func TestParsePRTarget(t *testing.T) {
	tests := []struct {
		input   string
		want    *prTarget
		wantErr bool
	}{
		{"acme/shop#42", &prTarget{owner: "acme", repo: "shop", number: 42}, false},
		{"acme/shop", nil, true},
		{"acme#42", nil, true},
		{"acme/shop/extra#1", nil, true},
		{"acme/shop#0", nil, true},
		{"acme/shop#abc", nil, true},
		{"/shop#3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parsePRTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAnalyze_Text(t *testing.T) {
	root := writeProject(t)

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, []string{root}, analyzeOptions{format: "text", workers: 2})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "app/Http/Controllers/PostController.php")
	assert.Contains(t, text, "index (lines 3-8)")
	assert.Contains(t, text, "⚠ N+1 risk")
	assert.NotContains(t, text, "helpers.php", "controllers only by default")
}

func TestRunAnalyze_JSONAllFiles(t *testing.T) {
	root := writeProject(t)

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, []string{root}, analyzeOptions{format: "json", allFiles: true})
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, 2, doc.Summary.Files)
	assert.Equal(t, 1, doc.Summary.NPlusOneMethods)
}

func TestRunAnalyze_SingleFile(t *testing.T) {
	root := writeProject(t)
	file := filepath.Join(root, "app", "Http", "Controllers", "PostController.php")

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, []string{file}, analyzeOptions{format: "json"})
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.Len(t, doc.Files, 1)
	assert.Len(t, doc.Files[0].Methods, 2)
}

func TestRunAnalyze_FailOn(t *testing.T) {
	root := writeProject(t)

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, []string{root}, analyzeOptions{format: "text", failOn: "at_risk"})

	var exit *exitError
	require.True(t, errors.As(err, &exit), "expected exitError, got %v", err)
	assert.Equal(t, exitThreshold, exit.code)
}

func TestRunAnalyze_FailOnFromProjectConfig(t *testing.T) {
	root := writeProject(t)
	project := config.DefaultProjectConfig()
	project.FailOn = "heavy"
	require.NoError(t, config.SaveProjectConfig(root, project))

	err := runAnalyze(context.Background(), &bytes.Buffer{}, []string{root}, analyzeOptions{format: "text"})
	var exit *exitError
	assert.True(t, errors.As(err, &exit))
}

func TestRunAnalyze_Errors(t *testing.T) {
	root := writeProject(t)

	tests := []struct {
		name    string
		args    []string
		opts    analyzeOptions
		wantErr string
	}{
		{"unknown format", []string{root}, analyzeOptions{format: "jsn"}, `did you mean "json"?`},
		{"bad fail-on", []string{root}, analyzeOptions{format: "text", failOn: "fatal"}, "invalid --fail-on"},
		{"bad pr target", []string{root}, analyzeOptions{format: "text", prComment: "nope"}, "expected owner/name#number"},
		{"missing path", []string{filepath.Join(root, "missing")}, analyzeOptions{format: "text"}, "cannot analyze"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runAnalyze(context.Background(), &bytes.Buffer{}, tt.args, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunAnalyze_OutputFile(t *testing.T) {
	root := writeProject(t)
	outFile := filepath.Join(t.TempDir(), "report.md")

	var stdout bytes.Buffer
	err := runAnalyze(context.Background(), &stdout, []string{root}, analyzeOptions{format: "markdown", output: outFile})
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Query analysis")
}

func TestPrintMethods(t *testing.T) {
	methods := []analyzer.MethodRecord{
		{Name: "index", StartLine: 3, EndLine: 8},
		{Name: "<anonymous>", StartLine: -1, EndLine: -1},
	}

	var out bytes.Buffer
	require.NoError(t, printMethods(&out, methods, false))
	assert.Equal(t, "1. index [lines 3-8]\n2. <anonymous> [lines ?]\n", out.String())

	out.Reset()
	require.NoError(t, printMethods(&out, methods, true))
	assert.Contains(t, out.String(), `"name": "index"`)

	out.Reset()
	require.NoError(t, printMethods(&out, nil, false))
	assert.Equal(t, "no methods\n", out.String())
}

func TestPrintDiagnostics(t *testing.T) {
	var out bytes.Buffer
	diags := []analyzer.Diagnostic{{Line: 6, Message: analyzer.MessageDiagnostic}}
	require.NoError(t, printDiagnostics(&out, "A.php", diags, false))
	assert.Equal(t, "A.php:6: warning: "+analyzer.MessageDiagnostic+"\n", out.String())

	out.Reset()
	require.NoError(t, printDiagnostics(&out, "A.php", nil, true))
	assert.Equal(t, "[]\n", out.String())
}

func TestDumpTree(t *testing.T) {
	loop := &syntax.Loop{
		Base:     syntax.At(5),
		LoopKind: syntax.KindForeach,
		Body: &syntax.PropertyLookup{
			Base:   syntax.At(6),
			What:   &syntax.Variable{Name: "post"},
			Offset: &syntax.Identifier{Name: "author"},
		},
	}

	var out bytes.Buffer
	dumpTree(&out, loop, 0)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "foreach [5]", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  body (loop body): propertylookup"), lines[1])

	out.Reset()
	dumpTree(&out, loop, 1)
	assert.Equal(t, "foreach [5]\n", out.String())
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", dir})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, config.ProjectConfigFile))

	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", dir})
	assert.Error(t, cmd.Execute())
}

func TestMethodsCmd(t *testing.T) {
	root := writeProject(t)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"methods", filepath.Join(root, "app", "Http", "Controllers", "PostController.php")})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "1. index [lines 3-8]\n2. show [lines 10-12]\n", out.String())
}
