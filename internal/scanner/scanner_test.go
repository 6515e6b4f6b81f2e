package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/cache"
	"github.com/QTest-hq/queryscope/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const postController = `<?php
namespace App\Http\Controllers;

class PostController extends Controller
{
    public function index()
    {
        $posts = Post::all();
        foreach ($posts as $post) {
            echo $post->author;
        }
    }
}
`

const homeController = `<?php
namespace App\Http\Controllers;

class HomeController extends Controller
{
    public function __invoke()
    {
        return view('home');
    }
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func laravelProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "app/Http/Controllers/PostController.php", postController)
	writeFile(t, root, "app/Http/Controllers/HomeController.php", homeController)
	writeFile(t, root, "app/Models/Post.php", "<?php class Post {}\n")
	writeFile(t, root, "vendor/laravel/framework/src/Http/Controllers/Base.php", postController)
	writeFile(t, root, "README.md", "# app\n")
	return root
}

func TestScanner_Matches(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		path string
		want bool
	}{
		{"app/Http/Controllers/PostController.php", true},
		{"app/Http/Controllers/Admin/UserController.php", true},
		{"app/Models/Post.php", false},
		{"vendor/acme/app/Http/Controllers/X.php", false},
		{"app/Http/Controllers/notes.txt", false},
		{"tests/app/Http/Controllers/FakeController.php", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Matches(tt.path))
		})
	}
}

func TestScanner_MatchesAllFiles(t *testing.T) {
	project := config.DefaultProjectConfig()
	project.Controllers.Only = false
	s := New(Options{Project: project})

	assert.True(t, s.Matches("app/Models/Post.php"))
	assert.False(t, s.Matches("vendor/acme/Post.php"))
}

func TestIsController(t *testing.T) {
	assert.True(t, IsController("/srv/app/Http/Controllers/A.php", ""))
	assert.True(t, IsController("src/Web/Controllers/A.php", "/src/Web/Controllers/"))
	assert.False(t, IsController("app/Models/A.php", ""))
}

func TestScanner_Discover(t *testing.T) {
	root := laravelProject(t)
	s := New(Options{Root: root})

	files, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app/Http/Controllers/HomeController.php",
		"app/Http/Controllers/PostController.php",
	}, files)
}

func TestScanner_Scan(t *testing.T) {
	root := laravelProject(t)
	s := New(Options{Root: root, Workers: 2})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)

	home, post := result.Reports[0], result.Reports[1]
	assert.Equal(t, "app/Http/Controllers/HomeController.php", home.Path)
	assert.Equal(t, "php", home.Language)
	require.Len(t, home.Methods, 1)
	assert.Equal(t, "__invoke", home.Methods[0].MethodName)
	assert.False(t, home.Methods[0].PossibleNPlusOne)

	require.Len(t, post.Methods, 1)
	index := post.Methods[0]
	assert.Equal(t, "index", index.MethodName)
	assert.Equal(t, 2, index.QueriesTotal)
	assert.Equal(t, 1, index.QueriesInLoops)
	assert.Equal(t, analyzer.ComplexityQueryBound, index.EstimatedComplexity)
	assert.Equal(t, []analyzer.Diagnostic{{Line: 10, Message: analyzer.MessageDiagnostic}}, index.Diagnostics)

	assert.Equal(t, 2, result.Summary.Files)
	assert.Equal(t, 1, result.Summary.NPlusOneMethods)
}

func TestScanner_UsesCache(t *testing.T) {
	root := laravelProject(t)
	c := cache.New(8)
	s := New(Options{Root: root, Cache: c})

	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	_, err = s.Scan(context.Background())
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestScanner_MissingFileIsReported(t *testing.T) {
	s := New(Options{Root: t.TempDir()})

	result, err := s.ScanFiles(context.Background(), []string{"app/Http/Controllers/Gone.php"})
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.NotEmpty(t, result.Reports[0].ParseError)
	assert.Equal(t, 1, result.Summary.FailedFiles)
}

func TestScanner_Budget(t *testing.T) {
	root := laravelProject(t)
	s := New(Options{Root: root, Analyzer: analyzer.New(analyzer.Options{MaxNodes: 3})})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	for _, r := range result.Reports {
		assert.Contains(t, r.ParseError, "budget")
	}
}

func TestScanner_Cancelled(t *testing.T) {
	root := laravelProject(t)
	s := New(Options{Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_CustomHeuristics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/Http/Controllers/OrderController.php", `<?php
class OrderController {
    public function index() {
        foreach ($orders as $order) {
            echo $order->total;
        }
    }
}
`)
	project := config.DefaultProjectConfig()
	project.Heuristics.ScalarColumns = []string{"total"}

	result, err := New(Options{Root: root, Project: project}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.False(t, result.Reports[0].Methods[0].PossibleNPlusOne)

	result, err = New(Options{Root: root}).Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Reports[0].Methods[0].PossibleNPlusOne)
}
