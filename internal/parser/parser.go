package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// Parser turns PHP files into syntax trees. It is safe for concurrent use;
// tree-sitter parsers are pooled because a single one is not.
type Parser struct {
	pool sync.Pool
}

// NewParser creates a new parser
func NewParser() *Parser {
	p := &Parser{}
	p.pool.New = func() any {
		ps := sitter.NewParser()
		ps.SetLanguage(php.GetLanguage())
		return ps
	}
	return p
}

// ParseFile parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*ParsedFile, error) {
	lang := DetectLanguage(filePath)
	if lang == LanguageUnknown {
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupportedLanguage)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.ParseContent(ctx, filePath, content, lang)
}

// ParseContent parses source content in the given language
func (p *Parser) ParseContent(ctx context.Context, filePath string, content []byte, lang Language) (*ParsedFile, error) {
	switch lang {
	case LanguagePHP:
		return p.parsePHP(ctx, filePath, content)
	case LanguagePHPAST:
		root, err := syntax.DecodeJSON(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode syntax tree: %w", err)
		}
		return &ParsedFile{Path: filePath, Language: lang, Root: root}, nil
	default:
		return nil, fmt.Errorf("%s: %w", lang, ErrUnsupportedLanguage)
	}
}

func (p *Parser) parsePHP(ctx context.Context, filePath string, content []byte) (*ParsedFile, error) {
	ps := p.pool.Get().(*sitter.Parser)
	defer p.pool.Put(ps)

	tree, err := ps.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	c := &converter{source: content}
	root := c.convert(tree.RootNode())
	if len(c.errorLines) == 0 && tree.RootNode().HasError() {
		// The error sits somewhere without a dedicated node
		c.errorLines = append(c.errorLines, root.Span().StartLine)
	}

	return &ParsedFile{
		Path:       filePath,
		Language:   LanguagePHP,
		Root:       root,
		ErrorLines: c.errorLines,
	}, nil
}

// DetectLanguage detects language from file extension
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".php":
		return LanguagePHP
	case ".json":
		return LanguagePHPAST
	default:
		return LanguageUnknown
	}
}
