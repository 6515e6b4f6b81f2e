package parser

import (
	"errors"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// Language identifies a supported input format
type Language string

const (
	// LanguagePHP is PHP source, parsed with tree-sitter
	LanguagePHP Language = "php"
	// LanguagePHPAST is a JSON syntax tree produced by php-parser
	LanguagePHPAST  Language = "php-ast"
	LanguageUnknown Language = "unknown"
)

// ErrUnsupportedLanguage is returned for files that are neither PHP nor a
// php-parser JSON tree
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ParsedFile is a file converted to a syntax tree
type ParsedFile struct {
	Path     string
	Language Language
	Root     syntax.Node
	// ErrorLines lists lines where tree-sitter had to recover from a
	// syntax error. The tree is still usable.
	ErrorLines []int
}

// HasErrors reports whether the source contained syntax errors
func (f *ParsedFile) HasErrors() bool {
	return len(f.ErrorLines) > 0
}
