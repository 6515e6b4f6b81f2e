package analyzer

import (
	"regexp"
	"strings"
)

var queryLinePattern = regexp.MustCompile(`(->get\(|->first\(|->count\(|DB::|::where\(|::all\()`)

// LooksLikeQueryLine is a cheap line-level check for editor hovers. It does
// not parse and is not used by the analysis passes.
func LooksLikeQueryLine(text string) bool {
	return queryLinePattern.MatchString(text)
}

// HoverMessage is shown for lines matched by LooksLikeQueryLine
const HoverMessage = "This line looks like a database query. If it runs inside a loop, it may cause N+1 queries. Consider eager loading (`with()`) or batching."

// Hint is a line-level hover message
type Hint struct {
	Line    int    `json:"line" yaml:"line"`
	Message string `json:"message" yaml:"message"`
}

// QueryLineHints returns a hint for every source line that looks like a
// query. Lines are 1-based.
func QueryLineHints(source string) []Hint {
	hints := []Hint{}
	for i, line := range strings.Split(source, "\n") {
		if LooksLikeQueryLine(line) {
			hints = append(hints, Hint{Line: i + 1, Message: HoverMessage})
		}
	}
	return hints
}
