package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/parser"
	"github.com/QTest-hq/queryscope/pkg/syntax"
)

func methodsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "methods <file>",
		Short: "List the methods found in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseTree(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printMethods(cmd.OutOrStdout(), analyzer.ExtractMethods(root), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

type methodLine struct {
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func printMethods(w io.Writer, methods []analyzer.MethodRecord, asJSON bool) error {
	if asJSON {
		out := make([]methodLine, 0, len(methods))
		for _, m := range methods {
			out = append(out, methodLine{Name: m.Name, StartLine: m.StartLine, EndLine: m.EndLine})
		}
		return writeJSON(w, out)
	}

	if len(methods) == 0 {
		fmt.Fprintln(w, "no methods")
		return nil
	}
	for i, m := range methods {
		fmt.Fprintf(w, "%d. %s [lines %s]\n", i+1, m.Name, lineRange(m.StartLine, m.EndLine))
	}
	return nil
}

func diagnosticsCmd() *cobra.Command {
	var (
		asJSON     bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "diagnostics <file>",
		Short: "Print possible N+1 queries as flat warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject(".", configPath)
			if err != nil {
				return err
			}
			root, err := parseTree(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			a := analyzer.New(analyzer.Options{Heuristics: project.BuildHeuristics()})
			var diags []analyzer.Diagnostic
			for _, m := range analyzer.ExtractMethods(root) {
				diags = append(diags, a.FindQueriesInsideLoops(m.Node)...)
			}
			sort.SliceStable(diags, func(i, j int) bool { return diags[i].Line < diags[j].Line })

			return printDiagnostics(cmd.OutOrStdout(), args[0], diags, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project config file (default: ./.queryscope.yaml)")

	return cmd
}

func printDiagnostics(w io.Writer, path string, diags []analyzer.Diagnostic, asJSON bool) error {
	if asJSON {
		if diags == nil {
			diags = []analyzer.Diagnostic{}
		}
		return writeJSON(w, diags)
	}
	for _, d := range diags {
		fmt.Fprintf(w, "%s:%d: warning: %s\n", path, d.Line, d.Message)
	}
	return nil
}

func astCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "ast <file>",
		Short: "Dump the syntax tree the analyzer sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseTree(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dumpTree(cmd.OutOrStdout(), root, depth)
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Maximum depth to print (0 prints everything)")

	return cmd
}

// dumpTree prints one node per line, indented by nesting, with the field
// each child came from
func dumpTree(w io.Writer, root syntax.Node, maxDepth int) {
	var dump func(n syntax.Node, field string, level int)
	dump = func(n syntax.Node, field string, level int) {
		if syntax.IsNil(n) || (maxDepth > 0 && level >= maxDepth) {
			return
		}

		var b strings.Builder
		b.WriteString(strings.Repeat("  ", level))
		if field != "" {
			b.WriteString(field)
			b.WriteString(": ")
		}
		b.WriteString(string(n.Kind()))
		if name, ok := syntax.ResolveName(n); ok {
			fmt.Fprintf(&b, " %q", name)
		}
		if s, ok := n.(*syntax.String); ok {
			fmt.Fprintf(&b, " %q", s.Value)
		}
		if span := n.Span(); span.Known() {
			fmt.Fprintf(&b, " [%s]", lineRange(span.StartLine, span.EndLine))
		}
		fmt.Fprintln(w, b.String())

		for _, f := range n.Children() {
			label := f.Name
			if f.Scoped {
				label += " (loop body)"
			}
			for _, child := range f.Nodes {
				dump(child, label, level+1)
			}
		}
	}
	dump(root, "", 0)
}

// parseTree parses a PHP file or a php-parser JSON AST
func parseTree(ctx context.Context, path string) (syntax.Node, error) {
	parsed, err := parser.NewParser().ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return parsed.Root, nil
}

func lineRange(start, end int) string {
	if start <= 0 {
		return "?"
	}
	if end <= start {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
