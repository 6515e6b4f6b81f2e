package report

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// JSONReporter renders the document as indented JSON
type JSONReporter struct{}

func (r *JSONReporter) Name() string          { return "json" }
func (r *JSONReporter) FileExtension() string { return ".json" }

func (r *JSONReporter) Render(doc *Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

// YAMLReporter renders the document as YAML
type YAMLReporter struct{}

func (r *YAMLReporter) Name() string          { return "yaml" }
func (r *YAMLReporter) FileExtension() string { return ".yaml" }

func (r *YAMLReporter) Render(doc *Document) (string, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
