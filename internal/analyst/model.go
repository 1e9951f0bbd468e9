package analyst

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type semanticModelDoc struct {
	Name   string `yaml:"name"`
	Tables []struct {
		Name string `yaml:"name"`
	} `yaml:"tables"`
}

// LoadSemanticModel reads a local semantic model so it can be sent inline.
func LoadSemanticModel(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read semantic model %q: %w", path, err)
	}
	if err := ValidateSemanticModel(raw); err != nil {
		return "", fmt.Errorf("semantic model %q: %w", path, err)
	}
	return string(raw), nil
}

func ValidateSemanticModel(raw []byte) error {
	var doc semanticModelDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if strings.TrimSpace(doc.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(doc.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	for i, table := range doc.Tables {
		if strings.TrimSpace(table.Name) == "" {
			return fmt.Errorf("table %d: name is required", i)
		}
	}
	return nil
}
