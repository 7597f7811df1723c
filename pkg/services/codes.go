package services

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed codes.yaml
var codesYAML []byte

// CodeMap is one explicit code lookup table with a declared default. An empty
// default means unrecognized codes map to null rather than a substitute value.
type CodeMap struct {
	Default string            `yaml:"default"`
	Values  map[string]string `yaml:"values"`
}

// Lookup resolves a source code. known is false when the code is not in the
// table; the returned value is then the declared default (nil when the
// default is empty).
func (m CodeMap) Lookup(code string) (value *string, known bool) {
	if v, ok := m.Values[code]; ok {
		return &v, true
	}
	if m.Default == "" {
		return nil, false
	}
	d := m.Default
	return &d, false
}

// CodeMaps holds every lookup table keyed by attribute name.
type CodeMaps map[string]CodeMap

// LoadCodeMaps parses the embedded lookup tables. Called once at service
// construction; a malformed table is a programming error, not a data error.
func LoadCodeMaps() (CodeMaps, error) {
	maps := make(CodeMaps)
	if err := yaml.Unmarshal(codesYAML, &maps); err != nil {
		return nil, fmt.Errorf("parse embedded code maps: %w", err)
	}
	return maps, nil
}
