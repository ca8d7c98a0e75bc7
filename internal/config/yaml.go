package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns the config bytes as JSON so one strict decoder serves
// both formats. Files ending in .yaml or .yml are YAML, as is any other
// file whose first non-blank byte is not '{'.
func toJSON(path string, data []byte) (out []byte, format string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, "json", nil
	case ".yaml", ".yml":
	default:
		if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
			return data, "json", nil
		}
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err = json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("convert yaml: %w", err)
	}
	return out, "yaml", nil
}

// stringKeys rewrites non-string map keys (e.g. numeric topic names) with
// fmt.Sprint so the tree is JSON-encodable.
func stringKeys(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			n[k] = stringKeys(child)
		}
		return n
	case map[any]any:
		m := make(map[string]any, len(n))
		for k, child := range n {
			m[fmt.Sprint(k)] = stringKeys(child)
		}
		return m
	case []any:
		for i, child := range n {
			n[i] = stringKeys(child)
		}
	}
	return v
}
