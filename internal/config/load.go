package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Load reads, decodes, defaults and validates the file at path.
// A missing telegram token is taken from TELEGRAM_BOT_TOKEN.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML or JSON bytes strictly: unknown fields and
// trailing content are errors. Defaults are not applied.
func Parse(raw []byte) (*Config, error) {
	jsonBytes, err := coerceToJSONBytes(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing content")
	}
	return &cfg, nil
}

// coerceToJSONBytes turns YAML input into JSON so a single strict
// decoder handles both formats. JSON input passes through untouched
// (JSON is a YAML subset, but the round trip would lose number
// precision on large ids).
func coerceToJSONBytes(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []byte("{}"), nil
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}

	var node any
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	node = normalizeYAML(node)
	out, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// normalizeYAML rewrites map[any]any trees (legacy YAML decoders) into
// map[string]any so json.Marshal accepts them.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
