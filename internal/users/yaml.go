package users

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"ratatoskr/pkg/logx"
)

// yamlStore keeps the list in a single users.yaml file. Saves go
// through a temp file + rename so a crash mid-write never leaves a
// truncated list behind.
type yamlStore struct {
	path string
	log  logx.Logger
}

type yamlFile struct {
	Users []Entry `yaml:"users"`
}

func openYAML(path string, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("users: create dir: %w", err)
	}
	return &yamlStore{path: path, log: log}, nil
}

// Load reads the list. A missing file is an empty list, not an error.
func (s *yamlStore) Load(ctx context.Context) ([]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: read %s: %w", s.path, err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("users: parse %s: %w", s.path, err)
	}
	return f.Users, nil
}

func (s *yamlStore) Save(ctx context.Context, entries []Entry) error {
	raw, err := yaml.Marshal(yamlFile{Users: entries})
	if err != nil {
		return fmt.Errorf("users: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("users: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("users: rename %s: %w", tmp, err)
	}
	return nil
}

func (s *yamlStore) Close() error { return nil }
