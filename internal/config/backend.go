package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigBackend abstracts config storage so tests can substitute an
// in-memory implementation.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// fileBackend stores config as a flat JSON object at
// $XDG_CONFIG_HOME/pdeck/config.json (falling back to ~/.config).
type fileBackend struct {
	path string
}

func newFileBackend() *fileBackend {
	return &fileBackend{path: configFilePath()}
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "pdeck", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("pdeck", "config.json")
	}
	return filepath.Join(home, ".config", "pdeck", "config.json")
}

func (b *fileBackend) load() (map[string]any, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	values := map[string]any{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.path, err)
	}
	return values, nil
}

func (b *fileBackend) save(values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, append(data, '\n'), 0o644)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	values, err := b.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("config key %s is not a string", key)
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	values, err := b.load()
	if err != nil {
		return 0, false, err
	}
	v, ok := values[key]
	if !ok {
		return 0, false, nil
	}
	// JSON numbers decode as float64.
	f, ok := v.(float64)
	if !ok {
		return 0, false, fmt.Errorf("config key %s is not a number", key)
	}
	return int(f), true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	values, err := b.load()
	if err != nil {
		return err
	}
	values[key] = val
	return b.save(values)
}

func (b *fileBackend) SetInt(key string, val int) error {
	values, err := b.load()
	if err != nil {
		return err
	}
	values[key] = val
	return b.save(values)
}

func (b *fileBackend) Delete(key string) error {
	values, err := b.load()
	if err != nil {
		return err
	}
	delete(values, key)
	return b.save(values)
}
