// Package config loads the stepflow host configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/stepflow/cli/internal/security"
	"github.com/BDNK1/stepflow/runtime"
)

// FileName is looked up in the working directory when no path is given.
const FileName = "stepflow.yaml"

// Load reads path, expands ${VAR} references from the environment and
// decodes the result over the defaults. An empty path falls back to
// FileName in dir; a missing default file yields the defaults alone.
func Load(dir, path string) (*runtime.Config, error) {
	return load(dir, path, os.LookupEnv)
}

func load(dir, path string, lookup LookupFunc) (*runtime.Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}

	raw, err := readRaw(dir, path, explicit)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandTree(raw, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", path, err)
	}

	var cfg runtime.Config
	values, _ := expanded.(map[string]any)
	if err := runtime.InitializeConfig(&cfg, values); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	// A relative local source is resolved against the config file.
	if isLocalPath(cfg.Workflows.Source) && !filepath.IsAbs(cfg.Workflows.Source) {
		cfg.Workflows.Source = filepath.Join(filepath.Dir(path), cfg.Workflows.Source)
	}
	return &cfg, nil
}

func readRaw(dir, path string, explicit bool) (map[string]any, error) {
	if !explicit {
		if err := security.ValidatePathWithinBoundary(dir, path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return raw, nil
}

func isLocalPath(source string) bool {
	return !strings.Contains(source, "://")
}
