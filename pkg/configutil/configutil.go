// Package configutil reads JSON5 configuration files with optional local
// overrides.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// localName turns "dir/harvest.json5" into "dir/harvest.local.json5".
func localName(name string) string {
	dir, base := filepath.Dir(name), filepath.Base(name)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s.local%s", strings.TrimSuffix(base, ext), ext))
}

// ReadConfig reads name and merges <name>.local.<ext> over it, the local
// file winning field by field. It returns os.ErrNotExist when neither file
// exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	base, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(base) > 0 {
		if err := json5.Unmarshal(base, &out); err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		found = true
	}

	local := localName(name)
	override, err := os.ReadFile(local)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(override) > 0 {
		var o T
		if err := json5.Unmarshal(override, &o); err != nil {
			return out, fmt.Errorf("parse %s: %w", local, err)
		}
		if err := mergo.Merge(&out, o, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", local)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// WithDefaults fills every zero field of cfg from defaults.
func WithDefaults[T any](cfg T, defaults T) (T, error) {
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return cfg, err
	}
	return cfg, nil
}
