// Package catalog describes the levels a session progresses through.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cyberquest/core"
)

// Default returns the four missions of the built-in game.
func Default() []core.LevelSpec {
	return []core.LevelSpec{
		{ID: 1, Key: "Level1Scene", Title: "Misi Detektif Hoaks"},
		{ID: 2, Key: "Level2Scene", Title: "Benteng Sandi"},
		{ID: 3, Key: "Level3Scene", Title: "Jejak Digital"},
		{ID: 4, Key: "Level4Scene", Title: "Kampanye Positif"},
	}
}

type file struct {
	Levels []core.LevelSpec `yaml:"levels"`
}

// Load reads a YAML catalog of the form `levels: [{id, key, title}]`.
func Load(path string) ([]core.LevelSpec, error) {
	b, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog.
func Parse(b []byte) ([]core.LevelSpec, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return Validate(f.Levels)
}

// Validate returns the levels sorted by id. Ids must be dense 1..N and keys unique.
func Validate(levels []core.LevelSpec) ([]core.LevelSpec, error) {
	if len(levels) == 0 {
		return nil, errors.New("catalog has no levels")
	}
	out := append([]core.LevelSpec(nil), levels...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	var errs []string
	keys := make(map[string]struct{}, len(out))
	for i, l := range out {
		if want := core.LevelID(i + 1); l.ID != want {
			errs = append(errs, fmt.Sprintf("level ids must be 1..%d without gaps, found %d at position %d", len(out), l.ID, want))
			break
		}
		key := strings.TrimSpace(l.Key)
		if key == "" {
			errs = append(errs, fmt.Sprintf("level %d has an empty key", l.ID))
			continue
		}
		if _, dup := keys[key]; dup {
			errs = append(errs, fmt.Sprintf("duplicate level key %q", key))
		}
		keys[key] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return out, nil
}
