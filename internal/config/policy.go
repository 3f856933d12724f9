package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/selector"
)

// PolicyOptions builds the selection options from the policy section, the
// resolution and genre files it points at, and any extra required genres (the
// repeated --genre flag). Missing or malformed files fall back to the
// permissive defaults with a warning.
func (p PolicyConfig) PolicyOptions(ctx context.Context, extraRequired []string) selector.PolicyOptions {
	logger := core.LoggerFromContext(ctx)

	resolutions, err := loadResolutions(p.ResolutionFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("resolution config not found; using defaults", "path", p.ResolutionFile)
	case err != nil:
		logger.Warn("could not load resolution config; using defaults", "path", p.ResolutionFile, "error", err)
	}

	blocked, err := loadBlockedGenres(p.GenreFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("genre config not found; all genres allowed", "path", p.GenreFile)
	case err != nil:
		logger.Warn("could not load genre config; all genres allowed", "path", p.GenreFile, "error", err)
	}

	required := append(append([]string{}, p.RequiredGenres...), extraRequired...)
	return selector.PolicyOptions{
		Priority:       p.ResolutionPriority(),
		Resolutions:    resolutions,
		RequiredGenres: required,
		BlockedGenres:  blocked,
		SkipRule:       p.SkipRule,
	}
}

// loadResolutions reads `resolutions: {XXLG: {allow: true}, ...}`. Classes the
// file does not mention, or mentions without a mapping, are enabled. A nil
// map means the defaults apply.
func loadResolutions(path string) (map[core.ResolutionClass]bool, error) {
	var doc struct {
		Resolutions map[string]interface{} `yaml:"resolutions"`
	}
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}
	if doc.Resolutions == nil {
		return nil, fmt.Errorf("missing resolutions section")
	}
	out := map[core.ResolutionClass]bool{}
	for name, settings := range doc.Resolutions {
		class, ok := core.ParseResolutionClass(name)
		if !ok {
			continue
		}
		out[class] = allowed(settings)
	}
	return out, nil
}

// loadBlockedGenres reads `genres: {Horror: {allow: false}}` and returns the
// genres marked allow: false.
func loadBlockedGenres(path string) ([]string, error) {
	var doc struct {
		Genres map[string]interface{} `yaml:"genres"`
	}
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}
	var blocked []string
	for genre, settings := range doc.Genres {
		if !allowed(settings) {
			blocked = append(blocked, genre)
		}
	}
	sort.Strings(blocked)
	return blocked, nil
}

func allowed(settings interface{}) bool {
	m, ok := settings.(map[string]interface{})
	if !ok {
		return true
	}
	allow, ok := m["allow"].(bool)
	return !ok || allow
}

func readYAML(path string, out interface{}) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fs.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
