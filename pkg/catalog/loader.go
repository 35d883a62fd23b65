package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML catalog file and returns the provider data.
func LoadFile(path string) (*ProviderFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	pf, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return pf, nil
}

// ParseFile parses YAML catalog data from raw bytes.
func ParseFile(data []byte) (*ProviderFile, error) {
	var pf ProviderFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse catalog data: %w", err)
	}

	pf.Provider = strings.ToLower(strings.TrimSpace(pf.Provider))
	if pf.Provider == "" {
		return nil, errors.New("missing provider name")
	}
	if len(pf.Models) == 0 {
		return nil, errors.New("no models defined")
	}
	return &pf, nil
}

// LoadDir loads every *.yaml and *.yml file in dir. Files that fail to parse
// and entries that fail validation are logged and skipped.
func LoadDir(dir string, logger *slog.Logger) (*Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
	}

	var files []*ProviderFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		pf, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warn("skipping catalog file", "file", e.Name(), "error", err)
			continue
		}
		files = append(files, pf)
	}

	return Build(files, logger), nil
}

// Build validates provider files into a snapshot. Invalid models are
// quarantined: logged and left out of the snapshot.
func Build(files []*ProviderFile, logger *slog.Logger) *Snapshot {
	snap := newSnapshot()

	for _, pf := range files {
		for _, entry := range pf.Models {
			m, err := toModel(pf, entry)
			if err != nil {
				logger.Warn("quarantined catalog entry",
					"provider", pf.Provider,
					"model", entry.Model,
					"error", err,
				)
				continue
			}
			if err := snap.add(m); err != nil {
				logger.Warn("quarantined catalog entry",
					"provider", pf.Provider,
					"model", entry.Model,
					"error", err,
				)
			}
		}
	}

	sort.Slice(snap.models, func(i, j int) bool {
		if snap.models[i].Provider != snap.models[j].Provider {
			return snap.models[i].Provider < snap.models[j].Provider
		}
		return snap.models[i].ID < snap.models[j].ID
	})
	return snap
}

func toModel(pf *ProviderFile, e ModelEntry) (*Model, error) {
	id := strings.TrimSpace(e.Model)
	if id == "" {
		return nil, errors.New("missing model id")
	}

	category, err := ParseCategory(e.Category)
	if err != nil {
		return nil, err
	}

	if e.ContextWindow <= 0 {
		return nil, fmt.Errorf("context_window must be positive, got %d", e.ContextWindow)
	}
	if e.MaxOutputTokens < 0 {
		return nil, fmt.Errorf("max_output_tokens must not be negative, got %d", e.MaxOutputTokens)
	}
	if e.InputPerMillion < 0 || e.OutputPerMillion < 0 || e.FixedCost < 0 {
		return nil, errors.New("pricing must not be negative")
	}
	if e.FixedCost > 0 && (e.InputPerMillion > 0 || e.OutputPerMillion > 0) {
		return nil, errors.New("pricing must be either token based or fixed, not both")
	}
	if len(e.Capabilities) == 0 {
		return nil, errors.New("no capabilities listed")
	}

	caps := make(map[Capability]bool, len(e.Capabilities))
	for _, raw := range e.Capabilities {
		c, err := ParseCapability(raw)
		if err != nil {
			return nil, err
		}
		caps[c] = true
	}

	latency := e.LatencyMS
	if latency == 0 {
		latency = pf.LatencyMS
	}

	return &Model{
		Provider:        pf.Provider,
		ID:              id,
		Category:        category,
		QualityTier:     e.QualityTier,
		ContextWindow:   e.ContextWindow,
		MaxOutputTokens: e.MaxOutputTokens,
		Capabilities:    caps,
		LatencyMS:       latency,
		Pricing: Pricing{
			InputPerMillion:  e.InputPerMillion,
			OutputPerMillion: e.OutputPerMillion,
			FixedCost:        e.FixedCost,
		},
		Free:    e.Free,
		Aliases: e.Aliases,
	}, nil
}
