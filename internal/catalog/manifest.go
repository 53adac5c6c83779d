package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ModelEntry describes one servable model: its price and where its file lives.
type ModelEntry struct {
	Name string `yaml:"name"`
	Cost string `yaml:"cost"`
	Type string `yaml:"type"` // decision_tree, forest or baseline
	Path string `yaml:"path"`
}

type Manifest struct {
	Models []ModelEntry `yaml:"models"`
}

// DefaultManifest serves the built-in baseline under the name clients already use.
func DefaultManifest() Manifest {
	return Manifest{Models: []ModelEntry{
		{Name: "GradientBoosting", Cost: "3", Type: "baseline"},
	}}
}

// ManifestFromPath loads path, or returns the default manifest when path is empty.
func ManifestFromPath(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	return LoadManifest(path)
}

// LoadManifest parses a YAML manifest. Relative model paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("catalog: parse manifest: %w", err)
	}
	if len(m.Models) == 0 {
		return Manifest{}, fmt.Errorf("catalog: manifest %s lists no models", path)
	}

	dir := filepath.Dir(path)
	seen := make(map[string]bool)
	for i, entry := range m.Models {
		if entry.Name == "" {
			return Manifest{}, fmt.Errorf("catalog: manifest entry %d has no name", i)
		}
		if seen[entry.Name] {
			return Manifest{}, fmt.Errorf("catalog: duplicate model %q in manifest", entry.Name)
		}
		seen[entry.Name] = true
		if _, err := entry.price(); err != nil {
			return Manifest{}, err
		}
		if entry.Path != "" && !filepath.IsAbs(entry.Path) {
			m.Models[i].Path = filepath.Join(dir, entry.Path)
		}
	}
	return m, nil
}

func (s ModelEntry) price() (decimal.Decimal, error) {
	if s.Cost == "" {
		return decimal.Zero, nil
	}
	cost, err := decimal.NewFromString(s.Cost)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: model %q has invalid cost %q: %w", s.Name, s.Cost, err)
	}
	if cost.IsNegative() {
		return decimal.Zero, fmt.Errorf("catalog: model %q has negative cost", s.Name)
	}
	if !models.ValidAmount(cost) {
		return decimal.Zero, fmt.Errorf("catalog: model %q cost %s cannot be stored exactly (at most %d decimal places)", s.Name, s.Cost, models.MoneyScale)
	}
	return cost, nil
}
