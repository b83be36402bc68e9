package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// ManifestFile is the optional rarity override file in the layer root:
//
//	Background:
//	  Sunset: 3
//	  Night: 1
const ManifestFile = "rarity.yaml"

type manifest map[string]map[string]float64

func loadManifest(root string) (manifest, error) {
	b, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, &model.ValidationError{Field: ManifestFile, Message: err.Error()}
	}
	return m, nil
}

func (m manifest) apply(layer *model.Layer) error {
	weights, ok := m[layer.Name]
	if !ok {
		return nil
	}
	for i := range layer.Traits {
		w, ok := weights[layer.Traits[i].Name]
		if !ok {
			continue
		}
		if w <= 0 {
			return &model.ValidationError{
				Field:   ManifestFile,
				Message: fmt.Sprintf("rarity of %s/%s must be positive, got %v", layer.Name, layer.Traits[i].Name, w),
			}
		}
		layer.Traits[i].Rarity = w
	}
	return nil
}
