package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

type catalogFile struct {
	Skus map[string][]string `yaml:"skus"`
}

// LoadFileResolver reads a YAML catalog of the form:
//
//	skus:
//	  SKU001:
//	    - https://cdn.example.com/sku001/front.jpg
//	  SKU003: []
func LoadFileResolver(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewSetupError(fmt.Sprintf("cannot read catalog file %s", path), err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewSetupError(fmt.Sprintf("cannot parse catalog file %s", path), err)
	}
	if file.Skus == nil {
		return nil, apperrors.NewSetupError(fmt.Sprintf("catalog file %s has no skus section", path), nil)
	}

	return NewStaticResolver(file.Skus), nil
}
