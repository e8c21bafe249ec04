// Package collection keeps the catalog of product collections the scheduler refreshes.
//
// A collection is an opaque ID plus the product keys shown together in one
// widget. The catalog is loaded from a source at start and reloaded in the
// background; readers always see the last successfully loaded version.
package collection

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"
)

// Collection is a named set of product keys
type Collection struct {
	ID   string   `yaml:"id" json:"id"`
	Keys []string `yaml:"keys" json:"keys"`
}

// LoadFunc returns the current collections
// The context should be respected for cancellation and timeout
type LoadFunc func(ctx context.Context) ([]Collection, error)

type fileDocument struct {
	Collections []Collection `yaml:"collections"`
}

// FileSource loads collections from a YAML file of the form
//
//	collections:
//	  - id: yoga-mats
//	    keys: [B000001, B000002]
func FileSource(path string) LoadFunc {
	return func(ctx context.Context) ([]Collection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ErrRead(path, err)
		}
		var doc fileDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, ErrParse(path, err)
		}
		return doc.Collections, nil
	}
}

// Static returns a source that always yields collections
func Static(collections ...Collection) LoadFunc {
	return func(context.Context) ([]Collection, error) {
		return collections, nil
	}
}

func validate(collections []Collection) error {
	seen := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if c.ID == "" {
			return ErrInvalidCollection("", "empty id")
		}
		if _, ok := seen[c.ID]; ok {
			return ErrInvalidCollection(c.ID, "duplicate id")
		}
		seen[c.ID] = struct{}{}
		if len(c.Keys) == 0 {
			return ErrInvalidCollection(c.ID, "no keys")
		}
		for _, key := range c.Keys {
			if key == "" {
				return ErrInvalidCollection(c.ID, "empty key")
			}
		}
	}
	return nil
}
