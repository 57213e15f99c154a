package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	cr "github.com/gofhir/cqlretrieve"
)

type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// NewBundle creates a store from the entries of a FHIR Bundle.
// Entries without a resource are skipped.
func NewBundle(data []byte) (*Memory, error) {
	resources, err := parseBundle(data)
	if err != nil {
		return nil, err
	}
	return NewMemory(resources...), nil
}

func parseBundle(data []byte) ([]*cr.Resource, error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected a Bundle, got %q", b.ResourceType)
	}

	resources := make([]*cr.Resource, 0, len(b.Entry))
	for i, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		r, err := cr.NewResource(entry.Resource)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// parseFile reads a Bundle or a single resource.
func parseFile(data []byte) ([]*cr.Resource, error) {
	r, err := cr.NewResource(data)
	if err != nil {
		return nil, err
	}
	if r.Type() == "Bundle" {
		return parseBundle(data)
	}
	return []*cr.Resource{r}, nil
}

// LoadFile creates a store from a JSON file holding a Bundle or one resource.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	resources, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemory(resources...), nil
}

// LoadDirectory creates a store from every *.json file below dir, visited
// in lexical order.
func LoadDirectory(dir string) (*Memory, error) {
	m := NewMemory()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		resources, err := parseFile(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m.Add(resources...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
