package terminology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofhir/fhir/r4"
)

// LoadStats counts the resources read by a loader.
type LoadStats struct {
	CodeSystemsLoaded int
	ValueSetsLoaded   int
	Errors            int
}

func (s *LoadStats) add(o LoadStats) {
	s.CodeSystemsLoaded += o.CodeSystemsLoaded
	s.ValueSetsLoaded += o.ValueSetsLoaded
	s.Errors += o.Errors
}

// LoadFromJSON loads a CodeSystem, a ValueSet or a Bundle of them.
// Code systems in a bundle are loaded before its value sets.
func (m *Memory) LoadFromJSON(data []byte) (*LoadStats, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	stats := &LoadStats{}
	switch probe.ResourceType {
	case "Bundle":
		codeSystems, valueSets, err := splitBundle(data)
		if err != nil {
			return nil, err
		}
		stats.add(m.loadAll(codeSystems, valueSets))

	case "CodeSystem", "ValueSet":
		if err := m.loadResource(probe.ResourceType, data); err != nil {
			return nil, err
		}
		stats.add(countOf(probe.ResourceType))

	default:
		return nil, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}

	return stats, nil
}

// LoadFromFile loads one JSON file.
func (m *Memory) LoadFromFile(path string) (*LoadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	stats, err := m.LoadFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stats, nil
}

// LoadFromDirectory loads every *.json file in dirPath. Code systems from
// all files are loaded before any value set so that compose filters can be
// resolved. Files that cannot be parsed are counted in Errors and skipped.
func (m *Memory) LoadFromDirectory(dirPath string) (*LoadStats, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dirPath)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	stats := &LoadStats{}
	var codeSystems, valueSets []json.RawMessage

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		// Package metadata
		if name == "package.json" || name == ".index.json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			stats.Errors++
			continue
		}

		cs, vs, err := classifyFile(data)
		if err != nil {
			stats.Errors++
			continue
		}
		codeSystems = append(codeSystems, cs...)
		valueSets = append(valueSets, vs...)
	}

	stats.add(m.loadAll(codeSystems, valueSets))
	return stats, nil
}

func (m *Memory) loadAll(codeSystems, valueSets []json.RawMessage) LoadStats {
	var stats LoadStats
	for _, raw := range codeSystems {
		if err := m.loadResource("CodeSystem", raw); err != nil {
			stats.Errors++
			continue
		}
		stats.CodeSystemsLoaded++
	}
	for _, raw := range valueSets {
		if err := m.loadResource("ValueSet", raw); err != nil {
			stats.Errors++
			continue
		}
		stats.ValueSetsLoaded++
	}
	return stats
}

func (m *Memory) loadResource(resourceType string, data []byte) error {
	switch resourceType {
	case "CodeSystem":
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("failed to parse CodeSystem: %w", err)
		}
		return m.LoadCodeSystem(&cs)
	case "ValueSet":
		var vs r4.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("failed to parse ValueSet: %w", err)
		}
		return m.LoadValueSet(&vs)
	}
	return nil
}

func countOf(resourceType string) LoadStats {
	if resourceType == "CodeSystem" {
		return LoadStats{CodeSystemsLoaded: 1}
	}
	return LoadStats{ValueSetsLoaded: 1}
}

// bundle is the minimal Bundle shape needed for loading.
type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// splitBundle returns the CodeSystem and ValueSet entries of a Bundle.
func splitBundle(data []byte) (codeSystems, valueSets []json.RawMessage, err error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, nil, fmt.Errorf("invalid bundle: %w", err)
	}
	for _, entry := range b.Entry {
		switch resourceTypeOf(entry.Resource) {
		case "CodeSystem":
			codeSystems = append(codeSystems, entry.Resource)
		case "ValueSet":
			valueSets = append(valueSets, entry.Resource)
		}
	}
	return codeSystems, valueSets, nil
}

// classifyFile sorts the terminology resources of a single file.
func classifyFile(data []byte) (codeSystems, valueSets []json.RawMessage, err error) {
	switch resourceTypeOf(data) {
	case "Bundle":
		return splitBundle(data)
	case "CodeSystem":
		return []json.RawMessage{data}, nil, nil
	case "ValueSet":
		return nil, []json.RawMessage{data}, nil
	case "":
		return nil, nil, fmt.Errorf("not a FHIR resource")
	}
	// Other resource types are ignored.
	return nil, nil, nil
}

func resourceTypeOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ResourceType
}
