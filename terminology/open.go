package terminology

import (
	"fmt"
	"os"

	"github.com/gofhir/cqlretrieve/store"
)

// Open creates a membership service from uri. An empty uri means no
// terminology and returns nil. File URIs and plain paths load a Memory from
// a directory or a single JSON file. Remote terminology servers are not
// supported.
func Open(uri string) (*Memory, *LoadStats, error) {
	if uri == "" {
		return nil, nil, nil
	}
	if !store.IsFileURI(uri) {
		return nil, nil, fmt.Errorf("%w: remote terminology %s", store.ErrUnsupportedSource, uri)
	}

	path := store.FilePath(uri)
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open terminology %s: %w", uri, err)
	}

	mem := NewMemory()
	var stats *LoadStats
	if info.IsDir() {
		stats, err = mem.LoadFromDirectory(path)
	} else {
		stats, err = mem.LoadFromFile(path)
	}
	if err != nil {
		return nil, nil, err
	}
	return mem, stats, nil
}
