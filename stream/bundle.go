// Package stream decodes large FHIR Bundles entry by entry and imports them
// into a writable resource store.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	cr "github.com/gofhir/cqlretrieve"
)

// Entry is one decoded bundle entry.
type Entry struct {
	// Index is the position of the entry in the bundle, or -1 for
	// bundle-level errors.
	Index int

	// FullURL is the fullUrl of the entry (if present)
	FullURL string

	// Resource is the entry's resource. Nil for entries without one.
	Resource *cr.Resource

	// Err is set if the entry could not be decoded
	Err error
}

// Decoder reads bundles in a streaming fashion.
type Decoder struct {
	bufferSize int
}

// NewDecoder creates a decoder with a channel buffer of 100 entries.
func NewDecoder() *Decoder {
	return &Decoder{bufferSize: 100}
}

// WithBufferSize sets the channel buffer size.
func (d *Decoder) WithBufferSize(size int) *Decoder {
	if size > 0 {
		d.bufferSize = size
	}
	return d
}

// Entries decodes the bundle from r, emitting entries in bundle order. The
// channel is closed when the bundle ends, on the first structural error, or
// when ctx is canceled.
func (d *Decoder) Entries(ctx context.Context, r io.Reader) <-chan *Entry {
	entries := make(chan *Entry, d.bufferSize)

	go func() {
		defer close(entries)

		decoder := json.NewDecoder(r)

		// Read opening brace
		token, err := decoder.Token()
		if err != nil {
			entries <- &Entry{Index: -1, Err: fmt.Errorf("read bundle: %w", err)}
			return
		}
		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			entries <- &Entry{Index: -1, Err: fmt.Errorf("expected object start, got %v", token)}
			return
		}

		// Process bundle fields until we find "entry"
		for decoder.More() {
			if err := ctx.Err(); err != nil {
				entries <- &Entry{Index: -1, Err: err}
				return
			}

			token, err := decoder.Token()
			if err != nil {
				entries <- &Entry{Index: -1, Err: fmt.Errorf("read field: %w", err)}
				return
			}

			fieldName, ok := token.(string)
			if !ok {
				continue
			}

			if fieldName == "entry" {
				d.readEntries(ctx, decoder, entries)
				return
			}

			// Skip other fields
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				entries <- &Entry{Index: -1, Err: fmt.Errorf("skip field %s: %w", fieldName, err)}
				return
			}
		}

		// No entry field found - empty bundle
	}()

	return entries
}

// rawEntry is the part of a bundle entry that is kept.
type rawEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

func (d *Decoder) readEntries(ctx context.Context, decoder *json.Decoder, entries chan<- *Entry) {
	// Read opening bracket of entry array
	token, err := decoder.Token()
	if err != nil {
		entries <- &Entry{Index: -1, Err: fmt.Errorf("read entry array: %w", err)}
		return
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		entries <- &Entry{Index: -1, Err: fmt.Errorf("expected array start, got %v", token)}
		return
	}

	index := 0
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			entries <- &Entry{Index: index, Err: err}
			return
		}

		var raw rawEntry
		if err := decoder.Decode(&raw); err != nil {
			// The decoder cannot resynchronize after a syntax error.
			entries <- &Entry{Index: index, Err: fmt.Errorf("decode entry %d: %w", index, err)}
			return
		}

		entry := &Entry{Index: index, FullURL: raw.FullURL}
		if len(raw.Resource) > 0 && string(raw.Resource) != "null" {
			entry.Resource, entry.Err = cr.NewResource(raw.Resource)
			if entry.Err != nil {
				entry.Err = fmt.Errorf("entry %d: %w", index, entry.Err)
			}
		}

		select {
		case entries <- entry:
		case <-ctx.Done():
			return
		}
		index++
	}
}

// Putter stores one resource.
type Putter interface {
	Put(ctx context.Context, r *cr.Resource) error
}

// ImportResult aggregates an import.
type ImportResult struct {
	// TotalEntries is the number of entries read
	TotalEntries int

	// Imported is the number of resources written
	Imported int

	// Skipped counts entries without a resource
	Skipped int

	// Errors are decode and write errors, in bundle order
	Errors []error
}

// HasErrors returns true if any entry failed.
func (r *ImportResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary of the import.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Imported %d of %d entries: %d skipped, %d errors",
		r.Imported, r.TotalEntries, r.Skipped, len(r.Errors))
}

// Import streams the bundle from r into w. Entries that fail are recorded
// and the import continues; a canceled ctx stops it.
func (d *Decoder) Import(ctx context.Context, r io.Reader, w Putter) *ImportResult {
	result := &ImportResult{}

	for entry := range d.Entries(ctx, r) {
		if entry.Index >= 0 {
			result.TotalEntries++
		}
		switch {
		case entry.Err != nil:
			result.Errors = append(result.Errors, entry.Err)
		case entry.Resource == nil:
			result.Skipped++
		default:
			if err := w.Put(ctx, entry.Resource); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("entry %d: %w", entry.Index, err))
				continue
			}
			result.Imported++
		}
	}

	return result
}
