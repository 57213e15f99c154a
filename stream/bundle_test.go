package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	cr "github.com/gofhir/cqlretrieve"
)

const testBundle = `{
	"resourceType": "Bundle",
	"type": "collection",
	"meta": {"lastUpdated": "2024-01-01T00:00:00Z"},
	"entry": [
		{
			"fullUrl": "urn:uuid:patient-1",
			"resource": {"resourceType": "Patient", "id": "1", "name": [{"family": "Test"}]}
		},
		{"fullUrl": "urn:uuid:deleted"},
		{
			"fullUrl": "urn:uuid:obs-1",
			"resource": {"resourceType": "Observation", "id": "o1", "subject": {"reference": "Patient/1"}}
		},
		{"resource": {"id": "no-type"}}
	]
}`

func collect(ch <-chan *Entry) []*Entry {
	var out []*Entry
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestDecoder_Entries(t *testing.T) {
	entries := collect(NewDecoder().Entries(context.Background(), strings.NewReader(testBundle)))

	if len(entries) != 4 {
		t.Fatalf("entries = %d; want 4", len(entries))
	}

	tests := []struct {
		fullURL string
		ref     string
		wantErr bool
	}{
		{"urn:uuid:patient-1", "Patient/1", false},
		{"urn:uuid:deleted", "", false},
		{"urn:uuid:obs-1", "Observation/o1", false},
		{"", "", true},
	}
	for i, tt := range tests {
		e := entries[i]
		if e.Index != i {
			t.Errorf("entries[%d].Index = %d", i, e.Index)
		}
		if e.FullURL != tt.fullURL {
			t.Errorf("entries[%d].FullURL = %q; want %q", i, e.FullURL, tt.fullURL)
		}
		if (e.Err != nil) != tt.wantErr {
			t.Errorf("entries[%d].Err = %v; wantErr %v", i, e.Err, tt.wantErr)
		}
		var ref string
		if e.Resource != nil {
			ref = e.Resource.Reference()
		}
		if ref != tt.ref {
			t.Errorf("entries[%d] resource = %q; want %q", i, ref, tt.ref)
		}
	}
}

func TestDecoder_EmptyBundle(t *testing.T) {
	for _, doc := range []string{
		`{"resourceType": "Bundle", "type": "collection"}`,
		`{"resourceType": "Bundle", "entry": []}`,
	} {
		if entries := collect(NewDecoder().Entries(context.Background(), strings.NewReader(doc))); len(entries) != 0 {
			t.Errorf("%s: entries = %d; want 0", doc, len(entries))
		}
	}
}

func TestDecoder_StructuralErrors(t *testing.T) {
	tests := map[string]string{
		"not an object":    `[1, 2]`,
		"empty input":      ``,
		"entry not array":  `{"entry": {"resource": {}}}`,
		"truncated entry":  `{"entry": [{"resource": {"resourceType": "Patient"`,
		"bad field syntax": `{"type": }`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			entries := collect(NewDecoder().Entries(context.Background(), strings.NewReader(doc)))
			if len(entries) == 0 || entries[len(entries)-1].Err == nil {
				t.Errorf("entries = %v; want trailing error", entries)
			}
		})
	}
}

func TestDecoder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := collect(NewDecoder().Entries(ctx, strings.NewReader(testBundle)))
	if len(entries) != 1 || !errors.Is(entries[0].Err, context.Canceled) {
		t.Errorf("entries = %v; want a single cancellation error", entries)
	}
}

func TestDecoder_LargeBundle(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"resourceType": "Bundle", "entry": [`)
	const n = 1000
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"resource": {"resourceType": "Observation", "id": "o%d"}}`, i)
	}
	b.WriteString(`]}`)

	entries := collect(NewDecoder().WithBufferSize(8).Entries(context.Background(), strings.NewReader(b.String())))
	if len(entries) != n {
		t.Fatalf("entries = %d; want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.Resource.ID() != fmt.Sprintf("o%d", i) {
			t.Fatalf("entries[%d] = %s; out of order", i, e.Resource.ID())
		}
	}
}

// recordingPutter is a test implementation of Putter
type recordingPutter struct {
	refs   []string
	failOn string
}

func (p *recordingPutter) Put(ctx context.Context, r *cr.Resource) error {
	if r.ID() == p.failOn {
		return errors.New("constraint violation")
	}
	p.refs = append(p.refs, r.Reference())
	return nil
}

func TestDecoder_Import(t *testing.T) {
	w := &recordingPutter{}
	result := NewDecoder().Import(context.Background(), strings.NewReader(testBundle), w)

	if result.TotalEntries != 4 || result.Imported != 2 || result.Skipped != 1 || len(result.Errors) != 1 {
		t.Errorf("result = %+v", result)
	}
	if !result.HasErrors() {
		t.Error("HasErrors() = false")
	}
	if strings.Join(w.refs, ",") != "Patient/1,Observation/o1" {
		t.Errorf("written = %v", w.refs)
	}
	if got := result.Summary(); got != "Imported 2 of 4 entries: 1 skipped, 1 errors" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestDecoder_ImportWriteError(t *testing.T) {
	w := &recordingPutter{failOn: "1"}
	result := NewDecoder().Import(context.Background(), strings.NewReader(testBundle), w)

	if result.Imported != 1 || len(result.Errors) != 2 {
		t.Errorf("result = %+v", result)
	}
	if len(w.refs) != 1 || w.refs[0] != "Observation/o1" {
		t.Errorf("written = %v", w.refs)
	}
}
