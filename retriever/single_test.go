package retriever

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	cr "github.com/gofhir/cqlretrieve"
	"github.com/gofhir/cqlretrieve/evaluator"
)

const loinc = "http://loinc.org"

func observation(t *testing.T, id, subject, system, code string) *cr.Resource {
	t.Helper()
	raw := `{"resourceType":"Observation","id":"` + id + `","status":"final"`
	if subject != "" {
		raw += `,"subject":{"reference":"` + subject + `"}`
	}
	if code != "" {
		raw += `,"code":{"coding":[{"system":"` + system + `","code":"` + code + `"}]}`
	}
	return mustResource(t, raw+"}")
}

func newSource(t *testing.T, store cr.ResourceStore, opts ...cr.Option) *SingleSource {
	t.Helper()
	s, err := NewSingleSource(store, evaluator.New(), opts...)
	if err != nil {
		t.Fatalf("NewSingleSource() error = %v", err)
	}
	return s
}

func TestNewSingleSource_Validation(t *testing.T) {
	if _, err := NewSingleSource(nil, evaluator.New()); !errors.Is(err, cr.ErrValidation) {
		t.Errorf("nil store: err = %v; want ErrValidation", err)
	}
	if _, err := NewSingleSource(&mockStore{}, nil); !errors.Is(err, cr.ErrValidation) {
		t.Errorf("nil evaluator: err = %v; want ErrValidation", err)
	}

	s, err := NewSingleSource(&mockStore{}, evaluator.New(), cr.WithName("bundle"))
	if err != nil {
		t.Fatalf("NewSingleSource() error = %v", err)
	}
	if s.Name() != "bundle" {
		t.Errorf("Name() = %q; want bundle", s.Name())
	}
}

func TestSingleSource_ObservationBySubject(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1234-5"),
		observation(t, "o2", "Patient/456", loinc, "1234-5"),
		observation(t, "o3", "", loinc, "1234-5"),
		patient(t, "123"),
	}}
	s := newSource(t, store)

	got, err := s.Retrieve(context.Background(), cr.Query{
		Context:      "Patient",
		ContextPath:  "subject",
		ContextValue: "123",
		DataType:     "Observation",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	assertIDs(t, got, "o1")
}

func TestSingleSource_LOINCCode(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1234-5"),
		observation(t, "o2", "Patient/123", loinc, "9999-9"),
		observation(t, "o3", "Patient/123", "http://snomed.info/sct", "1234-5"),
		observation(t, "o4", "Patient/123", "", ""),
	}}
	s := newSource(t, store)

	tests := []struct {
		name  string
		codes []cr.Code
		want  []string
	}{
		{"matching system and code", []cr.Code{{System: loinc, Code: "1234-5"}}, []string{"o1"}},
		{"several codes", []cr.Code{{System: loinc, Code: "1234-5"}, {System: loinc, Code: "9999-9"}}, []string{"o1", "o2"}},
		{"code without system matches nothing", []cr.Code{{Code: "1234-5"}}, nil},
		{"present empty list", []cr.Code{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Retrieve(context.Background(), cr.Query{
				DataType: "Observation",
				CodePath: "code",
				Codes:    tt.codes,
			})
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if got == nil {
				t.Fatal("Retrieve() returned nil result")
			}
			assertIDs(t, got, tt.want...)
		})
	}
}

func TestSingleSource_ContextNoOp(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1"),
		observation(t, "o2", "Patient/456", loinc, "2"),
	}}
	s := newSource(t, store)

	queries := map[string]cr.Query{
		"no context":       {ContextPath: "subject", ContextValue: "123", DataType: "Observation"},
		"no context path":  {Context: "Patient", ContextValue: "123", DataType: "Observation"},
		"no context value": {Context: "Patient", ContextPath: "subject", DataType: "Observation"},
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			got, err := s.Retrieve(context.Background(), q)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			assertIDs(t, got, "o1", "o2")
		})
	}
}

func TestSingleSource_TerminologyNoOp(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "", loinc, "1"),
		observation(t, "o2", "", loinc, "2"),
	}}
	s := newSource(t, store)

	queries := map[string]cr.Query{
		"no codes or value set":  {DataType: "Observation", CodePath: "code"},
		"no code path":           {DataType: "Observation", Codes: []cr.Code{{System: loinc, Code: "1"}}},
		"value set without path": {DataType: "Observation", ValueSet: "http://example.org/vs"},
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			got, err := s.Retrieve(context.Background(), q)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			assertIDs(t, got, "o1", "o2")
		})
	}
}

func TestSingleSource_EmptyStore(t *testing.T) {
	s := newSource(t, &mockStore{})
	got, err := s.Retrieve(context.Background(), cr.Query{DataType: "Condition"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Retrieve() = %v; want empty non-nil", got)
	}
}

func TestSingleSource_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	s := newSource(t, &mockStore{err: storeErr})

	_, err := s.Retrieve(context.Background(), cr.Query{DataType: "Observation"})
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v; want wrapped store error", err)
	}
}

func TestSingleSource_PathError(t *testing.T) {
	pathErr := errors.New("bad path")
	store := &mockStore{resources: []*cr.Resource{patient(t, "1")}}
	s, err := NewSingleSource(store, &mockEvaluator{err: pathErr})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Retrieve(context.Background(), cr.Query{
		Context: "Patient", ContextPath: "id", ContextValue: "1", DataType: "Patient",
	})
	if !errors.Is(err, pathErr) {
		t.Errorf("err = %v; want wrapped path error", err)
	}
}

func TestSingleSource_ValueSet(t *testing.T) {
	const vs = "http://example.org/ValueSet/glucose"
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "", loinc, "1234-5"),
		observation(t, "o2", "", loinc, "9999-9"),
	}}
	q := cr.Query{DataType: "Observation", CodePath: "code", ValueSet: vs}

	t.Run("members kept", func(t *testing.T) {
		membership := &mockMembership{members: map[string]bool{vs + "|" + loinc + "|1234-5": true}}
		s := newSource(t, store, cr.WithTerminology(membership))

		got, err := s.Retrieve(context.Background(), q)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		assertIDs(t, got, "o1")
		if membership.calls != 2 {
			t.Errorf("membership calls = %d; want 2", membership.calls)
		}
	})

	t.Run("code match skips membership", func(t *testing.T) {
		membership := &mockMembership{}
		s := newSource(t, store, cr.WithTerminology(membership))

		withCodes := q
		withCodes.Codes = []cr.Code{{System: loinc, Code: "1234-5"}}
		got, err := s.Retrieve(context.Background(), withCodes)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		assertIDs(t, got, "o1")
		if membership.calls != 1 {
			t.Errorf("membership calls = %d; want 1 (only for o2)", membership.calls)
		}
	})

	t.Run("no terminology configured", func(t *testing.T) {
		s := newSource(t, store)
		if _, err := s.Retrieve(context.Background(), q); !errors.Is(err, cr.ErrConfiguration) {
			t.Errorf("err = %v; want ErrConfiguration", err)
		}
	})

	t.Run("membership failure is fatal", func(t *testing.T) {
		lookupErr := errors.New("value set not loaded")
		s := newSource(t, store, cr.WithTerminology(&mockMembership{err: lookupErr}))
		if _, err := s.Retrieve(context.Background(), q); !errors.Is(err, lookupErr) {
			t.Errorf("err = %v; want wrapped membership error", err)
		}
	})
}

func TestSingleSource_LiteralIDWorkaround(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		patient(t, "123"),
		patient(t, "456"),
	}}
	s := newSource(t, store)

	tests := []struct {
		name  string
		codes []cr.Code
		want  []string
	}{
		{"literal id", []cr.Code{cr.Literal("123")}, []string{"123"}},
		{"two literal ids", []cr.Code{cr.Literal("456"), cr.Literal("123")}, []string{"123", "456"}},
		{"coded value ignored", []cr.Code{{System: loinc, Code: "123"}}, nil},
		{"empty list", []cr.Code{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Retrieve(context.Background(), cr.Query{DataType: "Patient", CodePath: "id", Codes: tt.codes})
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			assertIDs(t, got, tt.want...)
		})
	}
}

func TestSingleSource_LiteralStripsTypePrefix(t *testing.T) {
	p := patient(t, "p1")
	eval := &mockEvaluator{values: map[string][]cr.Value{
		"p1:link": {{Kind: cr.KindPrimitive, Raw: "Patient/123"}},
	}}
	s, err := NewSingleSource(&mockStore{resources: []*cr.Resource{p}}, eval)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Retrieve(context.Background(), cr.Query{
		DataType: "Patient", CodePath: "link", Codes: []cr.Code{cr.Literal("123")},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	assertIDs(t, got, "p1")
}

func TestSingleSource_ContextByID(t *testing.T) {
	p1 := patient(t, "123")
	p2 := patient(t, "456")
	p3 := patient(t, "789")
	eval := &mockEvaluator{values: map[string][]cr.Value{
		"123:id": {{Kind: cr.KindID, Raw: "123"}},
		"456:id": {{Kind: cr.KindID, Raw: "Patient/456"}},
		"789:id": {{Kind: cr.KindID, Raw: ""}},
	}}
	s, err := NewSingleSource(&mockStore{resources: []*cr.Resource{p1, p2, p3}}, eval)
	if err != nil {
		t.Fatal(err)
	}

	for _, value := range []string{"123", "456"} {
		got, err := s.Retrieve(context.Background(), cr.Query{
			Context: "Patient", ContextPath: "id", ContextValue: value, DataType: "Patient",
		})
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		assertIDs(t, got, value)
	}
}

func TestSingleSource_ContextFallsBackToReference(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		mustResource(t, `{"resourceType":"Linkage","id":"l1","reference":"Patient/123"}`),
		mustResource(t, `{"resourceType":"Linkage","id":"l2","reference":"Patient/456"}`),
		mustResource(t, `{"resourceType":"Linkage","id":"l3","patient":"123"}`),
		mustResource(t, `{"resourceType":"Linkage","id":"l4","reference":"123"}`),
	}}
	s := newSource(t, store)

	got, err := s.Retrieve(context.Background(), cr.Query{
		Context: "Patient", ContextPath: "patient", ContextValue: "123", DataType: "Linkage",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	assertIDs(t, got, "l1", "l4")
}

func TestSingleSource_ContextStringValueIsNotReference(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		mustResource(t, `{"resourceType":"Observation","id":"o3","subject":{"reference":"Patient/456"},`+
			`"valueString":"{\"reference\":\"Patient/123\"}"}`),
	}}
	s := newSource(t, store)

	got, err := s.Retrieve(context.Background(), cr.Query{
		Context: "Patient", ContextPath: "value.ofType(string)", ContextValue: "123", DataType: "Observation",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	assertIDs(t, got)
}

func TestSingleSource_ContextThenTerminology(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1234-5"),
		observation(t, "o2", "Patient/123", loinc, "5555-5"),
		observation(t, "o3", "Patient/456", loinc, "1234-5"),
	}}
	s := newSource(t, store)

	got, err := s.Retrieve(context.Background(), cr.Query{
		Context: "Patient", ContextPath: "subject", ContextValue: "123",
		DataType: "Observation", CodePath: "code",
		Codes: []cr.Code{{System: loinc, Code: "1234-5"}},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	assertIDs(t, got, "o1")
}

func TestSingleSource_RecordsExclusions(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1234-5"),
		observation(t, "o2", "Patient/456", loinc, "1234-5"),
		observation(t, "o3", "Patient/123", loinc, "0000-0"),
	}}
	metrics := cr.NewMetrics(prometheus.NewRegistry())
	s := newSource(t, store, cr.WithMetrics(metrics))

	_, err := s.Retrieve(context.Background(), cr.Query{
		Context: "Patient", ContextPath: "subject", ContextValue: "123",
		DataType: "Observation", CodePath: "code",
		Codes: []cr.Code{{System: loinc, Code: "1234-5"}},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.Excluded().WithLabelValues(cr.FilterContext, "Observation")); got != 1 {
		t.Errorf("context exclusions = %v; want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Excluded().WithLabelValues(cr.FilterTerminology, "Observation")); got != 1 {
		t.Errorf("terminology exclusions = %v; want 1", got)
	}
}

func TestSingleSource_LogsExclusions(t *testing.T) {
	store := &mockStore{resources: []*cr.Resource{
		observation(t, "o1", "Patient/123", loinc, "1234-5"),
		observation(t, "o2", "Patient/123", loinc, "0000-0"),
	}}
	var buf bytes.Buffer
	s := newSource(t, store, cr.WithLogger(zerolog.New(&buf)))

	_, err := s.Retrieve(context.Background(), cr.Query{
		DataType: "Observation", CodePath: "code",
		Codes: []cr.Code{{System: loinc, Code: "1234-5"}},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"id":"o2"`) || !strings.Contains(logs, "outside requested codes") {
		t.Errorf("missing exclusion log for o2: %s", logs)
	}
	if strings.Contains(logs, `"id":"o1"`) {
		t.Errorf("kept record logged as excluded: %s", logs)
	}
}

func TestIDSegment(t *testing.T) {
	tests := map[string]string{
		"123":                    "123",
		"Patient/123":            "123",
		"Patient/123/_history/2": "123",
		"Patient/":               "",
	}
	for in, want := range tests {
		if got := idSegment(in); got != want {
			t.Errorf("idSegment(%q) = %q; want %q", in, got, want)
		}
	}
}
