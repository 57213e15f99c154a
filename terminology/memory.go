package terminology

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"

	cr "github.com/gofhir/cqlretrieve"
)

// ErrValueSetNotFound is returned when a value set URL is not loaded.
var ErrValueSetNotFound = errors.New("value set not found")

// Filter operators supported by lazy expansion.
const (
	opIsA          = "is-a"
	opDescendentOf = "descendent-of"
	opRegex        = "regex"
	opEquals       = "="
	opIncludeAll   = "include-all"
)

// Memory is an in-memory value set membership service.
// It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	valueSets   map[string]*valueSetData
	codeSystems map[string]*codeSystemData
}

// valueSetData holds a value set's codes, indexed for lookup.
type valueSetData struct {
	url      string
	codes    map[string]map[string]cr.Code // system -> code -> code
	filters  []pendingFilter
	expanded bool
}

// codeSystemData holds a code system and its hierarchy.
type codeSystemData struct {
	url      string
	codes    map[string]cr.Code
	children map[string][]string
}

// pendingFilter is a compose filter waiting for lazy expansion.
type pendingFilter struct {
	system   string
	property string
	op       string
	value    string
}

// NewMemory creates an empty membership service.
func NewMemory() *Memory {
	return &Memory{
		valueSets:   make(map[string]*valueSetData),
		codeSystems: make(map[string]*codeSystemData),
	}
}

// LoadValueSet adds vs, replacing any value set with the same URL.
func (m *Memory) LoadValueSet(vs *r4.ValueSet) error {
	if vs == nil || vs.Url == nil {
		return fmt.Errorf("valueset is nil or has no URL")
	}

	data := &valueSetData{
		url:   *vs.Url,
		codes: make(map[string]map[string]cr.Code),
	}

	// An expansion is authoritative.
	if vs.Expansion != nil {
		for i := range vs.Expansion.Contains {
			data.addContains(&vs.Expansion.Contains[i])
		}
		data.expanded = true
	} else if vs.Compose != nil {
		data.addCompose(vs.Compose)
	}

	m.mu.Lock()
	m.valueSets[data.url] = data
	m.mu.Unlock()
	return nil
}

// LoadCodeSystem adds cs, replacing any code system with the same URL.
// Hierarchy comes from nested concepts and subsumedBy properties.
func (m *Memory) LoadCodeSystem(cs *r4.CodeSystem) error {
	if cs == nil || cs.Url == nil {
		return fmt.Errorf("codesystem is nil or has no URL")
	}

	data := &codeSystemData{
		url:      *cs.Url,
		codes:    make(map[string]cr.Code),
		children: make(map[string][]string),
	}
	data.addConcepts(cs.Concept, "")

	m.mu.Lock()
	m.codeSystems[data.url] = data
	// Value sets composed over this system need to be expanded again.
	for _, vs := range m.valueSets {
		if len(vs.filters) > 0 {
			vs.expanded = false
		}
	}
	m.mu.Unlock()
	return nil
}

// IsMember reports whether code belongs to the value set at url.
// A "|version" suffix on url is ignored. A code without a system matches
// when any system of the value set defines it.
func (m *Memory) IsMember(ctx context.Context, code cr.Code, url string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if code.Code == "" {
		return false, nil
	}

	url = stripVersion(url)
	if err := m.ensureExpanded(url); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.valueSets[url]
	if code.System != "" {
		_, ok := vs.codes[code.System][code.Code]
		return ok, nil
	}
	for _, codes := range vs.codes {
		if _, ok := codes[code.Code]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Expand returns every code of the value set at url, sorted by system
// then code.
func (m *Memory) Expand(ctx context.Context, url string) ([]cr.Code, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	url = stripVersion(url)
	if err := m.ensureExpanded(url); err != nil {
		return nil, err
	}

	m.mu.RLock()
	vs := m.valueSets[url]
	var codes []cr.Code
	for _, systemCodes := range vs.codes {
		for _, c := range systemCodes {
			codes = append(codes, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(codes, func(i, j int) bool {
		if codes[i].System != codes[j].System {
			return codes[i].System < codes[j].System
		}
		return codes[i].Code < codes[j].Code
	})
	return codes, nil
}

// ValueSets returns the URLs of the loaded value sets, sorted.
func (m *Memory) ValueSets() []string {
	m.mu.RLock()
	urls := make([]string, 0, len(m.valueSets))
	for url := range m.valueSets {
		urls = append(urls, url)
	}
	m.mu.RUnlock()

	sort.Strings(urls)
	return urls
}

// CountValueSets returns the number of loaded value sets.
func (m *Memory) CountValueSets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.valueSets)
}

// CountCodeSystems returns the number of loaded code systems.
func (m *Memory) CountCodeSystems() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codeSystems)
}

// ensureExpanded resolves pending compose filters of a value set.
// Uses double-checked locking.
func (m *Memory) ensureExpanded(url string) error {
	m.mu.RLock()
	vs, ok := m.valueSets[url]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrValueSetNotFound, url)
	}
	if vs.expanded || len(vs.filters) == 0 {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	vs, ok = m.valueSets[url]
	if !ok {
		return fmt.Errorf("%w: %s", ErrValueSetNotFound, url)
	}
	if vs.expanded {
		return nil
	}

	for _, f := range vs.filters {
		cs, ok := m.codeSystems[f.system]
		if !ok {
			continue
		}
		for _, c := range cs.filter(f) {
			vs.add(c)
		}
	}

	vs.expanded = true
	return nil
}

// Helper methods

func (vs *valueSetData) add(c cr.Code) {
	if vs.codes[c.System] == nil {
		vs.codes[c.System] = make(map[string]cr.Code)
	}
	vs.codes[c.System][c.Code] = c
}

func (vs *valueSetData) addContains(contains *r4.ValueSetExpansionContains) {
	if contains.Code != nil && contains.System != nil {
		vs.add(cr.Code{
			Code:    *contains.Code,
			System:  *contains.System,
			Display: deref(contains.Display),
		})
	}
	for i := range contains.Contains {
		vs.addContains(&contains.Contains[i])
	}
}

func (vs *valueSetData) addCompose(compose *r4.ValueSetCompose) {
	for i := range compose.Include {
		include := &compose.Include[i]
		if include.System == nil {
			continue
		}
		system := *include.System

		for j := range include.Concept {
			concept := &include.Concept[j]
			if concept.Code == nil {
				continue
			}
			vs.add(cr.Code{
				Code:    *concept.Code,
				System:  system,
				Display: deref(concept.Display),
			})
		}

		for _, filter := range include.Filter {
			if filter.Property == nil || filter.Op == nil || filter.Value == nil {
				continue
			}
			vs.filters = append(vs.filters, pendingFilter{
				system:   system,
				property: *filter.Property,
				op:       string(*filter.Op),
				value:    *filter.Value,
			})
		}

		// No concepts and no filters: the whole code system.
		if len(include.Concept) == 0 && len(include.Filter) == 0 {
			vs.filters = append(vs.filters, pendingFilter{system: system, op: opIncludeAll})
		}
	}
}

func (cs *codeSystemData) addConcepts(concepts []r4.CodeSystemConcept, parent string) {
	for i := range concepts {
		concept := &concepts[i]
		if concept.Code == nil {
			continue
		}
		code := *concept.Code

		cs.codes[code] = cr.Code{
			Code:    code,
			System:  cs.url,
			Display: deref(concept.Display),
		}

		if parent != "" {
			cs.children[parent] = append(cs.children[parent], code)
		}
		for _, prop := range concept.Property {
			if prop.Code != nil && *prop.Code == "subsumedBy" && prop.ValueCode != nil {
				cs.children[*prop.ValueCode] = append(cs.children[*prop.ValueCode], code)
			}
		}

		cs.addConcepts(concept.Concept, code)
	}
}

// filter returns the codes selected by f.
func (cs *codeSystemData) filter(f pendingFilter) []cr.Code {
	var out []cr.Code
	switch {
	case f.op == opIncludeAll:
		for _, c := range cs.codes {
			out = append(out, c)
		}

	case f.property == "concept" && (f.op == opIsA || f.op == opDescendentOf):
		for _, code := range cs.descendants(f.value, f.op == opIsA) {
			if c, ok := cs.codes[code]; ok {
				out = append(out, c)
			}
		}

	case f.property == "code" && f.op == opRegex:
		re, err := regexp.Compile("^(?:" + f.value + ")$")
		if err != nil {
			return nil
		}
		for code, c := range cs.codes {
			if re.MatchString(code) {
				out = append(out, c)
			}
		}

	case f.property == "code" && f.op == opEquals:
		if c, ok := cs.codes[f.value]; ok {
			out = append(out, c)
		}
	}
	return out
}

// descendants walks the hierarchy below start. Abstract codes (leading
// underscore) are skipped.
func (cs *codeSystemData) descendants(start string, includeSelf bool) []string {
	var result []string
	visited := make(map[string]bool)

	var walk func(code string)
	walk = func(code string) {
		if visited[code] {
			return
		}
		visited[code] = true

		if (includeSelf || code != start) && !strings.HasPrefix(code, "_") {
			result = append(result, code)
		}
		for _, child := range cs.children[code] {
			walk(child)
		}
	}

	walk(start)
	return result
}

// stripVersion removes a "|version" suffix from a canonical URL.
func stripVersion(url string) string {
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		return url[:idx]
	}
	return url
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Verify interface compliance
var _ cr.TerminologyMembership = (*Memory)(nil)
