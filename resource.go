package cqlretrieve

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Resource is an immutable FHIR resource held as both raw JSON and its
// decoded form. Data returns the decoded map; callers must not modify it.
type Resource struct {
	raw          json.RawMessage
	data         map[string]any
	resourceType string
	id           string
}

// NewResource decodes a JSON resource. The resourceType element is required.
func NewResource(raw []byte) (*Resource, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return newResource(append(json.RawMessage(nil), raw...), data)
}

// NewResourceFromMap builds a Resource from an already decoded map.
func NewResourceFromMap(data map[string]any) (*Resource, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	return newResource(raw, data)
}

func newResource(raw json.RawMessage, data map[string]any) (*Resource, error) {
	resourceType, _ := data["resourceType"].(string)
	if resourceType == "" {
		return nil, errors.New("resource has no resourceType")
	}
	id, _ := data["id"].(string)
	return &Resource{
		raw:          raw,
		data:         data,
		resourceType: resourceType,
		id:           id,
	}, nil
}

// Type returns the resource type, e.g. "Observation".
func (r *Resource) Type() string { return r.resourceType }

// ID returns the logical id, or "" if the resource has none.
func (r *Resource) ID() string { return r.id }

// Raw returns the JSON encoding of the resource.
func (r *Resource) Raw() json.RawMessage { return r.raw }

// Data returns the decoded resource.
func (r *Resource) Data() map[string]any { return r.data }

// Reference returns the relative reference "Type/id".
func (r *Resource) Reference() string {
	return r.resourceType + "/" + r.id
}

// MarshalJSON returns the raw resource.
func (r *Resource) MarshalJSON() ([]byte, error) {
	return r.raw, nil
}

// ResultSet is an ordered sequence of resources. Duplicates are allowed and
// the order is the order in which the backing store enumerated them.
type ResultSet []*Resource

// EmptyResult returns an empty, non-nil ResultSet.
func EmptyResult() ResultSet {
	return ResultSet{}
}

// IDs returns the ids of the resources in order.
func (rs ResultSet) IDs() []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID()
	}
	return ids
}
