package models

import (
	"sort"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/graph"
)

// Resource is one inventory entity: a vertex of type Type identified by Key
type Resource struct {
	Type            string         `json:"type" yaml:"type"`
	Key             string         `json:"key" yaml:"key"`
	Properties      map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	Relations       []Relation     `json:"relations,omitempty" yaml:"relations,omitempty"`
	ID              string         `json:"id,omitempty" yaml:"-"`
	ParentID        string         `json:"parent_id,omitempty" yaml:"-"`
	ResourceVersion string         `json:"resource_version,omitempty" yaml:"resource_version,omitempty"`
}

// Relation is an outgoing edge to another resource addressed by type and key
type Relation struct {
	Label      string `json:"label" yaml:"label"`
	TargetType string `json:"target_type" yaml:"type"`
	TargetKey  string `json:"target_key" yaml:"key"`
}

// Validate checks identity fields and property values
func (r *Resource) Validate() error {
	if r.Type == "" {
		return errors.ValidationErrorf("resource type is required")
	}
	if r.Key == "" {
		return errors.ValidationErrorf("resource key is required for %s", r.Type)
	}

	for _, name := range r.PropertyNames() {
		if graph.ReservedProperty(name) {
			return errors.ValidationErrorf("property %q of %s/%s is reserved", name, r.Type, r.Key)
		}
		if !IsScalar(r.Properties[name]) {
			return errors.ValidationErrorf("property %q of %s/%s must be a string, bool or number, got %T",
				name, r.Type, r.Key, r.Properties[name])
		}
	}

	for i, rel := range r.Relations {
		if rel.Label == "" || rel.TargetType == "" || rel.TargetKey == "" {
			return errors.ValidationErrorf("relation %d of %s/%s needs label, target type and target key", i, r.Type, r.Key)
		}
	}
	return nil
}

// PropertyNames returns the property names in sorted order
func (r *Resource) PropertyNames() []string {
	names := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy safe to mutate
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	if r.Properties != nil {
		out.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			out.Properties[k] = v
		}
	}
	if r.Relations != nil {
		out.Relations = append([]Relation(nil), r.Relations...)
	}
	return &out
}

// IsScalar reports whether v can be stored as a vertex property
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
