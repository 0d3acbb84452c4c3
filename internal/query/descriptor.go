// Package query describes where a resource lives in the graph.
package query

import (
	"fmt"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/graph"
)

// DefaultParentEdge links a dependent resource to its parent
const DefaultParentEdge = "BELONGS_TO"

// Descriptor locates a resource's vertex. A dependent resource hangs off a
// parent vertex found by Parent and is linked child -> parent with ParentEdge.
type Descriptor struct {
	// Target matches the resource's own vertex; used for update/delete and
	// for the uniqueness check on create
	Target graph.Traversal

	Dependent  bool
	Parent     graph.Traversal // set iff Dependent
	ParentEdge string          // "" means DefaultParentEdge
}

// Standalone addresses a top-level resource by type and key
func Standalone(resourceType, key string) Descriptor {
	return Descriptor{Target: graph.Key(resourceType, key)}
}

// Under addresses a resource scoped beneath parent. The target is the child
// reached from the parent over edge, so equal keys under different parents
// do not collide.
func Under(parent graph.Traversal, edge, resourceType, key string) Descriptor {
	if edge == "" {
		edge = DefaultParentEdge
	}
	return Descriptor{
		Target:     parent.In(edge, resourceType, map[string]any{graph.PropNodeKey: key}),
		Dependent:  true,
		Parent:     parent,
		ParentEdge: edge,
	}
}

// Edge returns the parent edge label with the default applied
func (d Descriptor) Edge() string {
	if d.ParentEdge == "" {
		return DefaultParentEdge
	}
	return d.ParentEdge
}

// Validate enforces the parent-present-iff-dependent rule
func (d Descriptor) Validate() error {
	if d.Target.IsZero() {
		return errors.ValidationErrorf("query descriptor has no target traversal")
	}
	if err := d.Target.Validate(); err != nil {
		return errors.ValidationErrorf("invalid target traversal %s: %v", d.Target, err)
	}
	if d.Dependent {
		if d.Parent.IsZero() {
			return errors.ValidationErrorf("dependent descriptor for %s has no parent traversal", d.Target)
		}
		if err := d.Parent.Validate(); err != nil {
			return errors.ValidationErrorf("invalid parent traversal %s: %v", d.Parent, err)
		}
	} else if !d.Parent.IsZero() {
		return errors.ValidationErrorf("descriptor for %s has a parent traversal but is not dependent", d.Target)
	}
	return nil
}

// ResourceType is the vertex label the target resolves to
func (d Descriptor) ResourceType() string {
	return d.Target.Last().Label
}

// Key is the natural key the target step matches on, "" when it matches by ID
func (d Descriptor) Key() string {
	if k, ok := d.Target.Last().Match[graph.PropNodeKey]; ok {
		return fmt.Sprintf("%v", k)
	}
	return ""
}

func (d Descriptor) String() string {
	if d.Dependent {
		return d.Target.String() + " under " + d.Parent.String()
	}
	return d.Target.String()
}
