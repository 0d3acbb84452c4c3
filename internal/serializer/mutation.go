package serializer

import (
	"context"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/models"
	"github.com/rohankatakam/graphinventory/internal/query"
)

// mutation holds the state of one resolved SerializeToDb call. Every store
// error raised from here on is a MutationFailure.
type mutation struct {
	s            *Serializer
	tx           graph.Tx
	desc         query.Descriptor
	res          *models.Resource
	parent       *graph.Vertex
	version      string
	opCtx        OpContext
	resourceType string
	key          string
}

func (m *mutation) fail(err error) error {
	return errors.MutationFailure(m.resourceType, m.key, err)
}

func (m *mutation) create(ctx context.Context) (*models.Resource, error) {
	existing, err := m.tx.Evaluate(ctx, m.desc.Target)
	if err != nil {
		return nil, m.fail(err)
	}
	if len(existing) > 0 {
		return nil, errors.AlreadyExists(m.resourceType, m.key)
	}

	targets, err := m.resolveRelations(ctx)
	if err != nil {
		return nil, err
	}

	props := m.stampedProperties("")
	props[graph.PropNodeKey] = m.res.Key

	v, err := m.tx.AddVertex(ctx, graph.Vertex{Label: m.res.Type, Properties: props})
	if err != nil {
		return nil, m.fail(err)
	}
	if err := m.link(ctx, v.ID, targets); err != nil {
		return nil, err
	}
	return m.result(v), nil
}

func (m *mutation) update(ctx context.Context) (*models.Resource, error) {
	current, err := m.target(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.checkPrecondition(current); err != nil {
		return nil, err
	}

	targets, err := m.resolveRelations(ctx)
	if err != nil {
		return nil, err
	}

	v, err := m.tx.UpdateVertex(ctx, current.ID, m.stampedProperties(current.Prop(graph.PropResourceVersion)))
	if err != nil {
		return nil, m.fail(err)
	}
	if err := m.link(ctx, v.ID, targets); err != nil {
		return nil, err
	}
	return m.result(v), nil
}

func (m *mutation) remove(ctx context.Context) (*models.Resource, error) {
	current, err := m.target(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.checkPrecondition(current); err != nil {
		return nil, err
	}
	if err := m.tx.RemoveVertex(ctx, current.ID); err != nil {
		return nil, m.fail(err)
	}
	return m.result(current), nil
}

// target returns the single vertex the descriptor addresses
func (m *mutation) target(ctx context.Context) (graph.Vertex, error) {
	matches, err := m.tx.Evaluate(ctx, m.desc.Target)
	if err != nil {
		return graph.Vertex{}, m.fail(err)
	}
	switch len(matches) {
	case 0:
		return graph.Vertex{}, errors.ResourceNotFound(m.resourceType, m.key)
	case 1:
		return matches[0], nil
	default:
		return graph.Vertex{}, errors.AmbiguousTarget(m.resourceType, m.key, len(matches))
	}
}

// checkPrecondition compares a caller-supplied resource version with the stored one
func (m *mutation) checkPrecondition(current graph.Vertex) error {
	if m.res == nil || m.res.ResourceVersion == "" {
		return nil
	}
	stored := current.Prop(graph.PropResourceVersion)
	if m.res.ResourceVersion != stored {
		return errors.PreconditionFailed(m.resourceType, m.key, m.res.ResourceVersion, stored)
	}
	return nil
}

// resolveRelations finds every relation target before anything is written
func (m *mutation) resolveRelations(ctx context.Context) ([]graph.Vertex, error) {
	targets := make([]graph.Vertex, 0, len(m.res.Relations))
	for _, rel := range m.res.Relations {
		matches, err := m.tx.Evaluate(ctx, graph.Key(rel.TargetType, rel.TargetKey))
		if err != nil {
			return nil, m.fail(err)
		}
		switch len(matches) {
		case 0:
			return nil, errors.ResourceNotFound(rel.TargetType, rel.TargetKey).
				WithContext("relation", rel.Label)
		case 1:
			targets = append(targets, matches[0])
		default:
			return nil, errors.AmbiguousTarget(rel.TargetType, rel.TargetKey, len(matches)).
				WithContext("relation", rel.Label)
		}
	}
	return targets, nil
}

// link adds the parent edge and relation edges; both are idempotent
func (m *mutation) link(ctx context.Context, id string, targets []graph.Vertex) error {
	if m.parent != nil {
		if _, err := m.tx.AddEdge(ctx, graph.Edge{Label: m.desc.Edge(), From: id, To: m.parent.ID}); err != nil {
			return m.fail(err)
		}
	}
	for i, rel := range m.res.Relations {
		if _, err := m.tx.AddEdge(ctx, graph.Edge{Label: rel.Label, From: id, To: targets[i].ID}); err != nil {
			return m.fail(err)
		}
	}
	return nil
}

// stampedProperties merges the user properties with the reserved ones
func (m *mutation) stampedProperties(storedVersion string) map[string]any {
	props := make(map[string]any, len(m.res.Properties)+3)
	for k, v := range m.res.Properties {
		props[k] = v
	}
	props[graph.PropResourceVersion] = m.s.nextResourceVersion(storedVersion)
	if m.version != "" {
		props[graph.PropSchemaVersion] = m.version
	}
	if m.opCtx.SourceOfTruth != "" {
		props[graph.PropLastModSource] = m.opCtx.SourceOfTruth
	}
	return props
}

func (m *mutation) result(v graph.Vertex) *models.Resource {
	out := m.res.Clone()
	if out == nil {
		out = &models.Resource{}
	}
	out.Type = v.Label
	out.Key = v.Key()
	out.ID = v.ID
	out.ResourceVersion = v.Prop(graph.PropResourceVersion)
	out.Properties = userProperties(v.Properties)
	if m.parent != nil {
		out.ParentID = m.parent.ID
	}
	return out
}

// userProperties drops the reserved properties from a vertex property map
func userProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if !graph.ReservedProperty(k) {
			out[k] = v
		}
	}
	return out
}
