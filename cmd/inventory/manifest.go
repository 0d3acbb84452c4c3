package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/models"
	"github.com/rohankatakam/graphinventory/internal/query"
	"github.com/rohankatakam/graphinventory/internal/serializer"
)

// manifestItem is one resource request in an apply manifest
type manifestItem struct {
	Type       string            `yaml:"type"`
	Key        string            `yaml:"key"`
	Version    string            `yaml:"version"` // expected resource_version, "" for no precondition
	Operation  string            `yaml:"operation"`
	Properties map[string]any    `yaml:"properties"`
	Relations  []models.Relation `yaml:"relations"`
	Parent     *manifestParent   `yaml:"parent"`
}

type manifestParent struct {
	Type string `yaml:"type"`
	Key  string `yaml:"key"`
	Edge string `yaml:"edge"`
}

// parseManifest reads a YAML list of items into serializer requests, in order.
// An item without an operation is a create.
func parseManifest(r io.Reader) ([]serializer.Request, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var items []manifestItem
	if err := dec.Decode(&items); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	reqs := make([]serializer.Request, 0, len(items))
	for i, item := range items {
		req, err := item.request()
		if err != nil {
			return nil, fmt.Errorf("manifest item %d (%s %q): %w", i, item.Type, item.Key, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (m manifestItem) request() (serializer.Request, error) {
	opName := strings.ToLower(m.Operation)
	if opName == "" {
		opName = string(serializer.Create)
	}
	op, err := serializer.ParseOperation(opName)
	if err != nil {
		return serializer.Request{}, err
	}

	req := serializer.Request{
		Descriptor: descriptorFor(m.Type, m.Key, m.Parent),
		Context:    serializer.OpContext{Operation: op},
	}
	if op != serializer.Delete || m.Version != "" {
		req.Resource = &models.Resource{
			Type:            m.Type,
			Key:             m.Key,
			Properties:      m.Properties,
			Relations:       m.Relations,
			ResourceVersion: m.Version,
		}
	}
	return req, nil
}

func descriptorFor(resourceType, key string, parent *manifestParent) query.Descriptor {
	if parent == nil {
		return query.Standalone(resourceType, key)
	}
	return query.Under(graph.Key(parent.Type, parent.Key), parent.Edge, resourceType, key)
}
