package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Direction of a traversal step
type Direction int

const (
	// Start selects the initial vertex set
	Start Direction = iota
	// Out follows edges from the current vertex (current -[label]-> next)
	Out
	// In follows edges into the current vertex (next -[label]-> current)
	In
)

// Step is one hop of a Traversal. The first step of a traversal is always a
// Start step; every later step follows an edge.
type Step struct {
	Direction Direction
	EdgeLabel string
	Label     string         // vertex label, empty matches any
	ID        string         // vertex ID, empty matches any
	Match     map[string]any // property equality constraints
}

// Traversal is a store-neutral path expression. It is compiled to Cypher by
// Neo4jStore and evaluated in-process by BoltStore and MemoryStore.
type Traversal struct {
	Steps []Step
}

// V starts a traversal at vertices with the given label and properties
func V(label string, match map[string]any) Traversal {
	return Traversal{Steps: []Step{{Direction: Start, Label: label, Match: match}}}
}

// Key starts a traversal at the vertex of a given type and natural key
func Key(label, key string) Traversal {
	return V(label, map[string]any{PropNodeKey: key})
}

// ByID starts a traversal at one vertex
func ByID(id string) Traversal {
	return Traversal{Steps: []Step{{Direction: Start, ID: id}}}
}

// Out appends a hop along outgoing edges
func (t Traversal) Out(edgeLabel, label string, match map[string]any) Traversal {
	return t.with(Step{Direction: Out, EdgeLabel: edgeLabel, Label: label, Match: match})
}

// In appends a hop along incoming edges
func (t Traversal) In(edgeLabel, label string, match map[string]any) Traversal {
	return t.with(Step{Direction: In, EdgeLabel: edgeLabel, Label: label, Match: match})
}

func (t Traversal) with(s Step) Traversal {
	steps := make([]Step, len(t.Steps), len(t.Steps)+1)
	copy(steps, t.Steps)
	return Traversal{Steps: append(steps, s)}
}

// IsZero reports whether the traversal has no steps
func (t Traversal) IsZero() bool {
	return len(t.Steps) == 0
}

// Validate checks the step structure
func (t Traversal) Validate() error {
	if len(t.Steps) == 0 {
		return fmt.Errorf("empty traversal")
	}
	for i, s := range t.Steps {
		if i == 0 && s.Direction != Start {
			return fmt.Errorf("step 0 must be a start step")
		}
		if i > 0 {
			if s.Direction == Start {
				return fmt.Errorf("step %d: start step inside traversal", i)
			}
			if s.EdgeLabel == "" {
				return fmt.Errorf("step %d: edge label required", i)
			}
		}
	}
	return nil
}

// Last returns the final step, the one whose vertices the traversal yields
func (t Traversal) Last() Step {
	if len(t.Steps) == 0 {
		return Step{}
	}
	return t.Steps[len(t.Steps)-1]
}

func (t Traversal) String() string {
	var sb strings.Builder
	for _, s := range t.Steps {
		switch s.Direction {
		case Start:
			sb.WriteString("V")
		case Out:
			sb.WriteString(fmt.Sprintf(".out(%s)", s.EdgeLabel))
		case In:
			sb.WriteString(fmt.Sprintf(".in(%s)", s.EdgeLabel))
		}
		sb.WriteString("(")
		parts := []string{}
		if s.Label != "" {
			parts = append(parts, s.Label)
		}
		if s.ID != "" {
			parts = append(parts, "id="+s.ID)
		}
		keys := make([]string, 0, len(s.Match))
		for k := range s.Match {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, s.Match[k]))
		}
		sb.WriteString(strings.Join(parts, ","))
		sb.WriteString(")")
	}
	return sb.String()
}

// graphView is the read surface in-process evaluation needs
type graphView interface {
	allVertices() ([]Vertex, error)
	vertexByID(id string) (Vertex, bool, error)
	allEdges() ([]Edge, error)
}

// evaluateView walks t over an in-process graph. Results are de-duplicated
// and sorted by vertex ID.
func evaluateView(view graphView, t Traversal) ([]Vertex, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	first := t.Steps[0]
	var current []Vertex
	if first.ID != "" {
		v, ok, err := view.vertexByID(first.ID)
		if err != nil {
			return nil, err
		}
		if ok && stepMatches(first, v) {
			current = []Vertex{v}
		}
	} else {
		all, err := view.allVertices()
		if err != nil {
			return nil, err
		}
		for _, v := range all {
			if stepMatches(first, v) {
				current = append(current, v)
			}
		}
	}

	edges, err := view.allEdges()
	if err != nil {
		return nil, err
	}
	for _, s := range t.Steps[1:] {
		if len(current) == 0 {
			break
		}
		ids := make(map[string]struct{}, len(current))
		for _, v := range current {
			ids[v.ID] = struct{}{}
		}

		seen := make(map[string]struct{})
		var next []Vertex
		for _, e := range edges {
			if e.Label != s.EdgeLabel {
				continue
			}
			var from, to string
			if s.Direction == Out {
				from, to = e.From, e.To
			} else {
				from, to = e.To, e.From
			}
			if _, ok := ids[from]; !ok {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			v, ok, err := view.vertexByID(to)
			if err != nil {
				return nil, err
			}
			if !ok || !stepMatches(s, v) {
				continue
			}
			seen[to] = struct{}{}
			next = append(next, v)
		}
		current = next
	}

	sort.Slice(current, func(i, j int) bool { return current[i].ID < current[j].ID })
	return dedupe(current), nil
}

func dedupe(vs []Vertex) []Vertex {
	if len(vs) < 2 {
		return vs
	}
	out := vs[:1]
	for _, v := range vs[1:] {
		if v.ID != out[len(out)-1].ID {
			out = append(out, v)
		}
	}
	return out
}

func stepMatches(s Step, v Vertex) bool {
	if s.Label != "" && s.Label != v.Label {
		return false
	}
	if s.ID != "" && s.ID != v.ID {
		return false
	}
	for k, want := range s.Match {
		got, ok := v.Properties[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// normalizeValue folds the numeric types callers and JSON decoding produce
// into int64 or float64 so property comparison is representation independent.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func normalizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
