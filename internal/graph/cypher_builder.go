package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CypherBuilder builds safe, parameterized Cypher queries.
// Every value goes through a parameter; labels and property keys are validated
// and backtick-quoted because inventory types are hyphenated (cloud-region).
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params:  make(map[string]any),
		counter: 0,
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

const vertexReturn = "elementId(%[1]s) AS id, labels(%[1]s) AS labels, properties(%[1]s) AS props"

// BuildTraversal compiles a Traversal to a MATCH returning the last step's vertices
func (b *CypherBuilder) BuildTraversal(t Traversal) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var pattern strings.Builder
	var where []string
	for i, s := range t.Steps {
		alias := fmt.Sprintf("n%d", i)

		if i > 0 {
			if !isValidIdentifier(s.EdgeLabel) {
				return "", fmt.Errorf("invalid edge label: %s", s.EdgeLabel)
			}
			if s.Direction == Out {
				pattern.WriteString(fmt.Sprintf("-[:%s]->", quote(s.EdgeLabel)))
			} else {
				pattern.WriteString(fmt.Sprintf("<-[:%s]-", quote(s.EdgeLabel)))
			}
		}

		node, err := b.nodePattern(alias, s)
		if err != nil {
			return "", err
		}
		pattern.WriteString(node)

		if s.ID != "" {
			where = append(where, fmt.Sprintf("elementId(%s) = %s", alias, b.AddParam(s.ID)))
		}
	}

	last := fmt.Sprintf("n%d", len(t.Steps)-1)
	query := "MATCH " + pattern.String()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" WITH DISTINCT %[1]s RETURN "+vertexReturn+" ORDER BY id", last)
	return query, nil
}

func (b *CypherBuilder) nodePattern(alias string, s Step) (string, error) {
	var sb strings.Builder
	sb.WriteString("(" + alias)
	if s.Label != "" {
		if !isValidIdentifier(s.Label) {
			return "", fmt.Errorf("invalid node label: %s (must be alphanumeric, underscore or hyphen)", s.Label)
		}
		sb.WriteString(":" + quote(s.Label))
	}
	if len(s.Match) > 0 {
		keys := sortedKeys(s.Match)
		clauses := make([]string, 0, len(keys))
		for _, k := range keys {
			if !isValidIdentifier(k) {
				return "", fmt.Errorf("invalid property key: %s", k)
			}
			clauses = append(clauses, fmt.Sprintf("%s: %s", quote(k), b.AddParam(s.Match[k])))
		}
		sb.WriteString(" {" + strings.Join(clauses, ", ") + "}")
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// BuildCreateVertex creates a labelled vertex carrying all properties
func (b *CypherBuilder) BuildCreateVertex(label string, properties map[string]any) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric, underscore or hyphen)", label)
	}
	for k := range properties {
		if !isValidIdentifier(k) {
			return "", fmt.Errorf("invalid property key: %s", k)
		}
	}
	propsParam := b.AddParam(properties)
	return fmt.Sprintf("CREATE (n:%[2]s) SET n = %[3]s RETURN "+vertexReturn, "n", quote(label), propsParam), nil
}

// BuildUpdateVertex merges properties into the vertex with the given element ID.
// Null values in the map remove the property (SET +=).
func (b *CypherBuilder) BuildUpdateVertex(id string, properties map[string]any) (string, error) {
	for k := range properties {
		if !isValidIdentifier(k) {
			return "", fmt.Errorf("invalid property key: %s", k)
		}
	}
	idParam := b.AddParam(id)
	propsParam := b.AddParam(properties)
	return fmt.Sprintf("MATCH (n) WHERE elementId(n) = %[2]s SET n += %[3]s RETURN "+vertexReturn, "n", idParam, propsParam), nil
}

// BuildDeleteVertex detaches and deletes the vertex with the given element ID
func (b *CypherBuilder) BuildDeleteVertex(id string) string {
	idParam := b.AddParam(id)
	return fmt.Sprintf("MATCH (n) WHERE elementId(n) = %s DETACH DELETE n RETURN count(*) AS removed", idParam)
}

// BuildMergeEdge links two vertices by element ID; MERGE keeps it idempotent
func (b *CypherBuilder) BuildMergeEdge(fromID, toID, edgeLabel string, properties map[string]any) (string, error) {
	if !isValidIdentifier(edgeLabel) {
		return "", fmt.Errorf("invalid edge label: %s", edgeLabel)
	}

	fromParam := b.AddParam(fromID)
	toParam := b.AddParam(toID)

	var propsStr string
	if len(properties) > 0 {
		keys := sortedKeys(properties)
		propClauses := make([]string, 0, len(keys))
		for _, key := range keys {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
			propClauses = append(propClauses, fmt.Sprintf("r.%s = %s", quote(key), b.AddParam(properties[key])))
		}
		propsStr = " SET " + strings.Join(propClauses, ", ")
	}

	return fmt.Sprintf(
		"MATCH (from) WHERE elementId(from) = %s MATCH (to) WHERE elementId(to) = %s MERGE (from)-[r:%s]->(to)%s RETURN elementId(r) AS id",
		fromParam, toParam, quote(edgeLabel), propsStr,
	), nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// isValidIdentifier validates that a string can be safely used as a quoted Cypher identifier
// Only allows alphanumeric characters, underscores and hyphens (prevents injection)
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	return identifierPattern.MatchString(s)
}

func quote(ident string) string {
	return "`" + ident + "`"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
