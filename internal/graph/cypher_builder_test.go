package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTraversal(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildTraversal(Key("cloud-region", "east").In("BELONGS_TO", "tenant", map[string]any{PropNodeKey: "a"}))
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (n0:`cloud-region` {`node_key`: $p0})<-[:`BELONGS_TO`]-(n1:`tenant` {`node_key`: $p1})"+
			" WITH DISTINCT n1 RETURN elementId(n1) AS id, labels(n1) AS labels, properties(n1) AS props ORDER BY id",
		cypher)
	assert.Equal(t, map[string]any{"p0": "east", "p1": "a"}, b.Params())
}

func TestBuildTraversalByID(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildTraversal(ByID("4:abc:1").Out("HOSTED_ON", "", nil))
	require.NoError(t, err)

	assert.Contains(t, cypher, "MATCH (n0)-[:`HOSTED_ON`]->(n1) WHERE elementId(n0) = $p0")
	assert.Contains(t, cypher, "WITH DISTINCT n1")
	assert.Equal(t, "4:abc:1", b.Params()["p0"])
}

func TestBuildTraversalRejectsInjection(t *testing.T) {
	tests := []struct {
		name string
		tr   Traversal
	}{
		{"label", V("tenant) DETACH DELETE (x", nil)},
		{"property key", V("tenant", map[string]any{"a} RETURN 1 //": "x"})},
		{"edge label", V("tenant", nil).Out("X]->() DELETE", "", nil)},
		{"empty", Traversal{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCypherBuilder().BuildTraversal(tt.tr)
			assert.Error(t, err)
		})
	}
}

func TestBuildCreateVertex(t *testing.T) {
	b := NewCypherBuilder()
	props := map[string]any{PropNodeKey: "east", "owner": "ops"}
	cypher, err := b.BuildCreateVertex("cloud-region", props)
	require.NoError(t, err)

	assert.Equal(t,
		"CREATE (n:`cloud-region`) SET n = $p0 RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props",
		cypher)
	assert.Equal(t, props, b.Params()["p0"])

	_, err = NewCypherBuilder().BuildCreateVertex("bad label", props)
	assert.Error(t, err)
	_, err = NewCypherBuilder().BuildCreateVertex("tenant", map[string]any{"bad key": 1})
	assert.Error(t, err)
}

func TestBuildUpdateVertex(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildUpdateVertex("4:abc:1", map[string]any{"status": "active"})
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (n) WHERE elementId(n) = $p0 SET n += $p1 RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props",
		cypher)
	assert.Equal(t, "4:abc:1", b.Params()["p0"])
}

func TestBuildDeleteVertex(t *testing.T) {
	b := NewCypherBuilder()
	cypher := b.BuildDeleteVertex("4:abc:1")
	assert.Equal(t, "MATCH (n) WHERE elementId(n) = $p0 DETACH DELETE n RETURN count(*) AS removed", cypher)
}

func TestBuildMergeEdge(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildMergeEdge("from-id", "to-id", "BELONGS_TO", map[string]any{"weight": 1, "since": "2024"})
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (from) WHERE elementId(from) = $p0 MATCH (to) WHERE elementId(to) = $p1"+
			" MERGE (from)-[r:`BELONGS_TO`]->(to) SET r.`since` = $p2, r.`weight` = $p3 RETURN elementId(r) AS id",
		cypher)
	assert.Len(t, b.Params(), 4)

	_, err = NewCypherBuilder().BuildMergeEdge("a", "b", "", nil)
	assert.Error(t, err)
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"tenant", "cloud-region", "node_key", "_private", "L2"}
	invalid := []string{"", "2fast", "a b", "a`b", "a.b", "a}"}
	for _, s := range valid {
		assert.True(t, isValidIdentifier(s), s)
	}
	for _, s := range invalid {
		assert.False(t, isValidIdentifier(s), s)
	}
}
