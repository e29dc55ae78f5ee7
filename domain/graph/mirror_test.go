package graph

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToPath(t *testing.T) {
	record := &neo4j.Record{
		Keys: []string{"nodes", "rels", "totalDistance", "pathStrength"},
		Values: []any{
			[]any{
				map[string]any{"id": "a", "title": "Start"},
				map[string]any{"id": "b", "title": "Middle"},
				map[string]any{"id": "c", "title": "End"},
			},
			[]any{
				map[string]any{"id": "r1", "type": "SUPPORTS", "strength": 0.8},
				map[string]any{"id": "r2", "type": "EXPANDS_ON", "strength": 0.5},
			},
			0.7,
			0.4,
		},
	}

	result := recordToPath(record)

	require.Len(t, result.Path, 3)
	assert.Equal(t, 0.7, result.TotalDistance)
	assert.Equal(t, 0.4, result.PathStrength)

	// The first step is the origin and carries no relation
	assert.Equal(t, "a", result.Path[0].NodeID)
	assert.Equal(t, "Start", result.Path[0].Title)
	assert.Empty(t, result.Path[0].RelationID)
	assert.Empty(t, result.Path[0].RelationType)

	// Each later step describes the edge traversed into it
	assert.Equal(t, "b", result.Path[1].NodeID)
	assert.Equal(t, "r1", result.Path[1].RelationID)
	assert.Equal(t, "SUPPORTS", result.Path[1].RelationType)
	assert.Equal(t, 0.8, result.Path[1].Strength)

	assert.Equal(t, "c", result.Path[2].NodeID)
	assert.Equal(t, "r2", result.Path[2].RelationID)
	assert.Equal(t, 0.5, result.Path[2].Strength)
}

func TestRecordToPath_SingleHop(t *testing.T) {
	record := &neo4j.Record{
		Keys: []string{"nodes", "rels", "totalDistance", "pathStrength"},
		Values: []any{
			[]any{
				map[string]any{"id": "a", "title": "From"},
				map[string]any{"id": "b", "title": "To"},
			},
			[]any{
				map[string]any{"id": "r1", "type": "IS_A", "strength": 1.0},
			},
			0.0,
			1.0,
		},
	}

	result := recordToPath(record)

	require.Len(t, result.Path, 2)
	assert.Equal(t, 0.0, result.TotalDistance, "full-strength edges cost nothing to traverse")
	assert.Equal(t, 1.0, result.PathStrength)
	assert.Equal(t, "IS_A", result.Path[1].RelationType)
}

func TestAsFloat(t *testing.T) {
	assert.Equal(t, 1.5, asFloat(1.5))
	assert.Equal(t, 3.0, asFloat(int64(3)))
	assert.Equal(t, 2.0, asFloat(2))
	assert.Equal(t, 0.0, asFloat(nil))
	assert.Equal(t, 0.0, asFloat("not a number"))
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "x", asString("x"))
	assert.Equal(t, "", asString(nil))
	assert.Equal(t, "", asString(42))
}
