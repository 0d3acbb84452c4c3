package models

import (
	"testing"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		res     Resource
		wantErr bool
	}{
		{
			name: "complete",
			res: Resource{
				Type:       "tenant",
				Key:        "t1",
				Properties: map[string]any{"name": "acme", "quota": 10, "enabled": true, "ratio": 0.5},
				Relations:  []Relation{{Label: "USES", TargetType: "image", TargetKey: "ubuntu"}},
			},
		},
		{name: "missing type", res: Resource{Key: "t1"}, wantErr: true},
		{name: "missing key", res: Resource{Type: "tenant"}, wantErr: true},
		{
			name:    "reserved property",
			res:     Resource{Type: "tenant", Key: "t1", Properties: map[string]any{"resource_version": "1"}},
			wantErr: true,
		},
		{
			name:    "nested property",
			res:     Resource{Type: "tenant", Key: "t1", Properties: map[string]any{"tags": []string{"a"}}},
			wantErr: true,
		},
		{
			name:    "nil property",
			res:     Resource{Type: "tenant", Key: "t1", Properties: map[string]any{"owner": nil}},
			wantErr: true,
		},
		{
			name:    "relation without key",
			res:     Resource{Type: "tenant", Key: "t1", Relations: []Relation{{Label: "USES", TargetType: "image"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.res.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceClone(t *testing.T) {
	orig := &Resource{
		Type:       "tenant",
		Key:        "t1",
		Properties: map[string]any{"name": "acme"},
		Relations:  []Relation{{Label: "USES", TargetType: "image", TargetKey: "ubuntu"}},
	}
	clone := orig.Clone()
	clone.Properties["name"] = "other"
	clone.Relations[0].TargetKey = "debian"

	assert.Equal(t, "acme", orig.Properties["name"])
	assert.Equal(t, "ubuntu", orig.Relations[0].TargetKey)

	var nilRes *Resource
	assert.Nil(t, nilRes.Clone())
}

func TestPropertyNamesSorted(t *testing.T) {
	r := Resource{Properties: map[string]any{"b": 1, "a": 2, "c": 3}}
	assert.Equal(t, []string{"a", "b", "c"}, r.PropertyNames())
}
