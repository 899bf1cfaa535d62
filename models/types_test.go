package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation_RoundTripPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"chunk_index":2,"custom_field":"kept","nested":{"a":1}}`)

	var loc Location
	require.NoError(t, json.Unmarshal(raw, &loc))
	require.NotNil(t, loc.ChunkIndex)
	assert.Equal(t, 2, *loc.ChunkIndex)
	assert.Equal(t, "kept", loc.Extra["custom_field"])

	out, err := json.Marshal(loc)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, float64(2), roundTripped["chunk_index"])
	assert.Equal(t, "kept", roundTripped["custom_field"])
	assert.Equal(t, map[string]any{"a": float64(1)}, roundTripped["nested"])
}

func TestLocation_MarshalOmitsNilTypedFields(t *testing.T) {
	loc := Location{}
	out, err := json.Marshal(loc)
	require.NoError(t, err)

	var asMap map[string]any
	require.NoError(t, json.Unmarshal(out, &asMap))
	assert.Empty(t, asMap)
}

func TestLocation_KnownFieldNeverLeaksIntoExtra(t *testing.T) {
	raw := []byte(`{"page_number":7}`)
	var loc Location
	require.NoError(t, json.Unmarshal(raw, &loc))
	require.NotNil(t, loc.PageNumber)
	assert.Equal(t, 7, *loc.PageNumber)
	_, ok := loc.Extra["page_number"]
	assert.False(t, ok)
}
