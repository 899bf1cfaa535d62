package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashString_MatchesPattern(t *testing.T) {
	h := HashString("hello world")
	assert.True(t, Pattern.MatchString(h))
}

func TestHashString_DeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, HashString("a"), HashString("a"))
	assert.NotEqual(t, HashString("a"), HashString("b"))
}

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := CanonicalJSON(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":1,"b":2}`, string(a))
}

func TestCanonicalJSON_NestedMapsSortedAtEveryLevel(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{
		"outer": map[string]any{"z": 1, "y": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"y":2,"z":1}}`, string(out))
}

func TestHashJSON_MatchesHashOfCanonicalForm(t *testing.T) {
	h, err := HashJSON(map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.True(t, Pattern.MatchString(h))
	assert.Equal(t, HashString(`{"k":"v"}`), h)
}
