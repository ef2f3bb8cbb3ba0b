package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePrecedence(t *testing.T) {
	shares := ShareList{{UserID: "u2", Level: Read}, {UserID: "u3", Level: Write}}

	// Ownership wins over everything, including FAMILY visibility.
	assert.Equal(t, Owner, Evaluate("u1", VisibilityFamily, shares, "u1"))
	assert.Equal(t, Owner, Evaluate("u1", VisibilityPrivate, shares, "u1"))

	// FAMILY accounts are joint: every non-owner gets Write.
	assert.Equal(t, Write, Evaluate("u1", VisibilityFamily, nil, "u2"))
	assert.Equal(t, Write, Evaluate("u1", VisibilityFamily, shares, "u9"))

	// PRIVATE accounts fall back to the share list.
	assert.Equal(t, Read, Evaluate("u1", VisibilityPrivate, shares, "u2"))
	assert.Equal(t, Write, Evaluate("u1", VisibilityPrivate, shares, "u3"))
	assert.Equal(t, None, Evaluate("u1", VisibilityPrivate, shares, "u9"))
	assert.Equal(t, None, Evaluate("u1", VisibilityPrivate, nil, "u2"))
}

func TestEvaluateEmptyOwner(t *testing.T) {
	// An unowned account must never grant Owner to a caller with an empty id.
	assert.NotEqual(t, Owner, Evaluate("", VisibilityPrivate, nil, ""))
}

func TestLevelPredicates(t *testing.T) {
	assert.False(t, None.CanRead())
	assert.False(t, None.CanWrite())

	assert.True(t, Read.CanRead())
	assert.False(t, Read.CanWrite())

	assert.True(t, Write.CanRead())
	assert.True(t, Write.CanWrite())

	assert.True(t, Owner.CanRead())
	assert.True(t, Owner.CanWrite())
}

func TestShareListWith(t *testing.T) {
	var s ShareList

	s = s.With("u1", Read)
	s = s.With("u2", Read)
	require.Len(t, s, 2)

	// Re-granting replaces, never duplicates.
	s = s.With("u1", Write)
	require.Len(t, s, 2)

	level, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, Write, level)

	s = s.Without("u1")
	require.Len(t, s, 1)
	_, ok = s.Get("u1")
	assert.False(t, ok)
}

func TestShareListValidate(t *testing.T) {
	assert.NoError(t, ShareList{{UserID: "u1", Level: Read}, {UserID: "u2", Level: Write}}.Validate())

	err := ShareList{{UserID: "u1", Level: Read}, {UserID: "u1", Level: Write}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = ShareList{{UserID: "u1", Level: Owner}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-grantable")

	assert.Error(t, ShareList{{UserID: "", Level: Read}}.Validate())
}

func TestLevelJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Write)
	require.NoError(t, err)
	assert.Equal(t, `"WRITE"`, string(b))

	var l Level
	require.NoError(t, json.Unmarshal([]byte(`"READ"`), &l))
	assert.Equal(t, Read, l)

	assert.Error(t, json.Unmarshal([]byte(`"ADMIN"`), &l))
}
