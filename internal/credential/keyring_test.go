package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyAccessToken, "token-1"))
	got, err := s.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "token-1", got)

	require.NoError(t, s.Set(KeyAccessToken, "token-2"))
	got, err = s.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "token-2", got)

	require.NoError(t, s.Delete(KeyAccessToken))
	_, err = s.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(KeyAccessToken), "deleting twice is fine")
}
