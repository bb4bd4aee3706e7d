package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	value, err := s.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, s.Set("Addresses", "0xabc 0xdef"))
	value, err = s.Get("Addresses")
	require.NoError(t, err)
	assert.Equal(t, "0xabc 0xdef", value)
}

func TestLevelDBStoreEphemeral(t *testing.T) {
	s, err := NewLevelDBStore("", nil)
	require.NoError(t, err)
	defer s.Close()

	value, err := s.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, s.Set("DefaultChainID", "137"))
	value, err = s.Get("DefaultChainID")
	require.NoError(t, err)
	assert.Equal(t, "137", value)
}

func TestLevelDBStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewLevelDBStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("DefaultJSONRPCURL", "https://node.example.org"))
	require.NoError(t, s.Close())

	reopened, err := NewLevelDBStore(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get("DefaultJSONRPCURL")
	require.NoError(t, err)
	assert.Equal(t, "https://node.example.org", value)
}
