package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadDigest(t *testing.T) {
	a := PayloadDigest([]byte{1, 2, 3, 4})
	b := PayloadDigest([]byte{1, 2, 3, 4})
	c := PayloadDigest([]byte{1, 2, 3, 5})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, PayloadDigest(nil), PayloadDigest([]byte{0}))
}

func TestTraceDigest_KeyOrderIndependent(t *testing.T) {
	d1, err := TraceDigest(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	d2, err := TraceDigest(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	_, err = TraceDigest(map[string]any{"f": 0.5})
	assert.Error(t, err)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`1`)
	assert.NotEqual(t, hashWithDomain(DomainPayload, data), hashWithDomain(DomainTrace, data))
}
