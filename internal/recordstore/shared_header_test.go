package recordstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrreg/internal/header"
)

func TestRefresh_OnlyCopiesOnChange(t *testing.T) {
	m, _ := newTestManager(t, header.Config{}, Options{})
	ctx := context.Background()

	writer, err := m.Open(ctx, 1, "Scores", []byte("aaaa"))
	require.NoError(t, err)
	defer writer.Close()
	reader, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)
	defer reader.Close()

	changed, err := reader.Refresh()
	require.NoError(t, err)
	assert.False(t, changed)

	before := reader.Bytes()
	_, err = writer.Update([]byte("bb"))
	require.NoError(t, err)

	changed, err = reader.Refresh()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []byte("bbaa"), reader.Bytes())
	assert.Equal(t, writer.Version(), reader.Version())

	// The earlier copy is private and was not overwritten.
	assert.Equal(t, []byte("aaaa"), before)
}

func TestUpdate_PicksUpConcurrentWrites(t *testing.T) {
	m, _ := newTestManager(t, header.Config{}, Options{})
	ctx := context.Background()

	a, err := m.Open(ctx, 1, "Scores", []byte("xx"))
	require.NoError(t, err)
	defer a.Close()
	b, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)
	defer b.Close()

	va, err := a.Update([]byte("ab"))
	require.NoError(t, err)
	vb, err := b.Update([]byte("cd"))
	require.NoError(t, err)
	assert.Equal(t, va+1, vb)

	changed, err := a.Refresh()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []byte("cd"), a.Bytes())
}

func TestClose_LastOwnerDeletes(t *testing.T) {
	m, reg := newTestManager(t, header.Config{}, Options{})
	ctx := context.Background()

	a, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)
	b, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, ok := reg.FindByName(1, "Scores")
	assert.True(t, ok)

	require.NoError(t, b.Close())
	_, ok = reg.FindByName(1, "Scores")
	assert.False(t, ok)
	assert.Zero(t, reg.Stats().BytesInUse)
}

func TestClose_Twice(t *testing.T) {
	m, reg := newTestManager(t, header.Config{}, Options{})
	ctx := context.Background()

	a, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)
	b, err := m.Open(ctx, 1, "Scores", nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Close())
	err = a.Close()
	require.Error(t, err)
	assert.True(t, header.IsReleased(err))

	h, ok := reg.FindByName(1, "Scores")
	require.True(t, ok)
	assert.Equal(t, 1, h.RefCount())
}

func TestRefresh_AfterClose(t *testing.T) {
	m, _ := newTestManager(t, header.Config{}, Options{})

	sh, err := m.Open(context.Background(), 1, "Scores", nil)
	require.NoError(t, err)
	require.NoError(t, sh.Close())

	_, err = sh.Refresh()
	require.Error(t, err)
	assert.True(t, header.IsReleased(err))

	_, err = sh.Update([]byte("x"))
	assert.True(t, header.IsReleased(err))
}
