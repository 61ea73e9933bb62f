package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("v1")
	require.NoError(t, s.Save(ctx, "k", value))
	value[0] = 'x'

	got, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got, "stored bytes must not alias the caller's slice")

	require.NoError(t, s.Remove(ctx, "k"))
	_, ok = s.Raw("k")
	assert.False(t, ok)
}

func TestStore_Fail(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	s.Fail(boom)
	_, _, err := s.Load(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Save(ctx, "k", []byte("v")), boom)
	assert.ErrorIs(t, s.Remove(ctx, "k"), boom)

	s.Fail(nil)
	assert.NoError(t, s.Save(ctx, "k", []byte("v")))
}
