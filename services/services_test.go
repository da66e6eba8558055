package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/weft/services"
)

func TestContext_AddAndGet(t *testing.T) {
	tag := services.NewTag[int]("answer")
	ctx := services.Add(services.Empty(), tag, 42)

	v, err := services.Get(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestContext_GetUnboundTagFails(t *testing.T) {
	tag := services.NewTag[string]("missing")

	_, err := services.Get(services.Empty(), tag)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrServiceNotFound)

	var notFound *services.ServiceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Label)
}

func TestContext_GetOptionNeverFails(t *testing.T) {
	tag := services.NewTag[string]("maybe")

	_, ok := services.GetOption(services.Empty(), tag)
	assert.False(t, ok)

	ctx := services.Add(services.Empty(), tag, "here")
	v, ok := services.GetOption(ctx, tag)
	assert.True(t, ok)
	assert.Equal(t, "here", v)
}

func TestContext_TagIdentityNotLabelIsTheKey(t *testing.T) {
	tagA := services.NewTag[int]("same-label")
	tagB := services.NewTag[int]("same-label")

	ctx := services.Add(services.Empty(), tagA, 1)
	_, err := services.Get(ctx, tagB)
	assert.Error(t, err)
}

func TestContext_AddIsCopyOnWrite(t *testing.T) {
	tag := services.NewTag[int]("n")
	base := services.Add(services.Empty(), tag, 1)
	grown := services.Add(base, tag, 2)

	v, err := services.Get(base, tag)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = services.Get(grown, tag)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestContext_MergeIsRightBiased(t *testing.T) {
	shared := services.NewTag[string]("shared")
	onlyLeft := services.NewTag[string]("left")

	left := services.Add(services.Add(services.Empty(), shared, "left"), onlyLeft, "keep")
	right := services.Add(services.Empty(), shared, "right")

	merged := left.Merge(right)

	v, err := services.Get(merged, shared)
	require.NoError(t, err)
	assert.Equal(t, "right", v)

	v, err = services.Get(merged, onlyLeft)
	require.NoError(t, err)
	assert.Equal(t, "keep", v)
}
