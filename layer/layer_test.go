package layer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/weft/effect"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/layer"
	"github.com/on-the-ground/weft/runtime"
	"github.com/on-the-ground/weft/scope"
	"github.com/on-the-ground/weft/services"
)

var (
	tagA = services.NewTag[string]("a")
	tagB = services.NewTag[string]("b")
)

func buildLayer(t *testing.T, l layer.Layer) (*services.Context, *scope.Scope) {
	t.Helper()
	rt := runtime.New()
	t.Cleanup(func() { _ = rt.Shutdown() })

	s := scope.Make()
	ctx, err := runtime.RunSync(rt, layer.Build(l, s))
	require.NoError(t, err)
	return ctx, s
}

func TestLayer_FromValueYieldsOneBinding(t *testing.T) {
	ctx, _ := buildLayer(t, layer.FromValue(tagA, "va"))

	v, err := services.Get(ctx, tagA)
	require.NoError(t, err)
	assert.Equal(t, "va", v)
	assert.Equal(t, 1, ctx.Len())
}

func TestLayer_MergeExposesBothOutputs(t *testing.T) {
	merged := layer.Merge(layer.FromValue(tagA, "va"), layer.FromValue(tagB, "vb"))
	ctx, _ := buildLayer(t, merged)

	a, err := services.Get(ctx, tagA)
	require.NoError(t, err)
	b, err := services.Get(ctx, tagB)
	require.NoError(t, err)
	assert.Equal(t, "va", a)
	assert.Equal(t, "vb", b)
}

func TestLayer_MergeIsRightBiasedOnCollision(t *testing.T) {
	merged := layer.Merge(layer.FromValue(tagA, "left"), layer.FromValue(tagA, "right"))
	ctx, _ := buildLayer(t, merged)

	v, err := services.Get(ctx, tagA)
	require.NoError(t, err)
	assert.Equal(t, "right", v)
}

func TestLayer_ProvideFeedsUpstreamIntoDownstream(t *testing.T) {
	depends := layer.FromEffect(tagB, effect.Map(effect.Service(tagA), func(a string) string {
		return a + "+b"
	}))
	wired := layer.Provide(layer.FromValue(tagA, "va"), depends)
	ctx, _ := buildLayer(t, wired)

	b, err := services.Get(ctx, tagB)
	require.NoError(t, err)
	assert.Equal(t, "va+b", b)

	_, err = services.Get(ctx, tagA)
	require.Error(t, err, "upstream services are consumed, not exposed")
	assert.ErrorIs(t, err, services.ErrServiceNotFound)
}

func TestLayer_ProvideMergeKeepsUpstreamVisible(t *testing.T) {
	depends := layer.FromEffect(tagB, effect.Map(effect.Service(tagA), func(a string) string {
		return a + "+b"
	}))
	wired := layer.ProvideMerge(layer.FromValue(tagA, "va"), depends)
	ctx, _ := buildLayer(t, wired)

	a, err := services.Get(ctx, tagA)
	require.NoError(t, err)
	b, err := services.Get(ctx, tagB)
	require.NoError(t, err)
	assert.Equal(t, "va", a)
	assert.Equal(t, "va+b", b)
}

func TestLayer_ResourcesLiveUntilTheBuildScopeCloses(t *testing.T) {
	released := false
	resourceful := layer.FromEffect(tagA, effect.AcquireRelease(
		effect.Succeed("conn"),
		func(string, exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				released = true
				return struct{}{}
			})
		},
	))

	ctx, s := buildLayer(t, resourceful)
	v, err := services.Get(ctx, tagA)
	require.NoError(t, err)
	assert.Equal(t, "conn", v)
	require.False(t, released, "the service stays alive while the scope is open")

	s.Close(exit.Succeed[any](nil))
	assert.True(t, released)
}

func TestLayer_ToRuntimeDerivesAReadyRuntime(t *testing.T) {
	base := runtime.New()
	defer base.Shutdown()

	released := false
	l := layer.FromEffect(tagA, effect.AcquireRelease(
		effect.Succeed("conn"),
		func(string, exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				released = true
				return struct{}{}
			})
		},
	))

	rt, s, err := layer.ToRuntime(l, base)
	require.NoError(t, err)

	v, err := runtime.RunSync(rt, effect.Service(tagA))
	require.NoError(t, err)
	assert.Equal(t, "conn", v)

	s.Close(exit.Succeed[any](nil))
	assert.True(t, released, "closing the layer scope releases layer resources")
}

func TestLayer_ToRuntimeClosesTheScopeOnBuildFailure(t *testing.T) {
	base := runtime.New()
	defer base.Shutdown()

	boom := errors.New("dial failed")
	released := false
	good := layer.FromEffect(tagA, effect.AcquireRelease(
		effect.Succeed("conn"),
		func(string, exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				released = true
				return struct{}{}
			})
		},
	))
	bad := layer.FromEffect(tagB, effect.Fail[string](boom))

	_, _, err := layer.ToRuntime(layer.Merge(good, bad), base)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, released, "resources of the partial build are released on failure")
}
