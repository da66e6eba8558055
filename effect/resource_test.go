package effect_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/weft/effect"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/runtime"
	"github.com/on-the-ground/weft/scope"
)

func TestAcquireUseRelease_ReleaseRunsOnSuccess(t *testing.T) {
	rt := newRuntime(t)
	var events []string

	e := effect.AcquireUseRelease(
		effect.Sync(func() string { events = append(events, "acquire"); return "conn" }),
		func(res string) effect.Effect[int] {
			return effect.Sync(func() int { events = append(events, "use:"+res); return 42 })
		},
		func(res string, ex exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				events = append(events, "release:"+res)
				return struct{}{}
			})
		},
	)

	v, err := runtime.RunSync(rt, e)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []string{"acquire", "use:conn", "release:conn"}, events)
}

func TestAcquireUseRelease_ReleaseRunsExactlyOnceOnUseFailure(t *testing.T) {
	rt := newRuntime(t)
	boom := errors.New("boom")
	releases := 0
	var seen exit.Exit[any]

	e := effect.AcquireUseRelease(
		effect.Succeed("conn"),
		func(string) effect.Effect[int] { return effect.Fail[int](boom) },
		func(_ string, ex exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				releases++
				seen = ex
				return struct{}{}
			})
		},
	)

	_, err := runtime.RunSync(rt, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, releases)
	require.True(t, seen.IsFailure(), "release must observe the failing exit")
	assert.Equal(t, boom, seen.Cause().FirstFailure())
}

func TestAcquireUseRelease_NoReleaseWhenAcquireFails(t *testing.T) {
	rt := newRuntime(t)
	boom := errors.New("acquire failed")
	releases := 0

	e := effect.AcquireUseRelease(
		effect.Fail[string](boom),
		func(string) effect.Effect[int] { return effect.Succeed(0) },
		func(string, exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				releases++
				return struct{}{}
			})
		},
	)

	_, err := runtime.RunSync(rt, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, releases, "a failed acquire owns no resource to release")
}

func TestAcquireUseRelease_NestedReleasesInReverseOrder(t *testing.T) {
	rt := newRuntime(t)
	var events []string

	open := func(name string) effect.Effect[string] {
		return effect.Sync(func() string {
			events = append(events, "open:"+name)
			return name
		})
	}
	shut := func(name string, _ exit.Exit[any]) effect.Effect[struct{}] {
		return effect.Sync(func() struct{} {
			events = append(events, "close:"+name)
			return struct{}{}
		})
	}

	e := effect.AcquireUseRelease(open("outer"), func(string) effect.Effect[struct{}] {
		return effect.AcquireUseRelease(open("inner"), func(string) effect.Effect[struct{}] {
			return effect.Succeed(struct{}{})
		}, shut)
	}, shut)

	_, err := runtime.RunSync(rt, e)
	require.NoError(t, err)
	assert.Equal(t, []string{"open:outer", "open:inner", "close:inner", "close:outer"}, events)
}

func TestExtend_TiesResourceToOuterScope(t *testing.T) {
	rt := newRuntime(t)
	s := scope.Make()
	released := false

	e := effect.Extend(
		effect.AcquireRelease(
			effect.Succeed("res"),
			func(string, exit.Exit[any]) effect.Effect[struct{}] {
				return effect.Sync(func() struct{} {
					released = true
					return struct{}{}
				})
			},
		),
		s,
	)

	v, err := runtime.RunSync(rt, e)
	require.NoError(t, err)
	assert.Equal(t, "res", v)
	assert.False(t, released, "resource outlives the effect until the scope closes")

	s.Close(exit.Succeed[any](nil))
	assert.True(t, released)
}

func TestAddFinalizer_RunsOnScopeClose(t *testing.T) {
	rt := newRuntime(t)
	s := scope.Make()
	finalized := false

	_, err := runtime.RunSync(rt, effect.Extend(
		effect.AddFinalizer(func(exit.Exit[any]) effect.Effect[struct{}] {
			return effect.Sync(func() struct{} {
				finalized = true
				return struct{}{}
			})
		}),
		s,
	))
	require.NoError(t, err)
	require.False(t, finalized)

	s.Close(exit.Succeed[any](nil))
	assert.True(t, finalized)
}

func TestAcquireRelease_ClosedScopeRejectsAcquisition(t *testing.T) {
	rt := newRuntime(t)
	s := scope.Make()
	s.Close(exit.Succeed[any](nil))

	e := effect.Extend(
		effect.AcquireRelease(
			effect.Succeed("res"),
			func(string, exit.Exit[any]) effect.Effect[struct{}] {
				return effect.Succeed(struct{}{})
			},
		),
		s,
	)

	_, err := runtime.RunSync(rt, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, scope.ErrClosedScope)
}
