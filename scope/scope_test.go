package scope_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/scope"
)

func TestScope_CloseRunsFinalizersInReverseOrder(t *testing.T) {
	s := scope.Make()
	var log []string

	for _, label := range []string{"a", "b", "c"} {
		label := label
		require.NoError(t, s.AddFinalizer(func(exit.Exit[any]) error {
			log = append(log, label)
			return nil
		}))
	}

	s.Close(exit.Succeed[any](nil))
	assert.Equal(t, []string{"c", "b", "a"}, log)
}

func TestScope_CloseIsIdempotent(t *testing.T) {
	s := scope.Make()
	calls := 0
	require.NoError(t, s.AddFinalizer(func(exit.Exit[any]) error {
		calls++
		return nil
	}))

	first := s.Close(exit.Succeed[any]("done"))
	second := s.Close(exit.Fail[any](cause.Fail(errors.New("late"))))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, second.IsSuccess())
}

func TestScope_AddFinalizerAfterCloseFails(t *testing.T) {
	s := scope.Make()
	s.Close(exit.Succeed[any](nil))

	err := s.AddFinalizer(func(exit.Exit[any]) error { return nil })
	assert.ErrorIs(t, err, scope.ErrClosedScope)
	assert.True(t, s.IsClosed())
}

func TestScope_FinalizerSeesTriggeringExit(t *testing.T) {
	s := scope.Make()
	boom := errors.New("boom")
	var seen exit.Exit[any]

	require.NoError(t, s.AddFinalizer(func(ex exit.Exit[any]) error {
		seen = ex
		return nil
	}))

	s.Close(exit.Fail[any](cause.Fail(boom)))
	require.True(t, seen.IsFailure())
	assert.Equal(t, boom, seen.Cause().FirstFailure())
}

func TestScope_FinalizerFailureFoldsIntoCause(t *testing.T) {
	s := scope.Make()
	boom := errors.New("boom")
	leak := errors.New("release failed")

	require.NoError(t, s.AddFinalizer(func(exit.Exit[any]) error {
		return leak
	}))

	closed := s.Close(exit.Fail[any](cause.Fail(boom)))
	require.True(t, closed.IsFailure())
	// The original failure is kept and the finalizer failure is appended.
	assert.Equal(t, []error{boom, leak}, closed.Cause().Failures())
}

func TestScope_ConcurrentClosersAgreeOnTheFoldedResult(t *testing.T) {
	s := scope.Make()
	leak := errors.New("release failed")
	var calls atomic.Int32

	require.NoError(t, s.AddFinalizer(func(exit.Exit[any]) error {
		calls.Add(1)
		// Keep the close in flight so the losing closer has to wait for
		// the folded result instead of reading an unset one.
		time.Sleep(5 * time.Millisecond)
		return leak
	}))

	start := make(chan struct{})
	results := make(chan exit.Exit[any], 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			results <- s.Close(exit.Succeed[any](nil))
		}()
	}
	close(start)

	first, second := <-results, <-results
	assert.Equal(t, int32(1), calls.Load())
	require.True(t, first.IsFailure())
	assert.Equal(t, first, second)
	assert.ErrorIs(t, first.Cause(), leak)
}

func TestScope_FinalizerPanicBecomesDefect(t *testing.T) {
	s := scope.Make()
	require.NoError(t, s.AddFinalizer(func(exit.Exit[any]) error {
		panic("finalizer bug")
	}))

	closed := s.Close(exit.Succeed[any](nil))
	require.True(t, closed.IsFailure())
	assert.Equal(t, []any{"finalizer bug"}, closed.Cause().Defects())
}
