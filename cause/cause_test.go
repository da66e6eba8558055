package cause_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/fiberid"
)

func TestCause_FailCarriesError(t *testing.T) {
	boom := errors.New("boom")
	c := cause.Fail(boom)

	assert.Equal(t, cause.KindFail, c.Kind())
	assert.Equal(t, []error{boom}, c.Failures())
	assert.True(t, c.IsFailureOnly())
	assert.False(t, c.IsInterrupted())
	assert.True(t, errors.Is(c, boom))
}

func TestCause_DieIsNotRecoverableFailure(t *testing.T) {
	c := cause.Die("bug")

	assert.Equal(t, cause.KindDie, c.Kind())
	assert.Empty(t, c.Failures())
	assert.Equal(t, []any{"bug"}, c.Defects())
	assert.False(t, c.IsFailureOnly())
}

func TestCause_InterruptCarriesFiberIdentity(t *testing.T) {
	id := fiberid.New()
	c := cause.Interrupt(id)

	assert.True(t, c.IsInterrupted())
	assert.Equal(t, id, c.Interrupter())
	assert.Contains(t, c.Error(), id.String())
}

func TestCause_CompositePreservesEverySide(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")

	par := cause.Parallel(cause.Fail(errA), cause.Fail(errB))
	require.Equal(t, cause.KindParallel, par.Kind())
	assert.Equal(t, []error{errA, errB}, par.Failures())
	assert.True(t, errors.Is(par, errA))
	assert.True(t, errors.Is(par, errB))

	seq := cause.Sequential(par, cause.Die("cleanup bug"))
	assert.Equal(t, []error{errA, errB}, seq.Failures())
	assert.Equal(t, []any{"cleanup bug"}, seq.Defects())
	assert.False(t, seq.IsFailureOnly())
}

func TestCause_CompositionIsNilTolerant(t *testing.T) {
	c := cause.Fail(errors.New("only"))

	assert.Same(t, c, cause.Sequential(nil, c))
	assert.Same(t, c, cause.Sequential(c, nil))
	assert.Same(t, c, cause.Parallel(nil, c))
	assert.Same(t, c, cause.Parallel(c, nil))
}

func TestCause_FirstFailureIsLeftmost(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	c := cause.Sequential(cause.Fail(errA), cause.Fail(errB))

	assert.Equal(t, errA, c.FirstFailure())
}
