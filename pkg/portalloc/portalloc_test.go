package portalloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reqPort(p int) *int { return &p }

func TestAllocateExplicitPortSuccess(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30010})
	result, err := a.Allocate(map[string]Spec{
		"http": {Internal: 80, Requested: reqPort(8080)},
	}, map[int]bool{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"http": 8080}, result)
}

func TestAllocateExplicitPortCollisionFails(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30010})
	_, err := a.Allocate(map[string]Spec{
		"http": {Internal: 80, Requested: reqPort(8080)},
	}, map[int]bool{8080: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestAllocateDynamicPicksLowestFree(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30010})
	result, err := a.Allocate(map[string]Spec{
		"http": {Internal: 80},
	}, map[int]bool{30000: true, 30001: true})
	require.NoError(t, err)
	assert.Equal(t, 30002, result["http"])
}

func TestAllocateDynamicExhaustedFails(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30000})
	_, err := a.Allocate(map[string]Spec{
		"http": {Internal: 80},
	}, map[int]bool{30000: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestAllocateAllOrNothing(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30000})
	_, err := a.Allocate(map[string]Spec{
		"a": {Internal: 80},
		"b": {Internal: 81},
	}, map[int]bool{})
	require.Error(t, err, "only one dynamic port is available, so the whole call must fail")
}

func TestAllocateDeterministic(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30010})
	ports := map[string]Spec{
		"c": {Internal: 82},
		"a": {Internal: 80},
		"b": {Internal: 81},
	}
	first, err := a.Allocate(ports, map[int]bool{})
	require.NoError(t, err)
	second, err := a.Allocate(ports, map[int]bool{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 30000, first["a"])
	assert.Equal(t, 30001, first["b"])
	assert.Equal(t, 30002, first["c"])
}

func TestAllocateNoMutationOnFailure(t *testing.T) {
	a := New(Range{Lo: 30000, Hi: 30000})
	used := map[int]bool{}
	_, err := a.Allocate(map[string]Spec{
		"a": {Internal: 80},
		"b": {Internal: 81},
	}, used)
	require.Error(t, err)
	assert.Empty(t, used, "Allocate must never mutate the caller's used set")
}
