package flat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parents(t *Table[string]) []int {
	out := make([]int, t.Len())
	for i := range out {
		e, _ := t.At(i)
		out[i] = e.Parent
	}
	return out
}

func items(t *Table[string]) []string {
	out := make([]string, t.Len())
	for i := range out {
		e, _ := t.At(i)
		out[i] = e.Item
	}
	return out
}

func TestTableExpandShiftsLaterParents(t *testing.T) {
	var tab Table[string]
	a := tab.Append(NoParent, "a")
	b := tab.Append(NoParent, "b")
	_, err := tab.Expand(b, []string{"b0", "b1"})
	require.NoError(t, err)
	// a, b, b0, b1
	n, err := tab.Expand(a, []string{"a0"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{"a", "a0", "b", "b0", "b1"}, items(&tab))
	assert.Equal(t, []int{NoParent, 0, NoParent, 2, 2}, parents(&tab))
	assert.Equal(t, []int{3, 4}, tab.Children(2))
}

func TestTableExpandErrors(t *testing.T) {
	var tab Table[string]
	tab.Append(NoParent, "a")

	_, err := tab.Expand(3, nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	n, err := tab.Expand(0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = tab.Expand(0, []string{"x"})
	assert.ErrorIs(t, err, ErrAlreadyExpanded)
}

func TestTableSetAndAt(t *testing.T) {
	var tab Table[string]
	tab.Append(NoParent, "a")
	require.NoError(t, tab.Set(0, "b"))
	e, err := tab.At(0)
	require.NoError(t, err)
	assert.Equal(t, "b", e.Item)

	assert.ErrorIs(t, tab.Set(1, "c"), ErrOutOfRange)
	_, err = tab.At(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
