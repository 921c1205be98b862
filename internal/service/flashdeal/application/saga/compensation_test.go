package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompensations_TriggerRunsInReverseOrder(t *testing.T) {
	comps := New("batch-1")

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		comps.Add(func(context.Context) { order = append(order, i) })
	}

	comps.Trigger(context.Background())
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestCompensations_TriggerClearsTable(t *testing.T) {
	comps := New("batch-1")

	var calls int
	comps.Add(func(context.Context) { calls++ })

	comps.Trigger(context.Background())
	comps.Trigger(context.Background())
	require.Equal(t, 1, calls)
}

func TestCompensations_EmptyTriggerIsNoop(t *testing.T) {
	comps := New("batch-1")
	comps.Trigger(context.Background())
}
