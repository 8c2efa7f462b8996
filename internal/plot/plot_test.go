package plot

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelLabel(t *testing.T) {
	tests := []struct {
		in, label, unit string
	}{
		{"Boost (psi)", "Boost", "psi"},
		{"Throttle Pos (%)", "Throttle Pos", "%"},
		{"Dyn Adv Mult (DAM)", "Dyn Adv Mult", "DAM"},
		{"Gear Position", "Gear Position", ""},
		{"Odd (unit) trailing", "Odd (unit) trailing", ""},
	}
	for _, tt := range tests {
		label, unit := ChannelLabel(tt.in)
		assert.Equal(t, tt.label, label, tt.in)
		assert.Equal(t, tt.unit, unit, tt.in)
	}
}

func TestValuesMarshalNaNAsNull(t *testing.T) {
	data, err := json.Marshal(Values{1.5, math.NaN(), math.Inf(1), -2})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,null,null,-2]`, string(data))
}

func TestNewSeries(t *testing.T) {
	log := testutil.ThrottleLog([]float64{0, 1, 2, 3}, []float64{10, 60, 70, 80})
	pull := models.Pull{Number: 1, StartRow: 1, EndRow: 3, Data: log.Slice(1, 4)}

	s, err := NewSeries(pull, models.ThrottleChannel)
	require.NoError(t, err)
	assert.Equal(t, "Throttle Pos", s.Label)
	assert.Equal(t, "%", s.Unit)
	assert.Equal(t, Values{1, 2, 3}, s.X)
	assert.Equal(t, Values{60, 70, 80}, s.Y)

	_, err = NewSeries(pull, "Nope (x)")
	assert.Error(t, err)
	_, err = NewSeries(pull, models.TimeChannel)
	assert.Error(t, err)
}

func TestPlottable(t *testing.T) {
	log := testutil.ThrottleLog([]float64{0}, []float64{1})
	assert.Equal(t, []string{"Engine Speed (rpm)", models.ThrottleChannel}, Plottable(log))
}

func TestAxisTable_AssignAndEvict(t *testing.T) {
	var table AxisTable

	axis, evicted := table.Assign("Boost (psi)")
	assert.Equal(t, 0, axis)
	assert.Empty(t, evicted)

	axis, evicted = table.Assign("Engine Speed (rpm)")
	assert.Equal(t, 1, axis)
	assert.Empty(t, evicted)

	axis, _ = table.Assign("Boost (psi)")
	assert.Equal(t, 0, axis, "existing channel keeps its axis")

	axis, evicted = table.Assign("Knock (deg)")
	assert.Equal(t, 0, axis)
	assert.Equal(t, "Boost (psi)", evicted)

	axis, evicted = table.Assign("AFR (AFR)")
	assert.Equal(t, 1, axis)
	assert.Equal(t, "Engine Speed (rpm)", evicted)

	assert.Equal(t, []Assignment{{"Knock (deg)", 0}, {"AFR (AFR)", 1}}, table.Assignments())
}

func TestAxisTable_ReleasePromotesTwin(t *testing.T) {
	var table AxisTable
	table.Assign("A")
	table.Assign("B")

	assert.True(t, table.Release("A"))
	axis, ok := table.AxisOf("B")
	require.True(t, ok)
	assert.Equal(t, 0, axis)
	assert.Equal(t, 1, table.Len())

	axis, evicted := table.Assign("C")
	assert.Equal(t, 1, axis)
	assert.Empty(t, evicted)

	assert.True(t, table.Release("C"))
	assert.False(t, table.Release("C"))
	assert.Equal(t, []Assignment{{"B", 0}}, table.Assignments())

	table.Clear()
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Assignments())
}

func TestAxisTable_EvictsOldestAfterPromotion(t *testing.T) {
	var table AxisTable
	table.Assign("A")
	table.Assign("B")
	table.Release("A") // B promoted to axis 0, still the oldest
	table.Assign("C")  // axis 1

	axis, evicted := table.Assign("D")
	assert.Equal(t, 0, axis)
	assert.Equal(t, "B", evicted)
}
