package pulls

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	scenarioTimes    = []float64{0, 1, 2, 3, 4, 5}
	scenarioThrottle = []float64{10, 60, 65, 70, 20, 10}
)

func column(t *testing.T, d *models.Datalog, name string) []float64 {
	t.Helper()
	col, ok := d.Column(name)
	require.True(t, ok, "missing column %s", name)
	return col
}

func TestSegment_SinglePull(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, scenarioThrottle)

	pulls, err := Segment(log, 50, 1)
	require.NoError(t, err)
	require.Len(t, pulls, 1)

	p := pulls[0]
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 1, p.StartRow)
	assert.Equal(t, 3, p.EndRow)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []float64{1, 2, 3}, column(t, p.Data, models.TimeChannel))
	assert.Equal(t, []float64{60, 65, 70}, column(t, p.Data, models.ThrottleChannel))
	assert.Equal(t, log.Channels, p.Data.Channels)

	summary := Summarize(pulls)
	assert.Equal(t, map[int]models.PullSummary{1: {Start: 1, Duration: 2}}, summary)
}

func TestSegment_TimeFilterTooHigh(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, scenarioThrottle)

	pulls, err := Segment(log, 50, 3)
	require.NoError(t, err)
	assert.NotNil(t, pulls)
	assert.Empty(t, pulls)
	assert.Empty(t, Summarize(pulls))
}

func TestSegment_DurationEqualToFilterIsDropped(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, scenarioThrottle)

	pulls, err := Segment(log, 50, 2)
	require.NoError(t, err)
	assert.Empty(t, pulls)

	pulls, err = Segment(log, 50, 1.999)
	require.NoError(t, err)
	assert.Len(t, pulls, 1)
}

func TestSegment_ThresholdIsInclusive(t *testing.T) {
	log := testutil.ThrottleLog([]float64{0, 1, 2, 3}, []float64{49.99, 50, 50, 49})

	pulls, err := Segment(log, 50, 0.5)
	require.NoError(t, err)
	require.Len(t, pulls, 1)
	assert.Equal(t, 1, pulls[0].StartRow)
	assert.Equal(t, 2, pulls[0].EndRow)
}

func TestSegment_TwoRunsNeverMerge(t *testing.T) {
	times := []float64{0, 0.5, 1.0, 1.5, 2.0, 2.5, 3.0, 3.5}
	throttle := []float64{80, 85, 90, 49, 95, 99, 100, 100}
	log := testutil.ThrottleLog(times, throttle)

	pulls, err := Segment(log, 50, 0.5)
	require.NoError(t, err)
	require.Len(t, pulls, 2)

	assert.Equal(t, 0, pulls[0].StartRow)
	assert.Equal(t, 2, pulls[0].EndRow)
	assert.Equal(t, 4, pulls[1].StartRow)
	assert.Equal(t, 7, pulls[1].EndRow)
	assert.Equal(t, 2, pulls[1].Number)

	summary := Summarize(pulls)
	assert.Equal(t, models.PullSummary{Start: 0, Duration: 1}, summary[1])
	assert.Equal(t, models.PullSummary{Start: 2, Duration: 1.5}, summary[2])
}

func TestSegment_WholeLogIsOnePull(t *testing.T) {
	times := []float64{10, 10.1, 10.25, 10.4, 11}
	log := testutil.ThrottleLog(times, []float64{100, 100, 99, 98, 100})

	pulls, err := Segment(log, 50, 0.5)
	require.NoError(t, err)
	require.Len(t, pulls, 1)
	assert.Equal(t, 0, pulls[0].StartRow)
	assert.Equal(t, log.Len()-1, pulls[0].EndRow)
	assert.Equal(t, times, column(t, pulls[0].Data, models.TimeChannel))
}

func TestSegment_NoRowsPass(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, []float64{1, 2, 3, 4, 5, 6})

	pulls, err := Segment(log, 50, 0.1)
	require.NoError(t, err)
	assert.Empty(t, pulls)
	assert.Empty(t, Summarize(pulls))
}

func TestSegment_EmptyLog(t *testing.T) {
	log := testutil.ThrottleLog(nil, nil)

	pulls, err := Segment(log, 50, 0.5)
	require.NoError(t, err)
	assert.Empty(t, pulls)
}

func TestSegment_SingleSampleSpikeAlwaysDropped(t *testing.T) {
	log := testutil.ThrottleLog([]float64{0, 1, 2}, []float64{0, 100, 0})

	pulls, err := Segment(log, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, pulls)
}

func TestSegment_NoDebounce(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4, 5, 6}
	throttle := []float64{90, 90, 90, 89, 90, 90, 90}
	log := testutil.ThrottleLog(times, throttle)

	pulls, err := Segment(log, 90, 1)
	require.NoError(t, err)
	require.Len(t, pulls, 2)
	assert.Equal(t, 2, pulls[0].EndRow)
	assert.Equal(t, 4, pulls[1].StartRow)
}

func TestSegment_NaNReadings(t *testing.T) {
	nan := math.NaN()
	times := []float64{0, 1, 2, 3, 4, 5}
	throttle := []float64{90, 90, nan, 90, 90, 90}
	log := testutil.ThrottleLog(times, throttle)

	pulls, err := Segment(log, 50, 0.5)
	require.NoError(t, err)
	require.Len(t, pulls, 2)
	assert.Equal(t, 1, pulls[0].EndRow)
	assert.Equal(t, 3, pulls[1].StartRow)

	log = testutil.ThrottleLog([]float64{0, 1, nan}, []float64{90, 90, 90})
	pulls, err = Segment(log, 50, 0.5)
	require.NoError(t, err)
	assert.Empty(t, pulls)
}

func TestSegment_DoesNotMutateInput(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, scenarioThrottle)
	before := log.Slice(0, log.Len())

	pulls, err := Segment(log, 50, 1)
	require.NoError(t, err)
	require.Len(t, pulls, 1)

	col := column(t, pulls[0].Data, models.ThrottleChannel)
	col[0] = -1

	assert.Equal(t, before.Values, log.Values)
	assert.Equal(t, before.Channels, log.Channels)
}

func TestSegment_MissingChannels(t *testing.T) {
	noThrottle := models.NewDatalog([]string{models.TimeChannel, "Boost (psi)"}, [][]float64{{0, 1}, {1, 2}}, "")
	_, err := Segment(noThrottle, 50, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingChannel))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{models.ThrottleChannel}, vErr.Missing)

	noTime := models.NewDatalog([]string{models.ThrottleChannel}, [][]float64{{90, 90}}, "")
	_, err = Segment(noTime, 50, 0.5)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{models.TimeChannel}, vErr.Missing)

	_, err = Segment(nil, 50, 0.5)
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Missing, 2)
	assert.Contains(t, err.Error(), `"Time (sec)"`)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Empty(t, Summarize(nil))
	assert.NotNil(t, Summarize(nil))
}

func TestAnalyze(t *testing.T) {
	log := testutil.ThrottleLog(scenarioTimes, scenarioThrottle)
	th := models.Thresholds{MinThrottle: 50, TimeFilter: 1}

	set, err := Analyze(log, th)
	require.NoError(t, err)
	assert.Equal(t, th, set.Thresholds)
	assert.Len(t, set.Pulls, 1)
	assert.Equal(t, models.PullSummary{Start: 1, Duration: 2}, set.Summary[1])
	assert.False(t, set.Empty())
	assert.False(t, set.CreatedAt.IsZero())

	_, err = Analyze(models.NewDatalog([]string{"RPM"}, [][]float64{{1}}, ""), th)
	assert.Error(t, err)
}

// randomLog builds an irregularly sampled log whose throttle wanders
// between closed and wide open.
func randomLog(rng *rand.Rand, n int) *models.Datalog {
	times := make([]float64, n)
	throttle := make([]float64, n)
	t := 0.0
	for i := 0; i < n; i++ {
		t += 0.05 + rng.Float64()*0.3
		times[i] = t
		if rng.Intn(4) == 0 {
			throttle[i] = rng.Float64() * 100
		} else if i > 0 {
			throttle[i] = throttle[i-1]
		}
	}
	return testutil.ThrottleLog(times, throttle)
}

func TestSegment_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		log := randomLog(rng, rng.Intn(120))
		m := float64(rng.Intn(100))
		tf := rng.Float64() * 2

		pulls, err := Segment(log, m, tf)
		require.NoError(t, err)

		again, err := Segment(log, m, tf)
		require.NoError(t, err)
		assert.Equal(t, pulls, again, "segmentation must be a pure function")

		summary := Summarize(pulls)
		assert.Len(t, summary, len(pulls))

		prevEnd := -2
		for i, p := range pulls {
			times := column(t, p.Data, models.TimeChannel)
			throttle := column(t, p.Data, models.ThrottleChannel)

			for _, v := range throttle {
				assert.GreaterOrEqual(t, v, m)
			}
			duration := times[len(times)-1] - times[0]
			assert.Greater(t, duration, tf)

			assert.Greater(t, p.StartRow, prevEnd+1, "pulls must be ordered and separated by a gap")
			prevEnd = p.EndRow

			parentThrottle := column(t, log, models.ThrottleChannel)
			if p.StartRow > 0 {
				assert.Less(t, parentThrottle[p.StartRow-1], m, "run must be maximal at its start")
			}
			if p.EndRow < log.Len()-1 {
				assert.Less(t, parentThrottle[p.EndRow+1], m, "run must be maximal at its end")
			}

			assert.Equal(t, times[0], summary[i+1].Start)
			assert.Equal(t, duration, summary[i+1].Duration)
		}
	}
}

func TestSegment_RaggedColumns(t *testing.T) {
	ragged := models.NewDatalog(
		[]string{models.TimeChannel, models.ThrottleChannel},
		[][]float64{{0, 1}, {90, 90, 90, 90}},
		"",
	)

	var pulls []models.Pull
	var err error
	require.NotPanics(t, func() { pulls, err = Segment(ragged, 50, 0.5) })
	require.Error(t, err)
	assert.Nil(t, pulls)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Empty(t, vErr.Missing)
	assert.Equal(t, []string{models.ThrottleChannel}, vErr.Ragged)
	assert.Contains(t, err.Error(), "row count differs")

	shortBoost := models.NewDatalog(
		[]string{models.TimeChannel, models.ThrottleChannel, "Boost (psi)"},
		[][]float64{{0, 1, 2}, {90, 90, 90}, {1}},
		"",
	)
	_, err = Analyze(shortBoost, models.Thresholds{MinThrottle: 50, TimeFilter: 0.5})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"Boost (psi)"}, vErr.Ragged)

	noTimeValues := models.NewDatalog([]string{models.TimeChannel, models.ThrottleChannel}, [][]float64{}, "")
	_, err = Segment(noTimeValues, 50, 0.5)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{models.TimeChannel}, vErr.Ragged)
}
