package parser

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Scenario(t *testing.T) {
	path := testutil.WriteDatalog(t, t.TempDir(), "datalog1.csv", testutil.ScenarioCSV())

	log, info, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, testutil.SampleInfo, info)
	assert.Equal(t, info, log.Info)
	assert.Equal(t, []string{models.TimeChannel, "Engine Speed (rpm)", models.ThrottleChannel, "Boost (psi)"}, log.Channels)
	assert.Equal(t, 6, log.Len())

	throttle, ok := log.Column(models.ThrottleChannel)
	require.True(t, ok)
	assert.Equal(t, []float64{10, 60, 65, 70, 20, 10}, throttle)

	boost, _ := log.Column("Boost (psi)")
	assert.Equal(t, -8.1, boost[0])
	assert.False(t, log.HasChannel(testutil.SampleInfo))
}

func TestLoad_DecodesWindows1252(t *testing.T) {
	content := testutil.CSVDatalog(
		[]string{models.TimeChannel, "Intake Temp (°F)", models.ThrottleChannel},
		[][]string{{"0", "85", "12"}},
	)
	path := testutil.WriteDatalog(t, t.TempDir(), "temp.csv", content)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\xb0F", "fixture must be single-byte encoded")

	log, _, err := Load(path)
	require.NoError(t, err)
	assert.True(t, log.HasChannel("Intake Temp (°F)"))
}

func TestLoad_StripsByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte(testutil.ScenarioCSV())...)
	require.NoError(t, os.WriteFile(path, content, 0644))

	log, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, models.TimeChannel, log.Channels[0])
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestParseReader_FormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
		column  string
	}{
		{"empty file", "", 1, ""},
		{"single header column", "Time (sec)\r\n0\r\n", 1, ""},
		{"non-numeric reading", "Time (sec),Throttle Pos (%),info\r\n0,10,\r\n1,abc,\r\n", 3, models.ThrottleChannel},
		{"short row", "Time (sec),Throttle Pos (%),RPM (rpm),info\r\n0,10\r\n", 2, ""},
		{"bare quote", "Time (sec),Throttle Pos (%),info\r\n0,1\"0,\r\n", 2, ""},
	}

	p := NewDatalogCSVParser(',')
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseReader(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDatalog))

			var fErr *FormatError
			require.True(t, errors.As(err, &fErr))
			assert.Equal(t, tt.line, fErr.Line)
			assert.Equal(t, tt.column, fErr.Column)
		})
	}
}

func TestParseReader_EmptyCellsAreNaN(t *testing.T) {
	content := "Time (sec),Throttle Pos (%),Knock (deg),info\r\n0,10,,\r\n1,20,-1.4,\r\n"

	log, err := NewDatalogCSVParser(',').ParseReader(strings.NewReader(content))
	require.NoError(t, err)

	knock, _ := log.Column("Knock (deg)")
	assert.True(t, math.IsNaN(knock[0]))
	assert.Equal(t, -1.4, knock[1])
}

func TestParseReader_HeaderOnly(t *testing.T) {
	log, err := NewDatalogCSVParser(',').ParseReader(strings.NewReader("Time (sec),Throttle Pos (%),info\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, "info", log.Info)
	assert.True(t, log.HasChannel(models.ThrottleChannel))
}

func TestParseReader_KeepsFileOrder(t *testing.T) {
	// Time is not validated: rows stay in file order even when it goes backwards.
	content := "Time (sec),Throttle Pos (%),info\r\n2,10\r\n1,20\r\n\r\n3,30,extra,cells\r\n"

	log, err := NewDatalogCSVParser(',').ParseReader(strings.NewReader(content))
	require.NoError(t, err)

	times, _ := log.Column(models.TimeChannel)
	assert.Equal(t, []float64{2, 1, 3}, times)
}

func TestParseReader_Semicolon(t *testing.T) {
	content := "Time (sec);Throttle Pos (%);AP Info\n0;55;\n0.5;60;\n"

	log, err := NewDatalogCSVParser(';').ParseReader(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, "AP Info", log.Info)
}
