package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datalog-plotter/backend/internal/models"
	"golang.org/x/text/encoding/charmap"
)

// SampleInfo mimics the header cell tuning tools append to every export.
const SampleInfo = "AP Info:[AP3-SUB-004 v1.7.4.0-17552][2015 USDM Subaru WRX MT]"

// CSVDatalog renders a datalog export: header cells plus SampleInfo, then
// each row followed by an empty info cell.
func CSVDatalog(channels []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(append(append([]string(nil), channels...), SampleInfo), ","))
	b.WriteString("\r\n")
	for _, row := range rows {
		b.WriteString(strings.Join(append(append([]string(nil), row...), ""), ","))
		b.WriteString("\r\n")
	}
	return b.String()
}

// WriteDatalog writes content encoded as Windows-1252 into dir and returns
// the file path.
func WriteDatalog(t testing.TB, dir, name, content string) string {
	t.Helper()
	encoded, err := charmap.Windows1252.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encode datalog: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(encoded), 0644); err != nil {
		t.Fatalf("write datalog: %v", err)
	}
	return path
}

// ThrottleLog builds an in-memory datalog with Time (sec) and
// Throttle Pos (%) plus an RPM channel derived from the row index.
func ThrottleLog(times, throttle []float64) *models.Datalog {
	rpm := make([]float64, len(times))
	for i := range rpm {
		rpm[i] = 2000 + float64(i)*250
	}
	return models.NewDatalog(
		[]string{models.TimeChannel, "Engine Speed (rpm)", models.ThrottleChannel},
		[][]float64{
			append([]float64(nil), times...),
			rpm,
			append([]float64(nil), throttle...),
		},
		SampleInfo,
	)
}

// ScenarioCSV is the six-row log with one pull between t=1 and t=3.
func ScenarioCSV() string {
	return CSVDatalog(
		[]string{models.TimeChannel, "Engine Speed (rpm)", models.ThrottleChannel, "Boost (psi)"},
		[][]string{
			{"0", "2000", "10", "-8.1"},
			{"1", "2500", "60", "2.4"},
			{"2", "3100", "65", "12.9"},
			{"3", "3800", "70", "17.5"},
			{"4", "4200", "20", "3.0"},
			{"5", "3900", "10", "-6.2"},
		},
	)
}
