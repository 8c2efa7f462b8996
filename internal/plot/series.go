// Package plot prepares pull data for dual-axis plotting clients: channel
// labels, per-channel series and the assignment of channels to axes.
package plot

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/datalog-plotter/backend/internal/models"
)

// ChannelLabel splits "Boost (psi)" into ("Boost", "psi"). A name without a
// parenthesized unit is returned whole with an empty unit.
func ChannelLabel(name string) (label, unit string) {
	open := strings.Index(name, "(")
	if open < 0 || !strings.HasSuffix(name, ")") {
		return name, ""
	}
	return strings.TrimSpace(name[:open]), strings.Trim(name[open:], "()")
}

// Values marshals NaN and infinite readings as JSON null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(v))
	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			continue
		}
		out[i] = &v[i]
	}
	return json.Marshal(out)
}

// Series is one channel of a pull against Time (sec).
type Series struct {
	Channel string `json:"channel" msgpack:"channel"`
	Label   string `json:"label" msgpack:"label"`
	Unit    string `json:"unit,omitempty" msgpack:"unit,omitempty"`
	Axis    int    `json:"axis" msgpack:"axis"`
	X       Values `json:"x" msgpack:"x"`
	Y       Values `json:"y" msgpack:"y"`
}

// NewSeries extracts channel from pull. Time (sec) itself is not plottable
// since it is always the x axis.
func NewSeries(pull models.Pull, channel string) (*Series, error) {
	if channel == models.TimeChannel {
		return nil, fmt.Errorf("%q is the x axis", channel)
	}
	x, ok := pull.Data.Column(models.TimeChannel)
	if !ok {
		return nil, fmt.Errorf("pull %d has no %q column", pull.Number, models.TimeChannel)
	}
	y, ok := pull.Data.Column(channel)
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	label, unit := ChannelLabel(channel)
	return &Series{
		Channel: channel,
		Label:   label,
		Unit:    unit,
		X:       append(Values(nil), x...),
		Y:       append(Values(nil), y...),
	}, nil
}

// Plottable lists the channels of log that can be drawn against time.
func Plottable(log *models.Datalog) []string {
	out := make([]string, 0, len(log.Channels))
	for _, ch := range log.Channels {
		if ch != models.TimeChannel {
			out = append(out, ch)
		}
	}
	return out
}
