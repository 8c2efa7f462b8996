// handlers_pulls.go - Pull segmentation and retrieval handlers
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/plot"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// PullHandlerImpl implements the PullHandler interface
type PullHandlerImpl struct {
	sessionMgr SessionManager
	defaults   models.Thresholds
	bounds     pulls.Bounds
}

// NewPullHandler creates a new pull handler instance
func NewPullHandler(sessionMgr SessionManager, defaults models.Thresholds, bounds pulls.Bounds) PullHandler {
	return &PullHandlerImpl{
		sessionMgr: sessionMgr,
		defaults:   defaults,
		bounds:     bounds,
	}
}

// segmentRequest carries optional thresholds; missing values use the
// configured defaults.
type segmentRequest struct {
	MinThrottle *float64 `json:"minThrottle"`
	TimeFilter  *float64 `json:"timeFilter"`
}

func (r segmentRequest) thresholds(defaults models.Thresholds) models.Thresholds {
	th := defaults
	if r.MinThrottle != nil {
		th.MinThrottle = *r.MinThrottle
	}
	if r.TimeFilter != nil {
		th.TimeFilter = *r.TimeFilter
	}
	return th
}

type pullView struct {
	Number       int     `json:"number"`
	Label        string  `json:"label"`
	StartRow     int     `json:"startRow"`
	EndRow       int     `json:"endRow"`
	Rows         int     `json:"rows"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	StartText    string  `json:"startText"`
	DurationText string  `json:"durationText"`
}

type pullSetResponse struct {
	SessionID  string            `json:"sessionId"`
	Thresholds models.Thresholds `json:"thresholds"`
	Clamped    bool              `json:"clamped,omitempty"`
	Count      int               `json:"count"`
	Pulls      []pullView        `json:"pulls"`
	Message    string            `json:"message,omitempty"`
	Hint       string            `json:"hint,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type pullDetailResponse struct {
	pullView
	Channels []string              `json:"channels"`
	Data     []map[string]*float64 `json:"data"`
}

// pullPayload is the msgpack body of a single pull, column-major.
type pullPayload struct {
	Number   int         `msgpack:"number"`
	Channels []string    `msgpack:"channels"`
	Values   [][]float64 `msgpack:"values"`
	Info     string      `msgpack:"info"`
	Start    float64     `msgpack:"start"`
	Duration float64     `msgpack:"duration"`
}

func newPullView(p models.Pull, s models.PullSummary) pullView {
	return pullView{
		Number:       p.Number,
		Label:        models.PullLabel(p.Number),
		StartRow:     p.StartRow,
		EndRow:       p.EndRow,
		Rows:         p.Len(),
		Start:        s.Start,
		Duration:     s.Duration,
		StartText:    s.StartText(),
		DurationText: s.DurationText(),
	}
}

func newPullSetResponse(sessionID string, set *models.PullSet) pullSetResponse {
	resp := pullSetResponse{
		SessionID:  sessionID,
		Thresholds: set.Thresholds,
		Count:      len(set.Pulls),
		Pulls:      make([]pullView, 0, len(set.Pulls)),
		CreatedAt:  set.CreatedAt,
	}
	for _, p := range set.Pulls {
		resp.Pulls = append(resp.Pulls, newPullView(p, set.Summary[p.Number]))
	}
	if set.Empty() {
		resp.Message = pulls.NoPullsMessage
		resp.Hint = pulls.NoPullsHint
	}
	return resp
}

// HandleSegment splits the session's datalog into pulls using the requested
// thresholds, clamped into the configured bounds.
func (h *PullHandlerImpl) HandleSegment(c echo.Context) error {
	id := c.Param("id")

	var req segmentRequest
	if err := c.Bind(&req); err != nil {
		return NewInvalidBodyError(err)
	}

	requested := req.thresholds(h.defaults)
	th := pulls.Clamp(requested, h.bounds)

	set, err := h.sessionMgr.Segment(c.Request().Context(), id, th)
	if err != nil {
		return err
	}

	resp := newPullSetResponse(id, set)
	resp.Clamped = th != requested
	return c.JSON(http.StatusOK, resp)
}

// HandleListPulls returns the most recent segmentation result
func (h *PullHandlerImpl) HandleListPulls(c echo.Context) error {
	id := c.Param("id")
	set, err := h.sessionMgr.Pulls(id)
	if err != nil {
		return err
	}
	h.sessionMgr.TouchSession(id)
	return c.JSON(http.StatusOK, newPullSetResponse(id, set))
}

// HandleGetPull returns every row of one pull
func (h *PullHandlerImpl) HandleGetPull(c echo.Context) error {
	p, summary, err := h.pull(c)
	if err != nil {
		return err
	}

	rows := make([]map[string]*float64, p.Len())
	for i := range rows {
		rows[i] = p.Data.NullableRow(i)
	}

	return c.JSON(http.StatusOK, pullDetailResponse{
		pullView: newPullView(p, summary),
		Channels: p.Data.Channels,
		Data:     rows,
	})
}

// HandleGetPullMsgpack returns one pull as column-major msgpack
func (h *PullHandlerImpl) HandleGetPullMsgpack(c echo.Context) error {
	p, summary, err := h.pull(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(pullPayload{
		Number:   p.Number,
		Channels: p.Data.Channels,
		Values:   p.Data.Values,
		Info:     p.Data.Info,
		Start:    summary.Start,
		Duration: summary.Duration,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetPullSeries returns up to two channels of a pull against time,
// each bound to a y axis. Requesting more channels evicts the oldest.
func (h *PullHandlerImpl) HandleGetPullSeries(c echo.Context) error {
	requested := splitChannels(c.QueryParams()["channels"])
	if len(requested) == 0 {
		return NewValidationError("channels")
	}

	p, _, err := h.pull(c)
	if err != nil {
		return err
	}

	var (
		axes    plot.AxisTable
		evicted []string
	)
	for _, ch := range requested {
		if !p.Data.HasChannel(ch) || ch == models.TimeChannel {
			return NewBadRequestError("channel cannot be plotted: "+ch, nil)
		}
		if _, old := axes.Assign(ch); old != "" {
			evicted = append(evicted, old)
		}
	}

	series := make([]*plot.Series, 0, axes.Len())
	for _, a := range axes.Assignments() {
		s, err := plot.NewSeries(p, a.Channel)
		if err != nil {
			return NewBadRequestError("failed to build series", err)
		}
		s.Axis = a.Axis
		series = append(series, s)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pull":    p.Number,
		"label":   models.PullLabel(p.Number),
		"series":  series,
		"evicted": evicted,
	})
}

// pull resolves the :id and :n path parameters.
func (h *PullHandlerImpl) pull(c echo.Context) (models.Pull, models.PullSummary, error) {
	id := c.Param("id")
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return models.Pull{}, models.PullSummary{}, NewValidationError("n")
	}

	p, summary, err := h.sessionMgr.Pull(id, n)
	if err != nil {
		return models.Pull{}, models.PullSummary{}, err
	}
	h.sessionMgr.TouchSession(id)
	return p, summary, nil
}

// splitChannels accepts both ?channels=a,b and repeated ?channels= values.
func splitChannels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, ch := range strings.Split(v, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				out = append(out, ch)
			}
		}
	}
	return out
}
