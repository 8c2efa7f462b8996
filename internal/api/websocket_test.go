package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialJobs(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/jobs"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeConnected, msg.Type)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestJobSocket_PingPong(t *testing.T) {
	env := newTestEnv(t, true)
	ws := dialJobs(t, env)

	require.NoError(t, ws.WriteJSON(WSRequest{Type: MsgTypePing, ID: "p1"}))
	msg := readMessage(t, ws)
	assert.Equal(t, MsgTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)

	require.NoError(t, ws.WriteJSON(WSRequest{Type: "bogus"}))
	msg = readMessage(t, ws)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}

func TestJobSocket_SegmentLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	sessionID := env.loadSession(t, testutil.ScenarioCSV())
	ws := dialJobs(t, env)

	throttle, filter := 50.0, 1.0
	require.NoError(t, ws.WriteJSON(WSRequest{
		Type:        MsgTypeSegment,
		ID:          "job-1",
		SessionID:   sessionID,
		MinThrottle: &throttle,
		TimeFilter:  &filter,
	}))

	started := readMessage(t, ws)
	assert.Equal(t, MsgTypeStarted, started.Type)
	assert.Equal(t, "job-1", started.ID)
	assert.Equal(t, sessionID, started.SessionID)

	result := readMessage(t, ws)
	require.Equal(t, MsgTypeResult, result.Type, string(result.Payload))
	var resp pullSetResponse
	require.NoError(t, json.Unmarshal(result.Payload, &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, models.Thresholds{MinThrottle: 50, TimeFilter: 1}, resp.Thresholds)

	finished := readMessage(t, ws)
	assert.Equal(t, MsgTypeFinished, finished.Type)
	assert.Equal(t, "job-1", finished.ID)

	set, err := env.mgr.Pulls(sessionID)
	require.NoError(t, err)
	assert.Len(t, set.Pulls, 1)
}

func TestJobSocket_SegmentErrors(t *testing.T) {
	env := newTestEnv(t, true)
	ws := dialJobs(t, env)

	tests := []struct {
		name     string
		req      WSRequest
		wantCode string
	}{
		{"missing session id", WSRequest{Type: MsgTypeSegment, ID: "a"}, "VALIDATION_ERROR"},
		{"unknown session", WSRequest{Type: MsgTypeSegment, ID: "b", SessionID: "nope"}, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ws.WriteJSON(tt.req))

			var got []WSMessage
			for len(got) == 0 || got[len(got)-1].Type != MsgTypeFinished {
				got = append(got, readMessage(t, ws))
			}

			var errMsg *WSMessage
			for i := range got {
				if got[i].Type == MsgTypeError {
					errMsg = &got[i]
				}
			}
			require.NotNil(t, errMsg)
			var apiErr APIError
			require.NoError(t, json.Unmarshal(errMsg.Payload, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.req.ID, errMsg.ID)
		})
	}
}

func TestErrorHandler_StatusCodes(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodGet, "/api/nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "HTTP_ERROR", decodeAPIError(t, rec).Code)
}
