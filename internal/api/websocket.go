package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the job protocol
const (
	// Client -> Server messages
	MsgTypeSegment = "segment"
	MsgTypePing    = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeStarted   = "started"
	MsgTypeResult    = "result"
	MsgTypeError     = "error"
	MsgTypeFinished  = "finished"
	MsgTypePong      = "pong"
)

// DefaultJobTimeout bounds how long a job waits for its session to load.
const DefaultJobTimeout = 2 * time.Minute

// WSRequest is a client message. Thresholds are optional; missing values
// use the configured defaults.
type WSRequest struct {
	Type        string   `json:"type"`
	ID          string   `json:"id,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
	MinThrottle *float64 `json:"minThrottle,omitempty"`
	TimeFilter  *float64 `json:"timeFilter,omitempty"`
}

// WSMessage is a server message
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JobSocketHandler runs segmentation jobs requested over a WebSocket and
// reports their lifecycle: started, then result or error, then finished.
type JobSocketHandler struct {
	sessionMgr SessionManager
	defaults   models.Thresholds
	bounds     pulls.Bounds
	timeout    time.Duration
	upgrader   websocket.Upgrader
}

// NewJobSocketHandler creates a new job socket handler
func NewJobSocketHandler(sessionMgr SessionManager, defaults models.Thresholds, bounds pulls.Bounds) *JobSocketHandler {
	return &JobSocketHandler{
		sessionMgr: sessionMgr,
		defaults:   defaults,
		bounds:     bounds,
		timeout:    DefaultJobTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// jobConn serializes writes to one connection.
type jobConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (jc *jobConn) send(msg WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if err := jc.ws.WriteJSON(msg); err != nil {
		logger.Get(nil).Debugf("[WebSocket] Failed to send %s: %v", msg.Type, err)
	}
}

func (jc *jobConn) sendError(id, sessionID string, apiErr *APIError) {
	jc.send(WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		SessionID: sessionID,
		Payload:   mustJSON(apiErr),
	})
}

// HandleWebSocket upgrades the connection and serves jobs until the client
// disconnects. Running jobs are cancelled on disconnect.
func (h *JobSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := logger.Get(c.Request().Context())
	log.Info("[WebSocket] Client connected for jobs")

	ctx, cancel := context.WithCancel(context.Background())
	var jobs sync.WaitGroup
	defer func() {
		cancel()
		jobs.Wait()
		log.Info("[WebSocket] Client disconnected")
	}()

	conn := &jobConn{ws: ws}
	conn.send(WSMessage{Type: MsgTypeConnected})

	for {
		var req WSRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("[WebSocket] Connection error: %v", err)
			}
			return nil
		}

		switch req.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong, ID: req.ID})
		case MsgTypeSegment:
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			jobs.Add(1)
			go func(req WSRequest) {
				defer jobs.Done()
				h.runSegmentJob(ctx, conn, req)
			}(req)
		default:
			conn.sendError(req.ID, req.SessionID, &APIError{
				Status:  http.StatusBadRequest,
				Code:    "INVALID_TYPE",
				Message: "Unknown message type: " + req.Type,
			})
		}
	}
}

func (h *JobSocketHandler) runSegmentJob(ctx context.Context, conn *jobConn, req WSRequest) {
	log := logger.Get(ctx)
	defer conn.send(WSMessage{Type: MsgTypeFinished, ID: req.ID, SessionID: req.SessionID})

	if req.SessionID == "" {
		conn.sendError(req.ID, "", NewValidationError("sessionId"))
		return
	}

	th := pulls.Clamp(segmentRequest{
		MinThrottle: req.MinThrottle,
		TimeFilter:  req.TimeFilter,
	}.thresholds(h.defaults), h.bounds)

	conn.send(WSMessage{
		Type:      MsgTypeStarted,
		ID:        req.ID,
		SessionID: req.SessionID,
		Payload:   mustJSON(map[string]interface{}{"thresholds": th}),
	})

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	set, err := h.segment(ctx, req.SessionID, th)
	if err != nil {
		log.Infof("[WebSocket] Job %s failed: %v", logger.ShortID(req.ID), err)
		apiErr := FromDomainError(err)
		if apiErr == nil {
			apiErr = NewInternalError("segmentation failed", err)
		}
		conn.sendError(req.ID, req.SessionID, apiErr)
		return
	}

	conn.send(WSMessage{
		Type:      MsgTypeResult,
		ID:        req.ID,
		SessionID: req.SessionID,
		Payload:   mustJSON(newPullSetResponse(req.SessionID, set)),
	})
}

// segment waits for the session to finish loading before segmenting it.
func (h *JobSocketHandler) segment(ctx context.Context, sessionID string, th models.Thresholds) (*models.PullSet, error) {
	if _, err := h.sessionMgr.Wait(ctx, sessionID); err != nil {
		return nil, err
	}
	return h.sessionMgr.Segment(ctx, sessionID, th)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
