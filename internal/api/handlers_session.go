// handlers_session.go - Load session handlers
package api

import (
	"errors"
	"net/http"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/plot"
	"github.com/datalog-plotter/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(store storage.Store, sessionMgr SessionManager) SessionHandler {
	return &SessionHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
	}
}

type startSessionRequest struct {
	FileID string `json:"fileId"`
}

// channelInfo describes one datalog channel for channel pickers
type channelInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Unit      string `json:"unit,omitempty"`
	Plottable bool   `json:"plottable"`
}

// HandleStartSession starts loading an uploaded datalog
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewInvalidBodyError(err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.Get(req.FileID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return NewNotFoundError("file", req.FileID)
		}
		return NewInternalError("failed to read file metadata", err)
	}

	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		return NewInternalError("failed to get file path", err)
	}

	sess, err := h.sessionMgr.StartSession(info.ID, path)
	if err != nil {
		return NewInternalError("failed to start session", err)
	}
	h.store.SetStatus(info.ID, "loading")

	return c.JSON(http.StatusAccepted, sess)
}

// HandleGetSession returns the current status of a load session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	switch sess.Status {
	case models.SessionStatusComplete:
		h.store.SetStatus(sess.FileID, "loaded")
	case models.SessionStatusError:
		h.store.SetStatus(sess.FileID, "error")
	}

	return c.JSON(http.StatusOK, sess)
}

// HandleGetChannels lists the session's channels in file order
func (h *SessionHandlerImpl) HandleGetChannels(c echo.Context) error {
	id := c.Param("id")
	data, err := h.sessionMgr.Datalog(id)
	if err != nil {
		return err
	}
	h.sessionMgr.TouchSession(id)

	plottable := make(map[string]bool)
	for _, name := range plot.Plottable(data) {
		plottable[name] = true
	}

	channels := make([]channelInfo, 0, len(data.Channels))
	for _, name := range data.Channels {
		label, unit := plot.ChannelLabel(name)
		channels = append(channels, channelInfo{
			Name:      name,
			Label:     label,
			Unit:      unit,
			Plottable: plottable[name],
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"info":      data.Info,
		"rowCount":  data.Len(),
		"channels":  channels,
	})
}
