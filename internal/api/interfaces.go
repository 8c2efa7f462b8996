// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/datalog-plotter/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// FileHandler handles uploaded datalog files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// SessionHandler handles load sessions
type SessionHandler interface {
	HandleStartSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetChannels(c echo.Context) error
}

// PullHandler handles segmentation and pull retrieval
type PullHandler interface {
	HandleSegment(c echo.Context) error
	HandleListPulls(c echo.Context) error
	HandleGetPull(c echo.Context) error
	HandleGetPullMsgpack(c echo.Context) error
	HandleGetPullSeries(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileID, filePath string) (*models.LoadSession, error)
	GetSession(id string) (*models.LoadSession, bool)
	Wait(ctx context.Context, id string) (*models.LoadSession, error)
	TouchSession(id string) bool
	Datalog(id string) (*models.Datalog, error)
	Segment(ctx context.Context, id string, th models.Thresholds) (*models.PullSet, error)
	Pulls(id string) (*models.PullSet, error)
	Pull(id string, n int) (models.Pull, models.PullSummary, error)
	DeleteFileSessions(fileID string) int
}

// ParsedCache is the persistent decoded-datalog cache, when enabled.
type ParsedCache interface {
	Delete(fileID string) error
	Stats() map[string]interface{}
}
