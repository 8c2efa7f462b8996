// routes.go - Route registration helpers
package api

import (
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/datalog-plotter/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	SessionMgr        SessionManager
	Parsed            ParsedCache // nil when persistence is disabled
	Defaults          models.Thresholds
	Bounds            pulls.Bounds
	AllowFileDeletion bool
	Version           string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Session SessionHandler
	Pulls   PullHandler
	Jobs    *JobSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Parsed),
		Files:   NewFileHandler(deps.Store, deps.SessionMgr, deps.Parsed, deps.AllowFileDeletion),
		Session: NewSessionHandler(deps.Store, deps.SessionMgr),
		Pulls:   NewPullHandler(deps.SessionMgr, deps.Defaults, deps.Bounds),
		Jobs:    NewJobSocketHandler(deps.SessionMgr, deps.Defaults, deps.Bounds),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	// File routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	fileGroup.GET("/recent", handlers.Files.HandleGetRecentFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Session routes
	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Session.HandleStartSession)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.GET("/:id/channels", handlers.Session.HandleGetChannels)

	// Pull routes
	sessionGroup.POST("/:id/pulls", handlers.Pulls.HandleSegment)
	sessionGroup.GET("/:id/pulls", handlers.Pulls.HandleListPulls)
	sessionGroup.GET("/:id/pulls/:n", handlers.Pulls.HandleGetPull)
	sessionGroup.GET("/:id/pulls/:n/msgpack", handlers.Pulls.HandleGetPullMsgpack)
	sessionGroup.GET("/:id/pulls/:n/series", handlers.Pulls.HandleGetPullSeries)

	// Job channel
	e.GET("/api/ws/jobs", handlers.Jobs.HandleWebSocket)
}

// SetupMiddleware configures the error handler shared by every route
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
