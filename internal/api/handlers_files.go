// handlers_files.go - Datalog file upload and management handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

const (
	defaultRecentFiles = 20
	maxRecentFiles     = 100
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store       storage.Store
	sessionMgr  SessionManager
	parsed      ParsedCache
	allowDelete bool
}

// NewFileHandler creates a new file handler instance. parsed may be nil.
func NewFileHandler(store storage.Store, sessionMgr SessionManager, parsed ParsedCache, allowDelete bool) FileHandler {
	return &FileHandlerImpl{
		store:       store,
		sessionMgr:  sessionMgr,
		parsed:      parsed,
		allowDelete: allowDelete,
	}
}

// HandleUploadFile accepts a datalog as multipart/form-data field "file"
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	logger.Get(c.Request().Context()).Infof("[Files] Uploaded %s as %s (%d bytes)", info.Name, logger.ShortID(info.ID), info.Size)
	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts the raw request body as a datalog named by ?name=
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Save(filepath.Base(name), c.Request().Body)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	if info.Size == 0 {
		h.store.Delete(info.ID)
		return NewBadRequestError("empty request body", nil)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns recently uploaded files, newest first
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := defaultRecentFiles
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return NewValidationError("limit")
		}
		if n > maxRecentFiles {
			n = maxRecentFiles
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to read file metadata", err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes a file together with its sessions and cached datalog
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("file deletion is disabled")
	}

	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to delete file", err)
	}

	if h.sessionMgr != nil {
		h.sessionMgr.DeleteFileSessions(id)
	}
	if h.parsed != nil {
		if err := h.parsed.Delete(id); err != nil {
			logger.Get(c.Request().Context()).Warnf("[Files] Failed to delete parsed datalog for %s: %v", logger.ShortID(id), err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
