package models

import "time"

// FileInfo represents metadata about an uploaded datalog file.
type FileInfo struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Size       int64     `json:"size" yaml:"size"`
	UploadedAt time.Time `json:"uploadedAt" yaml:"uploaded_at"`
	Status     string    `json:"status" yaml:"status"` // "uploaded", "loading", "loaded", "error"
}
