package models

// SessionStatus represents the status of a load session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusLoading  SessionStatus = "loading"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// LoadSession tracks one datalog file being decoded and analyzed.
type LoadSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	RowCount         int           `json:"rowCount,omitempty"`
	ChannelCount     int           `json:"channelCount,omitempty"`
	Info             string        `json:"info,omitempty"`
	TimeRange        *TimeRange    `json:"timeRange,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	ParserName       string        `json:"parserName,omitempty"`
	FromCache        bool          `json:"fromCache,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// NewLoadSession creates a new LoadSession in pending status.
func NewLoadSession(id, fileID string) *LoadSession {
	return &LoadSession{
		ID:     id,
		FileID: fileID,
		Status: SessionStatusPending,
	}
}
