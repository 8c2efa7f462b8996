package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/parser"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/google/uuid"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session not ready")
	ErrNotSegmented    = errors.New("session has not been segmented")
	ErrPullNotFound    = errors.New("pull not found")
)

// Manager handles loaded datalogs and their segmentation results.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	registry    *parser.Registry
	parsed      *ParsedStore
	maxSessions int
}

// SessionState holds the session metadata, the decoded datalog and the most
// recent segmentation result.
type SessionState struct {
	Session      *models.LoadSession
	Datalog      *models.Datalog
	Pulls        *models.PullSet
	LastAccessed time.Time
	done         chan struct{}
	loadErr      error
}

// NewManager creates a session manager. parsed may be nil to disable the
// persistent cache.
func NewManager(registry *parser.Registry, parsed *ParsedStore) *Manager {
	if registry == nil {
		registry = parser.GetGlobalRegistry()
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		registry:    registry,
		parsed:      parsed,
		maxSessions: MaxSessions,
	}
}

// SetMaxSessions overrides the session capacity.
func (m *Manager) SetMaxSessions(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	m.maxSessions = n
	m.mu.Unlock()
}

// StartSession begins loading a datalog file in the background.
func (m *Manager) StartSession(fileID, filePath string) (*models.LoadSession, error) {
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewLoadSession(sessionID, fileID)
	session.Status = models.SessionStatusLoading

	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	snapshot := *session
	m.mu.Unlock()

	go m.runLoad(sessionID, fileID, filePath, state.done)

	return &snapshot, nil
}

func (m *Manager) runLoad(sessionID, fileID, filePath string, done chan struct{}) {
	log := logger.Get(nil)
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Session %s] PANIC recovered: %v", logger.ShortID(sessionID), r)
			m.updateSessionError(sessionID, fmt.Errorf("load panicked: %v", r))
		}
	}()

	start := time.Now()
	ctx := context.Background()

	var (
		data       *models.Datalog
		parserName string
		fromCache  bool
	)

	if m.parsed != nil && m.parsed.IsParsed(fileID) {
		cached, err := m.parsed.Load(ctx, fileID)
		if err != nil {
			log.Warnf("[Session %s] Cached datalog unusable, decoding again: %v", logger.ShortID(sessionID), err)
		} else {
			data, parserName, fromCache = cached, "duckdb_cache", true
		}
	}

	if data == nil {
		if info, err := os.Stat(filePath); err == nil {
			log.Infof("[Session %s] Loading %s (%d bytes)", logger.ShortID(sessionID), filePath, info.Size())
		}

		p, err := m.registry.FindParser(filePath)
		if err != nil {
			log.Errorf("[Session %s] Failed to find parser: %v", logger.ShortID(sessionID), err)
			m.updateSessionError(sessionID, err)
			return
		}

		data, err = p.Parse(filePath)
		if err != nil {
			log.Errorf("[Session %s] Load failed: %v", logger.ShortID(sessionID), err)
			m.updateSessionError(sessionID, err)
			return
		}
		parserName = p.Name()

		if m.parsed != nil {
			if err := m.parsed.Save(ctx, fileID, data); err != nil {
				log.Warnf("[Session %s] Failed to persist datalog: %v", logger.ShortID(sessionID), err)
			}
		}
	}

	elapsed := time.Since(start).Milliseconds()
	log.Infof("[Session %s] Loaded %d rows x %d channels via %s in %dms",
		logger.ShortID(sessionID), data.Len(), len(data.Channels), parserName, elapsed)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Datalog = data
	state.Session.Status = models.SessionStatusComplete
	state.Session.RowCount = data.Len()
	state.Session.ChannelCount = len(data.Channels)
	state.Session.Info = data.Info
	state.Session.ProcessingTimeMs = elapsed
	state.Session.ParserName = parserName
	state.Session.FromCache = fromCache
	if tr, ok := data.TimeRange(); ok {
		state.Session.TimeRange = tr
	}
}

func (m *Manager) updateSessionError(sessionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Error = err.Error()
	state.loadErr = err
}

// Wait blocks until the session has finished loading or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*models.LoadSession, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	select {
	case <-state.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s, ok := m.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.LoadSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s := *state.Session
	return &s, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// ready returns the state of a completed session. Callers hold m.mu.
func (m *Manager) ready(id string) (*SessionState, error) {
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	switch state.Session.Status {
	case models.SessionStatusComplete:
		return state, nil
	case models.SessionStatusError:
		if state.loadErr != nil {
			return nil, state.loadErr
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotReady, state.Session.Error)
	default:
		return nil, ErrSessionNotReady
	}
}

// Datalog returns the decoded datalog of a completed session.
func (m *Manager) Datalog(id string) (*models.Datalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.ready(id)
	if err != nil {
		return nil, err
	}
	return state.Datalog, nil
}

// Channels returns the channel names of a completed session in file order.
func (m *Manager) Channels(id string) ([]string, error) {
	data, err := m.Datalog(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), data.Channels...), nil
}

// Segment splits the session's datalog into pulls and stores the result,
// replacing any previous one. The datalog itself is never modified.
func (m *Manager) Segment(ctx context.Context, id string, th models.Thresholds) (*models.PullSet, error) {
	data, err := m.Datalog(id)
	if err != nil {
		return nil, err
	}

	set, err := pulls.Analyze(data, th)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	state, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	state.Pulls = set
	state.LastAccessed = time.Now()
	m.mu.Unlock()

	logger.Get(ctx).Infof("[Session %s] Segmented with throttle>=%.1f time>%.3f: %d pulls",
		logger.ShortID(id), th.MinThrottle, th.TimeFilter, len(set.Pulls))
	return set, nil
}

// Pulls returns the most recent segmentation result.
func (m *Manager) Pulls(id string) (*models.PullSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.ready(id)
	if err != nil {
		return nil, err
	}
	if state.Pulls == nil {
		return nil, ErrNotSegmented
	}
	return state.Pulls, nil
}

// Pull returns pull n (1-based) of the most recent segmentation result.
func (m *Manager) Pull(id string, n int) (models.Pull, models.PullSummary, error) {
	set, err := m.Pulls(id)
	if err != nil {
		return models.Pull{}, models.PullSummary{}, err
	}
	if n < 1 || n > len(set.Pulls) {
		return models.Pull{}, models.PullSummary{}, fmt.Errorf("%w: %d of %d", ErrPullNotFound, n, len(set.Pulls))
	}
	return set.Pulls[n-1], set.Summary[n], nil
}

// cleanupOldSessionsIfNeeded removes least recently used finished sessions
// while at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return
	}

	var finished []string
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusComplete ||
			state.Session.Status == models.SessionStatusError {
			finished = append(finished, id)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return m.sessions[finished[i]].LastAccessed.Before(m.sessions[finished[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	for _, id := range finished {
		if toFree <= 0 {
			break
		}
		delete(m.sessions, id)
		toFree--
		logger.Get(nil).Infof("[Session] Evicted session %s to free memory", logger.ShortID(id))
	}
}

// CleanupOldSessions removes finished sessions not accessed within maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
// It returns the number of sessions removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
			logger.Get(nil).Infof("[Session] Cleaned up aged session %s (last accessed: %s ago)",
				logger.ShortID(id), now.Sub(state.LastAccessed).Round(time.Second))
		}
	}
	return removed
}

// DeleteFileSessions removes every session that loaded fileID.
func (m *Manager) DeleteFileSessions(fileID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, state := range m.sessions {
		if state.Session.FileID == fileID {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
