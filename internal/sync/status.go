package sync

import "time"

// SyncState represents the current state of a user's resync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus holds the resync state of a single user.
type SyncStatus struct {
	User     string
	State    SyncState
	LastSync time.Time
	Error    error
}

// Status returns the resync status of user. A user never synced reports
// SyncIdle with a zero LastSync.
func (e *Engine) Status(user string) SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, ok := e.statuses[user]
	if !ok {
		return SyncStatus{User: user, State: SyncIdle}
	}
	return *status
}

// setStatus updates the resync status of user.
func (e *Engine) setStatus(user string, state SyncState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, ok := e.statuses[user]
	if !ok {
		status = &SyncStatus{User: user}
		e.statuses[user] = status
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
