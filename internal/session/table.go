package session

import (
	"sync"
	"time"
)

// Table holds one session per (track, user). Missing entries read as Idle.
type Table struct {
	mu       sync.Mutex
	sessions map[Track]map[string]Session
	now      func() time.Time
}

func NewTable() *Table {
	t := &Table{sessions: map[Track]map[string]Session{}, now: time.Now}
	for _, tr := range Tracks {
		t.sessions[tr] = map[string]Session{}
	}
	return t
}

func (t *Table) Get(track Track, userID string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[track][userID]; ok {
		return s
	}
	return Session{UserID: userID, Track: track, Stage: StageIdle}
}

func (t *Table) Set(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Stage == StageIdle {
		delete(t.sessions[s.Track], s.UserID)
		return
	}
	s.UpdatedAt = t.now()
	t.sessions[s.Track][s.UserID] = s
}

// Reset drops the session and returns what it held.
func (t *Table) Reset(track Track, userID string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.sessions[track][userID]
	if !ok {
		prev = Session{UserID: userID, Track: track, Stage: StageIdle}
	}
	delete(t.sessions[track], userID)
	return prev
}

func (t *Table) Snapshot(userID string) []Session {
	out := make([]Session, 0, len(Tracks))
	for _, tr := range Tracks {
		out = append(out, t.Get(tr, userID))
	}
	return out
}

// Active counts non-idle sessions on a track.
func (t *Table) Active(track Track) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions[track])
}
