package user

import (
	"context"
	"sort"
	"sync"
)

// memoryInfra keeps users in process memory; used when no DATABASE_URL is configured.
type memoryInfra struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryInfra() Infra {
	return &memoryInfra{users: make(map[string]User)}
}

func (m *memoryInfra) Migrate(context.Context) error { return nil }

func (m *memoryInfra) Get(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memoryInfra) Insert(_ context.Context, u User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return false, nil
	}
	m.users[u.Username] = u
	return true, nil
}

func (m *memoryInfra) Replace(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

func (m *memoryInfra) SetLanguage(_ context.Context, username string, lang Language) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		u.Language = lang
		m.users[username] = u
	}
	return nil
}

func (m *memoryInfra) SetVoice(_ context.Context, username string, voice VoiceMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		u.Voice = voice
		m.users[username] = u
	}
	return nil
}

func (m *memoryInfra) Delete(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return ErrNotFound
	}
	delete(m.users, username)
	return nil
}

func (m *memoryInfra) List(context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
