package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox runs submitted funcs in FIFO order per key. Each key with
// pending work gets its own goroutine, so one user's long pipeline run
// never delays another user's events.
type Mailbox struct {
	mu     sync.Mutex
	queues map[string][]func()
	closed bool
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

func NewMailbox(log *zap.SugaredLogger) *Mailbox {
	return &Mailbox{queues: map[string][]func(){}, log: log}
}

func (m *Mailbox) Submit(key string, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMailboxClosed
	}
	q, running := m.queues[key]
	m.queues[key] = append(q, fn)
	if !running {
		m.wg.Add(1)
		go m.drain(key)
	}
	return nil
}

func (m *Mailbox) drain(key string) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		q := m.queues[key]
		if len(q) == 0 {
			delete(m.queues, key)
			m.mu.Unlock()
			return
		}
		fn := q[0]
		m.queues[key] = q[1:]
		m.mu.Unlock()

		m.safeRun(key, fn)
	}
}

func (m *Mailbox) safeRun(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("[mailbox] handler panic", "user", key, "panic", r)
		}
	}()
	fn()
}

// Close stops accepting work and waits for queued work to finish.
func (m *Mailbox) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
