package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store with lazy and periodic expiry
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	config  Config
	cancel  context.CancelFunc
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// NewMemory creates an in-memory store and starts its sweeper. Call Close to stop it.
func NewMemory(config Config) *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{
		entries: make(map[string]entry),
		config:  config,
		cancel:  cancel,
	}
	go m.sweep(ctx, time.Minute)
	return m
}

// Get implements Store
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	e, ok := m.entries[m.config.Prefix+key]
	m.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	return e.value, nil
}

// Set implements Store
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.TTL
	}

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[m.config.Prefix+key] = e
	m.mu.Unlock()
	return nil
}

// Delete implements Store
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Clear implements Store
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included until swept
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the sweeper
func (m *Memory) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *Memory) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.removeExpired(now)
		}
	}
}

func (m *Memory) removeExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}
