// pkg/memcache/leases.go
package mem

import (
	"sync"
	"time"
)

// LeaseStore hands out short-lived exclusive leases keyed by string.
// It is the in-process fallback for the redis customer lock.
type LeaseStore interface {
	// TryAcquire takes the lease for key if it is free or expired.
	TryAcquire(key, token string, ttl time.Duration) bool

	// Release frees the lease only when token still owns it.
	Release(key, token string)

	// Holder reads the current owner without changing anything.
	Holder(key string) (string, bool)
}

type lease struct {
	token     string
	expiresAt time.Time
}

type Leases struct {
	mu   sync.Mutex
	data map[string]lease
	now  func() time.Time
}

func NewLeases() *Leases {
	return &Leases{
		data: make(map[string]lease),
		now:  time.Now,
	}
}

func (s *Leases) TryAcquire(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.data[key]; ok && now.Before(l.expiresAt) {
		return false
	}
	s.data[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (s *Leases) Release(key, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.data[key]; ok && l.token == token {
		delete(s.data, key)
	}
}

func (s *Leases) Holder(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.data[key]
	if !ok || !s.now().Before(l.expiresAt) {
		return "", false
	}
	return l.token, true
}
