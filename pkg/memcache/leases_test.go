package mem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeasesExclusive(t *testing.T) {
	s := NewLeases()

	assert.True(t, s.TryAcquire("acct-1", "a", time.Minute))
	assert.False(t, s.TryAcquire("acct-1", "b", time.Minute))
	assert.True(t, s.TryAcquire("acct-2", "b", time.Minute))

	holder, ok := s.Holder("acct-1")
	assert.True(t, ok)
	assert.Equal(t, "a", holder)
}

func TestLeasesReleaseRequiresOwner(t *testing.T) {
	s := NewLeases()
	s.TryAcquire("k", "owner", time.Minute)

	s.Release("k", "intruder")
	_, held := s.Holder("k")
	assert.True(t, held)

	s.Release("k", "owner")
	_, held = s.Holder("k")
	assert.False(t, held)
	assert.True(t, s.TryAcquire("k", "next", time.Minute))
}

func TestLeasesExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLeases()
	s.now = func() time.Time { return now }

	assert.True(t, s.TryAcquire("k", "a", time.Second))
	now = now.Add(2 * time.Second)
	assert.True(t, s.TryAcquire("k", "b", time.Second))

	holder, _ := s.Holder("k")
	assert.Equal(t, "b", holder)
}

func TestLeasesConcurrentAcquire(t *testing.T) {
	s := NewLeases()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.TryAcquire("k", string(rune('a'+i)), time.Minute) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
