package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mem "fieldpay/pkg/memcache"
	"fieldpay/pkg/utils"
)

func TestMemoryAccountLockerSerializes(t *testing.T) {
	locker := NewAccountLocker(nil, mem.NewLeases(), 200*time.Millisecond, zerolog.Nop())

	unlock, err := locker.Lock(context.Background(), "acct")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locker.Lock(context.Background(), "acct")
		if err == nil {
			unlock2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(2 * lockPollInterval):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestMemoryAccountLockerGivesUp(t *testing.T) {
	leases := mem.NewLeases()
	leases.TryAcquire("acct", "someone-else", time.Minute)
	var buf bytes.Buffer
	locker := NewAccountLocker(nil, leases, 100*time.Millisecond, zerolog.New(&buf))

	_, err := locker.Lock(context.Background(), "acct")
	assert.True(t, errors.Is(err, utils.ErrConflict))
	assert.Contains(t, buf.String(), `"holder":"someone-else"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewAccountLocker(nil, leases, time.Minute, zerolog.Nop()).Lock(ctx, "acct")
	assert.ErrorIs(t, err, context.Canceled)
}
