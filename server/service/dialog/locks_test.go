package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func TestLockTimeoutIsDistinct(t *testing.T) {
	ctx := context.Background()

	engine, _ := newTestEngine(t, nil, "")
	engine.locks.wait = 50 * time.Millisecond

	release, err := engine.locks.acquire(ctx, 41)
	require.NoError(t, err)
	defer release()

	_, err = engine.locks.acquire(ctx, 41)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

func TestLockExcludesAcrossProcesses(t *testing.T) {
	ctx := context.Background()

	// Two lock sets over one store model two processes sharing the
	// database: the second must observe the first's lease even though its
	// own in-process semaphore is free.
	_, testStore := newTestEngine(t, nil, "")

	locksA := newSessionLocks(testStore)
	locksB := newSessionLocks(testStore)
	locksB.wait = 300 * time.Millisecond

	releaseA, err := locksA.acquire(ctx, 7)
	require.NoError(t, err)

	_, err = locksB.acquire(ctx, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	releaseA()

	releaseB, err := locksB.acquire(ctx, 7)
	require.NoError(t, err)
	releaseB()
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()

	_, testStore := newTestEngine(t, nil, "")
	now := time.Now().Unix()

	acquired, err := testStore.TryAcquireSessionLock(ctx, &store.AcquireSessionLock{
		SessionID: 9, Owner: "worker-a", NowTs: now, ExpiresTs: now - 30,
	})
	require.NoError(t, err)
	require.True(t, acquired)

	// An expired lease yields to a new owner.
	acquired, err = testStore.TryAcquireSessionLock(ctx, &store.AcquireSessionLock{
		SessionID: 9, Owner: "worker-b", NowTs: now, ExpiresTs: now + 60,
	})
	require.NoError(t, err)
	assert.True(t, acquired)

	// A live lease refuses everyone else.
	acquired, err = testStore.TryAcquireSessionLock(ctx, &store.AcquireSessionLock{
		SessionID: 9, Owner: "worker-c", NowTs: now, ExpiresTs: now + 60,
	})
	require.NoError(t, err)
	assert.False(t, acquired)

	// The holder may refresh its own lease.
	acquired, err = testStore.TryAcquireSessionLock(ctx, &store.AcquireSessionLock{
		SessionID: 9, Owner: "worker-b", NowTs: now, ExpiresTs: now + 120,
	})
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockEntriesEvictWhenIdle(t *testing.T) {
	ctx := context.Background()

	engine, _ := newTestEngine(t, nil, "")

	release, err := engine.locks.acquire(ctx, 3)
	require.NoError(t, err)

	engine.locks.mu.Lock()
	assert.Len(t, engine.locks.entries, 1)
	engine.locks.mu.Unlock()

	release()

	engine.locks.mu.Lock()
	assert.Empty(t, engine.locks.entries)
	engine.locks.mu.Unlock()
}
