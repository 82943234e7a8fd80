package dialog

import (
	"context"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

const (
	// defaultLockWait bounds how long a trigger waits for a session's turn
	// lock before giving up. A timeout is a reportable failure, never a
	// silent proceed.
	defaultLockWait = 30 * time.Second

	// lockLease bounds how long a crashed holder can leave a session
	// unprocessable: an expired lease row is taken over by the next
	// claimant. Must comfortably exceed any single turn.
	lockLease = 2 * time.Minute

	lockRetryInterval = 100 * time.Millisecond
)

// ErrLockTimeout distinguishes "could not even start processing" from
// "processing failed".
var ErrLockTimeout = errors.New("timed out acquiring session processing lock")

// sessionLocks serializes turn processing per session across concurrent
// triggers (inbound message, nudge sweep, launch). In-process waiters
// queue on a semaphore; across processes sharing the store, a lease row
// keyed on the session id carries the exclusion, so a standalone sweep
// cannot race a running server on the same session.
type sessionLocks struct {
	store *store.Store

	// owner identifies this process's lease rows.
	owner string
	wait  time.Duration
	lease time.Duration

	mu      sync.Mutex
	entries map[int32]*lockEntry
}

// lockEntry is refcounted so idle sessions do not accumulate in the map.
type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newSessionLocks(st *store.Store) *sessionLocks {
	return &sessionLocks{
		store:   st,
		owner:   shortuuid.New(),
		wait:    defaultLockWait,
		lease:   lockLease,
		entries: map[int32]*lockEntry{},
	}
}

func (l *sessionLocks) checkout(sessionID int32) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[sessionID] = entry
	}
	entry.refs++

	return entry
}

func (l *sessionLocks) checkin(sessionID int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[sessionID]
	if !ok {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, sessionID)
	}
}

// acquire takes the session's lock with a bounded wait, returning the
// release function. The caller must release on every exit path.
func (l *sessionLocks) acquire(ctx context.Context, sessionID int32) (func(), error) {
	entry := l.checkout(sessionID)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := entry.sem.Acquire(waitCtx, 1); err != nil {
		l.checkin(sessionID)

		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, errors.Wrapf(ErrLockTimeout, "session %d", sessionID)
		}
		return nil, errors.Wrapf(err, "failed to acquire lock for session %d", sessionID)
	}

	if err := l.acquireLease(waitCtx, ctx, sessionID); err != nil {
		entry.sem.Release(1)
		l.checkin(sessionID)
		return nil, err
	}

	release := func() {
		releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelRelease()

		// Lease expiry backstops a failed delete.
		_ = l.store.ReleaseSessionLock(releaseCtx, &store.ReleaseSessionLock{
			SessionID: sessionID,
			Owner:     l.owner,
		})

		entry.sem.Release(1)
		l.checkin(sessionID)
	}

	return release, nil
}

// acquireLease claims the session's lease row, polling while another
// process holds it.
func (l *sessionLocks) acquireLease(waitCtx, ctx context.Context, sessionID int32) error {
	for {
		now := time.Now()

		acquired, err := l.store.TryAcquireSessionLock(waitCtx, &store.AcquireSessionLock{
			SessionID: sessionID,
			Owner:     l.owner,
			NowTs:     now.Unix(),
			ExpiresTs: now.Add(l.lease).Unix(),
		})
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return errors.Wrapf(ErrLockTimeout, "session %d", sessionID)
			}
			return errors.Wrapf(err, "failed to acquire lease for session %d", sessionID)
		}

		if acquired {
			return nil
		}

		timer := time.NewTimer(lockRetryInterval)

		select {
		case <-waitCtx.Done():
			timer.Stop()

			if ctx.Err() == nil {
				return errors.Wrapf(ErrLockTimeout, "session %d", sessionID)
			}
			return errors.Wrapf(waitCtx.Err(), "failed to acquire lock for session %d", sessionID)
		case <-timer.C:
		}
	}
}
