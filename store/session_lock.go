package store

// AcquireSessionLock claims the lease row serializing turn processing for
// one session across every process sharing the database. The claim
// succeeds when no row exists, when the caller already owns it, or when
// the current lease expired before NowTs.
type AcquireSessionLock struct {
	SessionID int32
	Owner     string
	NowTs     int64
	ExpiresTs int64
}

// ReleaseSessionLock drops the lease row. Only the owner's own row is
// removed; a lease taken over by another process is left alone.
type ReleaseSessionLock struct {
	SessionID int32
	Owner     string
}
