package sqlite

import (
	"context"
	"fmt"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) TryAcquireSessionLock(ctx context.Context, acquire *store.AcquireSessionLock) (bool, error) {
	stmt := `INSERT INTO session_lock (session_id, owner, expires_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET owner = excluded.owner, expires_ts = excluded.expires_ts
		WHERE session_lock.owner = excluded.owner OR session_lock.expires_ts < ?`

	result, err := d.db.ExecContext(ctx, stmt, acquire.SessionID, acquire.Owner, acquire.ExpiresTs, acquire.NowTs)
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read session lock result: %w", err)
	}

	return affected > 0, nil
}

func (d *DB) ReleaseSessionLock(ctx context.Context, release *store.ReleaseSessionLock) error {
	stmt := `DELETE FROM session_lock WHERE session_id = ? AND owner = ?`

	if _, err := d.db.ExecContext(ctx, stmt, release.SessionID, release.Owner); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}

	return nil
}
