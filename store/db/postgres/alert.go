package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateAlert(ctx context.Context, create *store.Alert) (*store.Alert, error) {
	fields := []string{"sender", "dialog_id", "message", "added_ts", "last_updated_ts", "metadata"}
	args := []any{create.Sender, create.DialogID, create.Message, create.AddedTs, create.LastUpdatedTs, create.Metadata}

	stmt := `INSERT INTO dialog_alert (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	return create, nil
}

func (d *DB) ListAlerts(ctx context.Context, find *store.FindAlert) ([]*store.Alert, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog_alert.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DialogID; v != nil {
		where, args = append(where, "dialog_alert.dialog_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, sender, dialog_id, message, added_ts, last_updated_ts, metadata
		FROM dialog_alert
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY dialog_alert.added_ts DESC, dialog_alert.id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Alert, 0)
	for rows.Next() {
		var alert store.Alert
		var dialogID sql.NullInt64

		if err := rows.Scan(
			&alert.ID,
			&alert.Sender,
			&dialogID,
			&alert.Message,
			&alert.AddedTs,
			&alert.LastUpdatedTs,
			&alert.Metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		if dialogID.Valid {
			value := int32(dialogID.Int64)
			alert.DialogID = &value
		}

		list = append(list, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateAlert(ctx context.Context, update *store.UpdateAlert) error {
	set, args := []string{}, []any{}

	if v := update.Sender; v != nil {
		set, args = append(set, "sender = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Metadata; v != nil {
		set, args = append(set, "metadata = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastUpdatedTs; v != nil {
		set, args = append(set, "last_updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE dialog_alert SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	return nil
}
