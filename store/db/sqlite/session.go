package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	fields := []string{"uid", "destination", "dialog_id", "started_ts", "last_updated_ts", "finished_ts", "latest_variables", "last_variable_update_ts", "transmission_channel"}
	args := []any{
		create.UID, create.Destination, create.DialogID,
		create.StartedTs, create.LastUpdatedTs, create.FinishedTs,
		create.LatestVariables, create.LastVariableUpdateTs, create.TransmissionChannel,
	}

	stmt := `INSERT INTO dialog_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog_session.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "dialog_session.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DialogID; v != nil {
		where, args = append(where, "dialog_session.dialog_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Open; v != nil {
		if *v {
			where = append(where, "dialog_session.finished_ts IS NULL")
		} else {
			where = append(where, "dialog_session.finished_ts IS NOT NULL")
		}
	}

	orderBy := "ORDER BY dialog_session.started_ts ASC, dialog_session.id ASC"
	if find.NewestFirst {
		orderBy = "ORDER BY dialog_session.started_ts DESC, dialog_session.id DESC"
	}

	query := `
		SELECT
			id, uid, destination, dialog_id,
			started_ts, last_updated_ts, finished_ts,
			latest_variables, last_variable_update_ts, transmission_channel
		FROM dialog_session
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Session, 0)
	for rows.Next() {
		var session store.Session
		var dialogID, finishedTs, lastVariableUpdateTs sql.NullInt64
		var transmissionChannel sql.NullString

		if err := rows.Scan(
			&session.ID,
			&session.UID,
			&session.Destination,
			&dialogID,
			&session.StartedTs,
			&session.LastUpdatedTs,
			&finishedTs,
			&session.LatestVariables,
			&lastVariableUpdateTs,
			&transmissionChannel,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if dialogID.Valid {
			value := int32(dialogID.Int64)
			session.DialogID = &value
		}
		if finishedTs.Valid {
			session.FinishedTs = &finishedTs.Int64
		}
		if lastVariableUpdateTs.Valid {
			session.LastVariableUpdateTs = &lastVariableUpdateTs.Int64
		}
		if transmissionChannel.Valid {
			session.TransmissionChannel = &transmissionChannel.String
		}

		list = append(list, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) error {
	set, args := []string{}, []any{}

	if v := update.Destination; v != nil {
		set, args = append(set, "destination = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastUpdatedTs; v != nil {
		set, args = append(set, "last_updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.FinishedTs; v != nil {
		set, args = append(set, "finished_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LatestVariables; v != nil {
		set, args = append(set, "latest_variables = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastVariableUpdateTs; v != nil {
		set, args = append(set, "last_variable_update_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.TransmissionChannel; v != nil {
		set, args = append(set, "transmission_channel = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE dialog_session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

func (d *DB) DeleteSession(ctx context.Context, delete *store.DeleteSession) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM dialog_session WHERE id = ?", delete.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
