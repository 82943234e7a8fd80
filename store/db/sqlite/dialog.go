package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateDialog(ctx context.Context, create *store.Dialog) (*store.Dialog, error) {
	fields := []string{"key", "script_id", "snapshot", "metadata", "started_ts", "finished_ts", "finish_reason"}
	args := []any{create.Key, create.ScriptID, create.Snapshot, create.Metadata, create.StartedTs, create.FinishedTs, create.FinishReason}

	stmt := `INSERT INTO dialog (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create dialog: %w", err)
	}

	return create, nil
}

func (d *DB) ListDialogs(ctx context.Context, find *store.FindDialog) ([]*store.Dialog, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Key; v != nil {
		where, args = append(where, "dialog.key = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, key, script_id, snapshot, metadata, started_ts, finished_ts, finish_reason
		FROM dialog
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY dialog.started_ts DESC, dialog.id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dialogs: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Dialog, 0)
	for rows.Next() {
		var dialog store.Dialog
		var scriptID, finishedTs sql.NullInt64
		var finishReason sql.NullString

		if err := rows.Scan(
			&dialog.ID,
			&dialog.Key,
			&scriptID,
			&dialog.Snapshot,
			&dialog.Metadata,
			&dialog.StartedTs,
			&finishedTs,
			&finishReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dialog: %w", err)
		}

		if scriptID.Valid {
			value := int32(scriptID.Int64)
			dialog.ScriptID = &value
		}
		if finishedTs.Valid {
			dialog.FinishedTs = &finishedTs.Int64
		}
		if finishReason.Valid {
			dialog.FinishReason = &finishReason.String
		}

		list = append(list, &dialog)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateDialog(ctx context.Context, update *store.UpdateDialog) error {
	set, args := []string{}, []any{}

	if v := update.Snapshot; v != nil {
		set, args = append(set, "snapshot = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Metadata; v != nil {
		set, args = append(set, "metadata = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.FinishedTs; v != nil {
		set, args = append(set, "finished_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.FinishReason; v != nil {
		set, args = append(set, "finish_reason = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE dialog SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update dialog: %w", err)
	}

	return nil
}

func (d *DB) CreateDialogScript(ctx context.Context, create *store.DialogScript) (*store.DialogScript, error) {
	fields := []string{"identifier", "name", "definition", "labels"}
	args := []any{create.Identifier, create.Name, create.Definition, create.Labels}

	stmt := `INSERT INTO dialog_script (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create dialog script: %w", err)
	}

	return create, nil
}

func (d *DB) ListDialogScripts(ctx context.Context, find *store.FindDialogScript) ([]*store.DialogScript, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog_script.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Identifier; v != nil {
		where, args = append(where, "dialog_script.identifier = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, identifier, name, definition, labels
		FROM dialog_script
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY dialog_script.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dialog scripts: %w", err)
	}
	defer rows.Close()

	list := make([]*store.DialogScript, 0)
	for rows.Next() {
		var script store.DialogScript

		if err := rows.Scan(
			&script.ID,
			&script.Identifier,
			&script.Name,
			&script.Definition,
			&script.Labels,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dialog script: %w", err)
		}

		list = append(list, &script)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
