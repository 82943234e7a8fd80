package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateVariable(ctx context.Context, create *store.Variable) (*store.Variable, error) {
	fields := []string{"sender", "dialog_key", "key", "value", "date_set_ts", "lookup_hash"}
	args := []any{create.Sender, create.DialogKey, create.Key, create.Value, create.DateSetTs, create.LookupHash}

	stmt := `INSERT INTO dialog_variable (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create variable: %w", err)
	}

	return create, nil
}

func (d *DB) ListVariables(ctx context.Context, find *store.FindVariable) ([]*store.Variable, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog_variable.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DialogKey; v != nil {
		where, args = append(where, "dialog_variable.dialog_key = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Key; v != nil {
		where, args = append(where, "dialog_variable.key = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.LookupHash; v != nil {
		// Rows without a hash predate hashing and must still be scanned.
		where, args = append(where, "(dialog_variable.lookup_hash = "+placeholder(len(args)+1)+" OR dialog_variable.lookup_hash IS NULL)"), append(args, *v)
	}
	if v := find.SetAtOrAfterTs; v != nil {
		where, args = append(where, "dialog_variable.date_set_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SetAtOrBeforeTs; v != nil {
		where, args = append(where, "dialog_variable.date_set_ts <= "+placeholder(len(args)+1)), append(args, *v)
	}

	orderBy := "ORDER BY dialog_variable.date_set_ts ASC, dialog_variable.id ASC"
	if find.NewestFirst {
		orderBy = "ORDER BY dialog_variable.date_set_ts DESC, dialog_variable.id DESC"
	}

	query := `
		SELECT id, sender, dialog_key, key, value, date_set_ts, lookup_hash
		FROM dialog_variable
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Variable, 0)
	for rows.Next() {
		var variable store.Variable
		var lookupHash sql.NullString

		if err := rows.Scan(
			&variable.ID,
			&variable.Sender,
			&variable.DialogKey,
			&variable.Key,
			&variable.Value,
			&variable.DateSetTs,
			&lookupHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}

		if lookupHash.Valid {
			variable.LookupHash = &lookupHash.String
		}

		list = append(list, &variable)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateVariable(ctx context.Context, update *store.UpdateVariable) error {
	set, args := []string{}, []any{}

	if v := update.Sender; v != nil {
		set, args = append(set, "sender = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LookupHash; v != nil {
		set, args = append(set, "lookup_hash = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE dialog_variable SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update variable: %w", err)
	}

	return nil
}
