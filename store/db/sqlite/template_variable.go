package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateTemplateVariable(ctx context.Context, create *store.TemplateVariable) (*store.TemplateVariable, error) {
	fields := []string{"script_id", "key", "value"}
	args := []any{create.ScriptID, create.Key, create.Value}

	stmt := `INSERT INTO dialog_template_variable (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create template variable: %w", err)
	}

	return create, nil
}

func (d *DB) ListTemplateVariables(ctx context.Context, find *store.FindTemplateVariable) ([]*store.TemplateVariable, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "dialog_template_variable.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ScriptID; v != nil {
		where, args = append(where, "dialog_template_variable.script_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if find.GlobalOnly {
		where = append(where, "dialog_template_variable.script_id IS NULL")
	}

	query := `
		SELECT id, script_id, key, value
		FROM dialog_template_variable
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY dialog_template_variable.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query template variables: %w", err)
	}
	defer rows.Close()

	list := make([]*store.TemplateVariable, 0)
	for rows.Next() {
		var variable store.TemplateVariable
		var scriptID sql.NullInt64

		if err := rows.Scan(&variable.ID, &scriptID, &variable.Key, &variable.Value); err != nil {
			return nil, fmt.Errorf("failed to scan template variable: %w", err)
		}

		if scriptID.Valid {
			value := int32(scriptID.Int64)
			variable.ScriptID = &value
		}

		list = append(list, &variable)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteTemplateVariable(ctx context.Context, delete *store.DeleteTemplateVariable) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM dialog_template_variable WHERE id = ?", delete.ID); err != nil {
		return fmt.Errorf("failed to delete template variable: %w", err)
	}

	return nil
}
