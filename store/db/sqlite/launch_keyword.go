package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func (d *DB) CreateLaunchKeyword(ctx context.Context, create *store.LaunchKeyword) (*store.LaunchKeyword, error) {
	fields := []string{"keyword", "case_sensitive", "script_identifier", "priority"}
	args := []any{create.Keyword, create.CaseSensitive, create.ScriptIdentifier, create.Priority}

	stmt := `INSERT INTO launch_keyword (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create launch keyword: %w", err)
	}

	return create, nil
}

func (d *DB) ListLaunchKeywords(ctx context.Context, find *store.FindLaunchKeyword) ([]*store.LaunchKeyword, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "launch_keyword.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Keyword; v != nil {
		where, args = append(where, "launch_keyword.keyword = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, keyword, case_sensitive, script_identifier, priority
		FROM launch_keyword
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY launch_keyword.priority ASC, launch_keyword.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query launch keywords: %w", err)
	}
	defer rows.Close()

	list := make([]*store.LaunchKeyword, 0)
	for rows.Next() {
		var keyword store.LaunchKeyword

		if err := rows.Scan(
			&keyword.ID,
			&keyword.Keyword,
			&keyword.CaseSensitive,
			&keyword.ScriptIdentifier,
			&keyword.Priority,
		); err != nil {
			return nil, fmt.Errorf("failed to scan launch keyword: %w", err)
		}

		list = append(list, &keyword)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteLaunchKeyword(ctx context.Context, delete *store.DeleteLaunchKeyword) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM launch_keyword WHERE id = ?", delete.ID); err != nil {
		return fmt.Errorf("failed to delete launch keyword: %w", err)
	}

	return nil
}
