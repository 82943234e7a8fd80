package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/pkg/errors"
)

// The migration system applies the full schema on first start. Schema is
// considered initialized once the dialog_session table exists.
//
// Migration Files:
// - Location: store/migration/{driver}/LATEST.sql
// - LATEST.sql: Full schema for new installations

//go:embed migration
var migrationFS embed.FS

// Migrate bootstraps the database schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check initialization status")
	}

	if initialized {
		return nil
	}

	buf, err := migrationFS.ReadFile(fmt.Sprintf("migration/%s/LATEST.sql", s.profile.Driver))
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema for driver %s", s.profile.Driver)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	return nil
}
