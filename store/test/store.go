// Package test provides an in-memory testing store backed by SQLite.
package test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store/db/sqlite"
)

var testDBCounter int64

// NewTestingStore creates a migrated store over a fresh in-memory SQLite
// database. The caller owns Close.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	// A named in-memory database keeps connections within one test pointed
	// at the same data while isolating tests from each other.
	serial := atomic.AddInt64(&testDBCounter, 1)
	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", serial),
	}

	driver, err := sqlite.NewDB(testProfile)
	if err != nil {
		t.Fatalf("failed to open testing db: %v", err)
	}

	testingStore := store.New(driver, testProfile)
	if err := testingStore.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate testing db: %v", err)
	}

	t.Cleanup(func() {
		_ = testingStore.Close()
	})

	return testingStore
}
