package nudge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/service/dialog"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
	storetest "github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store/test"
)

// countingInterpreter finishes every dialog on its first turn and counts
// which dialog keys it saw.
type countingInterpreter struct {
	mu   sync.Mutex
	seen []string
}

func (c *countingInterpreter) Process(ctx context.Context, d *store.Dialog, message *string, extras map[string]any) ([]dialog.Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = append(c.seen, d.Key)

	now := time.Now().Unix()
	d.FinishedTs = &now

	return nil, nil
}

func createOpenSession(t *testing.T, testStore *store.Store, key string) *store.Session {
	t.Helper()

	ctx := context.Background()
	now := time.Now().Unix()

	d, err := testStore.CreateDialog(ctx, &store.Dialog{Key: key, Snapshot: "[]", Metadata: "{}", StartedTs: now})
	require.NoError(t, err)

	session, err := testStore.CreateSession(ctx, &store.Session{
		UID:             shortuuid.New(),
		Destination:     "+15551234567",
		DialogID:        &d.ID,
		StartedTs:       now,
		LastUpdatedTs:   now,
		LatestVariables: "{}",
	})
	require.NoError(t, err)

	return session
}

func TestSweepNudgesEveryOpenSession(t *testing.T) {
	ctx := context.Background()
	testStore := storetest.NewTestingStore(ctx, t)

	interpreter := &countingInterpreter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := dialog.NewEngine(testStore, &profile.Profile{Mode: "dev", Driver: "sqlite"}, interpreter, logger)

	createOpenSession(t, testStore, "first")
	createOpenSession(t, testStore, "second")

	// An already-finished session must not be swept.
	closed := createOpenSession(t, testStore, "third")
	now := time.Now().Unix()
	require.NoError(t, testStore.UpdateSession(ctx, &store.UpdateSession{ID: closed.ID, FinishedTs: &now}))

	runner := NewRunner(testStore, engine, time.Minute)
	require.NoError(t, runner.Sweep(ctx))

	assert.ElementsMatch(t, []string{"first", "second"}, interpreter.seen)

	open := true
	remaining, err := testStore.ListSessions(ctx, &store.FindSession{Open: &open})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSweepContinuesPastFailingSession(t *testing.T) {
	ctx := context.Background()
	testStore := storetest.NewTestingStore(ctx, t)

	interpreter := &failOnceInterpreter{failKey: "broken"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := dialog.NewEngine(testStore, &profile.Profile{Mode: "dev", Driver: "sqlite"}, interpreter, logger)

	// Newest-first sweep order means the failing session is hit first.
	createOpenSession(t, testStore, "healthy")
	createOpenSession(t, testStore, "broken")

	runner := NewRunner(testStore, engine, time.Minute)
	err := runner.Sweep(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpreter exploded")
	assert.Contains(t, interpreter.seen, "healthy")
}

type failOnceInterpreter struct {
	countingInterpreter
	failKey string
}

func (f *failOnceInterpreter) Process(ctx context.Context, d *store.Dialog, message *string, extras map[string]any) ([]dialog.Action, error) {
	if d.Key == f.failKey {
		return nil, errors.New("interpreter exploded")
	}

	return f.countingInterpreter.Process(ctx, d, message, extras)
}
