package dialog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
	storetest "github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store/test"
)

// scriptedInterpreter returns one prepared action batch per call and marks
// the dialog finished once the batches run out.
type scriptedInterpreter struct {
	mu    sync.Mutex
	turns [][]Action
	calls int

	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
}

func (s *scriptedInterpreter) Process(ctx context.Context, dialog *store.Dialog, message *string, extras map[string]any) ([]Action, error) {
	current := s.active.Add(1)
	defer s.active.Add(-1)

	for {
		max := s.maxActive.Load()
		if current <= max || s.maxActive.CompareAndSwap(max, current) {
			break
		}
	}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls >= len(s.turns) {
		s.calls++

		if dialog.FinishedTs == nil {
			now := time.Now().Unix()
			dialog.FinishedTs = &now
		}
		return nil, nil
	}

	actions := s.turns[s.calls]
	s.calls++

	return actions, nil
}

func (s *scriptedInterpreter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestEngine(t *testing.T, interpreter Interpreter, secretKey string) (*Engine, *store.Store) {
	t.Helper()

	ctx := context.Background()
	testStore := storetest.NewTestingStore(ctx, t)

	testProfile := &profile.Profile{Mode: "dev", Driver: "sqlite", SecretKey: secretKey}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewEngine(testStore, testProfile, interpreter, logger), testStore
}

func createSessionFixture(t *testing.T, testStore *store.Store, destination, metadata string) (*store.Session, *store.Dialog) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().Unix()

	dialog, err := testStore.CreateDialog(ctx, &store.Dialog{
		Key:       "test-script",
		Snapshot:  "[]",
		Metadata:  metadata,
		StartedTs: now,
	})
	require.NoError(t, err)

	session, err := testStore.CreateSession(ctx, &store.Session{
		UID:             shortuuid.New(),
		Destination:     destination,
		DialogID:        &dialog.ID,
		StartedTs:       now,
		LastUpdatedTs:   now,
		LatestVariables: "{}",
	})
	require.NoError(t, err)

	return session, dialog
}

func TestProcessResponseWithoutDialogIsNoOp(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{}
	engine, testStore := newTestEngine(t, interpreter, "")

	now := time.Now().Unix()
	session, err := testStore.CreateSession(ctx, &store.Session{
		UID:           shortuuid.New(),
		Destination:   "+15551234567",
		StartedTs:     now,
		LastUpdatedTs: now,
	})
	require.NoError(t, err)

	message := &Stimulus{Message: "hello"}
	require.NoError(t, engine.ProcessResponse(ctx, session, message, nil, nil, false))

	assert.Equal(t, 0, interpreter.callCount())

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)
	assert.Equal(t, now, reloaded.LastUpdatedTs)
}

func TestProcessResponseWithoutInterpreterIsNoOp(t *testing.T) {
	ctx := context.Background()

	engine, testStore := newTestEngine(t, nil, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	require.NoError(t, engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false))

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)
	assert.True(t, reloaded.IsOpen())
}

func TestStoreValueAndEchoTurn(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": ActionStoreValue, "key": "color", "value": "blue"},
			{"type": ActionEcho, "message": "Hello {{ name }}"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", `{"name": "Ada"}`)

	stimulus := &Stimulus{Message: "hi"}
	require.NoError(t, engine.ProcessResponse(ctx, session, stimulus, nil, nil, false))

	// One hop for the stimulus plus exactly one follow-up nudge.
	assert.Equal(t, 2, interpreter.callCount())

	key := "color"
	variables, err := testStore.ListVariables(ctx, &store.FindVariable{Key: &key})
	require.NoError(t, err)
	require.Len(t, variables, 1)
	assert.Equal(t, "blue", variables[0].Value)

	outgoing, err := testStore.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{})
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "Hello Ada", outgoing[0].Message)
}

func TestStoreValueWrapsInboundMessage(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": ActionStoreValue, "key": "answer", "value": "yes"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	stimulus := &Stimulus{Message: "yes"}
	require.NoError(t, engine.ProcessResponse(ctx, session, stimulus, nil, nil, false))

	key := "answer"
	variables, err := testStore.ListVariables(ctx, &store.FindVariable{Key: &key})
	require.NoError(t, err)
	require.Len(t, variables, 1)

	stored := DecodeStored(variables[0].Value)
	m, ok := stored.MapValue()
	require.True(t, ok)
	assert.True(t, m["value"].Equal(String("yes")))
}

func TestFinishedDialogClosesSession(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{}
	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	stimulus := &Stimulus{Message: "hi"}
	require.NoError(t, engine.ProcessResponse(ctx, session, stimulus, nil, nil, false))

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)
	assert.False(t, reloaded.IsOpen())
}

func TestUnknownActionIsFatal(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": "frobnicate"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	stimulus := &Stimulus{Message: "hi"}
	err := engine.ProcessResponse(ctx, session, stimulus, nil, nil, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
	_ = testStore
}

func TestActionMissingTypeIsFatal(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"message": "no type here"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	err := engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
	_ = testStore
}

func TestStickyErrorStillRunsLaterActions(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": "frobnicate"},
			{"type": ActionStoreValue, "key": "color", "value": "blue"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	err := engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false)
	require.Error(t, err)

	key := "color"
	variables, err := testStore.ListVariables(ctx, &store.FindVariable{Key: &key})
	require.NoError(t, err)
	assert.Len(t, variables, 1)
}

func TestConcurrentProcessingNeverInterleaves(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{
			{{"type": ActionWaitForInput}},
			{{"type": ActionWaitForInput}},
		},
		delay: 50 * time.Millisecond,
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	var wg sync.WaitGroup

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			sessionCopy := *session
			_ = engine.ProcessResponse(ctx, &sessionCopy, &Stimulus{Message: "hi"}, nil, nil, false)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), interpreter.maxActive.Load())
	_ = testStore
}

func TestStartNewSessionQueuesLaunchRequest(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": ActionStartNewSession, "script_id": "followup-script"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, dialog := createSessionFixture(t, testStore, "+15551234567", "{}")

	require.NoError(t, engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false))

	outgoing, err := testStore.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{})
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "dialog:followup-script", outgoing[0].Message)

	reloadedDialog, err := testStore.GetDialog(ctx, &store.FindDialog{ID: &dialog.ID})
	require.NoError(t, err)
	require.NotNil(t, reloadedDialog.FinishReason)
	assert.Equal(t, FinishReasonStartNewDialog, *reloadedDialog.FinishReason)
}

func TestAlertActionCreatesAlertAndNotifiesHandlers(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": ActionRaiseAlert, "message": "participant needs help"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, dialog := createSessionFixture(t, testStore, "+15551234567", "{}")

	handler := &recordingAlertHandler{}
	engine.Registry().Register(handler)

	require.NoError(t, engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false))

	alerts, err := testStore.ListAlerts(ctx, &store.FindAlert{DialogID: &dialog.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "participant needs help", alerts[0].Message)
	assert.True(t, alerts[0].IsUnread())

	assert.Equal(t, int32(1), handler.handled.Load())
}

type recordingAlertHandler struct {
	handled atomic.Int32
}

func (h *recordingAlertHandler) Name() string { return "test.alerts" }

func (h *recordingAlertHandler) HandleDialogAlert(ctx context.Context, alert *store.Alert) error {
	h.handled.Add(1)
	return nil
}

func TestCustomActionClaimedByCollaborator(t *testing.T) {
	ctx := context.Background()

	interpreter := &scriptedInterpreter{
		turns: [][]Action{{
			{"type": "send-survey", "survey": "weekly-checkin"},
		}},
	}

	engine, testStore := newTestEngine(t, interpreter, "")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	executor := &claimingExecutor{claims: "send-survey"}
	engine.Registry().Register(executor)

	require.NoError(t, engine.ProcessResponse(ctx, session, &Stimulus{Message: "hi"}, nil, nil, false))

	assert.Equal(t, int32(1), executor.executed.Load())
	_ = testStore
}

type claimingExecutor struct {
	claims   string
	executed atomic.Int32
}

func (c *claimingExecutor) Name() string { return "test.custom" }

func (c *claimingExecutor) ExecuteDialogAction(ctx context.Context, destination string, extras map[string]any, action Action) (bool, error) {
	if action.Type() != c.claims {
		return false, nil
	}

	c.executed.Add(1)
	return true, nil
}

func TestCancelSessionRecordsReason(t *testing.T) {
	ctx := context.Background()

	engine, testStore := newTestEngine(t, &scriptedInterpreter{}, "")
	session, dialog := createSessionFixture(t, testStore, "+15551234567", "{}")

	require.NoError(t, engine.CancelSession(ctx, session))

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)
	assert.False(t, reloaded.IsOpen())

	reloadedDialog, err := testStore.GetDialog(ctx, &store.FindDialog{ID: &dialog.ID})
	require.NoError(t, err)
	require.NotNil(t, reloadedDialog.FinishReason)
	assert.Equal(t, FinishReasonUserCancelled, *reloadedDialog.FinishReason)
}

func TestUpdateSessionDestinationProtects(t *testing.T) {
	ctx := context.Background()

	engine, testStore := newTestEngine(t, &scriptedInterpreter{}, "test-secret-key")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	require.NoError(t, engine.UpdateSessionDestination(ctx, session, "+15559999999", false))

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)

	revealed, err := engine.RevealDestination(reloaded)
	require.NoError(t, err)
	assert.Equal(t, "+15559999999", revealed)
	assert.NotEqual(t, "+15559999999", reloaded.Destination)
}

func TestEncryptAddressesBackfillsCleartext(t *testing.T) {
	ctx := context.Background()

	engine, testStore := newTestEngine(t, &scriptedInterpreter{}, "test-secret-key")
	session, _ := createSessionFixture(t, testStore, "+15551234567", "{}")

	now := time.Now().Unix()
	_, err := testStore.CreateVariable(ctx, &store.Variable{
		Sender:    "+15551234567",
		DialogKey: "test-script",
		Key:       "color",
		Value:     "red",
		DateSetTs: now,
	})
	require.NoError(t, err)

	require.NoError(t, engine.EncryptAddresses(ctx))

	reloaded, err := testStore.GetSession(ctx, &store.FindSession{ID: &session.ID})
	require.NoError(t, err)
	assert.NotEqual(t, "+15551234567", reloaded.Destination)

	revealed, err := engine.RevealDestination(reloaded)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", revealed)

	variables, err := testStore.ListVariables(ctx, &store.FindVariable{})
	require.NoError(t, err)
	require.Len(t, variables, 1)
	assert.NotEqual(t, "+15551234567", variables[0].Sender)
	require.NotNil(t, variables[0].LookupHash)
}
