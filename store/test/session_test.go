package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	now := time.Now().Unix()

	first, err := ts.CreateSession(ctx, &store.Session{
		UID:           "session-one",
		Destination:   "+15551111111",
		StartedTs:     now - 100,
		LastUpdatedTs: now - 100,
	})
	require.NoError(t, err)

	second, err := ts.CreateSession(ctx, &store.Session{
		UID:           "session-two",
		Destination:   "+15552222222",
		StartedTs:     now,
		LastUpdatedTs: now,
	})
	require.NoError(t, err)

	// Default ordering is oldest first, for export.
	sessions, err := ts.ListSessions(ctx, &store.FindSession{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)

	newest, err := ts.ListSessions(ctx, &store.FindSession{NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, second.ID, newest[0].ID)

	require.NoError(t, ts.UpdateSession(ctx, &store.UpdateSession{ID: first.ID, FinishedTs: &now}))

	open := true
	openSessions, err := ts.ListSessions(ctx, &store.FindSession{Open: &open})
	require.NoError(t, err)
	require.Len(t, openSessions, 1)
	assert.Equal(t, second.ID, openSessions[0].ID)

	closed := false
	closedSessions, err := ts.ListSessions(ctx, &store.FindSession{Open: &closed})
	require.NoError(t, err)
	require.Len(t, closedSessions, 1)
	assert.Equal(t, first.ID, closedSessions[0].ID)

	uid := "session-two"
	byUID, err := ts.GetSession(ctx, &store.FindSession{UID: &uid})
	require.NoError(t, err)
	require.NotNil(t, byUID)
	assert.Equal(t, second.ID, byUID.ID)
}

func TestOutgoingMessageStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	now := time.Now().Unix()

	queued, err := ts.CreateOutgoingMessage(ctx, &store.OutgoingMessage{
		UID:                  "msg-one",
		Destination:          "+15551111111",
		SendTs:               now,
		Message:              "hello",
		MessageMetadata:      "{}",
		TransmissionMetadata: "{}",
	})
	require.NoError(t, err)
	assert.True(t, queued.IsPending())

	pending := true
	messages, err := ts.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{Pending: &pending})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, ts.UpdateOutgoingMessage(ctx, &store.UpdateOutgoingMessage{ID: queued.ID, SentTs: &now}))

	messages, err = ts.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{Pending: &pending})
	require.NoError(t, err)
	assert.Empty(t, messages)

	errored, err := ts.CreateOutgoingMessage(ctx, &store.OutgoingMessage{
		UID:                  "msg-two",
		Destination:          "+15551111111",
		SendTs:               now,
		Message:              "dialog:missing",
		MessageMetadata:      "{}",
		TransmissionMetadata: "{}",
	})
	require.NoError(t, err)

	failure := "script not found: missing"
	require.NoError(t, ts.UpdateOutgoingMessage(ctx, &store.UpdateOutgoingMessage{ID: errored.ID, ErrorMessage: &failure}))

	// An errored message is no longer pending.
	messages, err = ts.ListOutgoingMessages(ctx, &store.FindOutgoingMessage{Pending: &pending})
	require.NoError(t, err)
	assert.Empty(t, messages)
}
