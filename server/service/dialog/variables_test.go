package dialog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/secrets"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
	storetest "github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store/test"
)

func newTestVariableService(t *testing.T, secretKey string) (*VariableService, *store.Store) {
	t.Helper()

	ctx := context.Background()
	testStore := storetest.NewTestingStore(ctx, t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewVariableService(testStore, secrets.NewCodec(secretKey), logger), testStore
}

func TestFetchLatestReturnsNewestValue(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "")

	now := time.Now()

	for i, color := range []string{"red", "green", "blue"} {
		_, err := service.Append(ctx, "+15551234567", "test-dialog", "color", String(color), now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, nil)
	require.NoError(t, err)

	require.Contains(t, latest, "color")
	assert.True(t, latest["color"].Equal(String("blue")))
}

func TestFetchLatestRoundTripsStructuredValues(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "")

	stored := Map(map[string]Value{
		"value": String("hi"),
		"media": List([]Value{String("https://example.com/a.jpg")}),
	})

	_, err := service.Append(ctx, "+15551234567", "test-dialog", "last_message", stored, time.Now())
	require.NoError(t, err)

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, nil)
	require.NoError(t, err)

	require.Contains(t, latest, "last_message")
	assert.True(t, stored.Equal(latest["last_message"]))
}

func TestFetchLatestScopesBySender(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "test-secret-key")

	_, err := service.Append(ctx, "+15551111111", "test-dialog", "color", String("red"), time.Now())
	require.NoError(t, err)

	_, err = service.Append(ctx, "+15552222222", "test-dialog", "color", String("blue"), time.Now())
	require.NoError(t, err)

	latest, err := service.FetchLatest(ctx, "+15551111111", "test-dialog", nil, nil)
	require.NoError(t, err)

	require.Contains(t, latest, "color")
	assert.True(t, latest["color"].Equal(String("red")))
}

func TestFetchLatestWindowBounds(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "")

	base := time.Unix(1700000000, 0)

	_, err := service.Append(ctx, "+15551234567", "test-dialog", "color", String("red"), base)
	require.NoError(t, err)

	_, err = service.Append(ctx, "+15551234567", "test-dialog", "color", String("blue"), base.Add(time.Hour))
	require.NoError(t, err)

	untilTs := base.Add(time.Minute).Unix()

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, &untilTs)
	require.NoError(t, err)

	require.Contains(t, latest, "color")
	assert.True(t, latest["color"].Equal(String("red")))
}

func TestFetchLatestBackfillsLookupHash(t *testing.T) {
	ctx := context.Background()
	service, testStore := newTestVariableService(t, "test-secret-key")

	// A legacy record written before hashing existed.
	created, err := testStore.CreateVariable(ctx, &store.Variable{
		Sender:    "+15551234567",
		DialogKey: "test-dialog",
		Key:       "color",
		Value:     "red",
		DateSetTs: time.Now().Unix(),
	})
	require.NoError(t, err)
	require.Nil(t, created.LookupHash)

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, nil)
	require.NoError(t, err)
	require.Contains(t, latest, "color")

	variables, err := testStore.ListVariables(ctx, &store.FindVariable{ID: &created.ID})
	require.NoError(t, err)
	require.Len(t, variables, 1)
	require.NotNil(t, variables[0].LookupHash)
}

func TestUpdateValueIncrementNeverSetKey(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "")

	err := service.UpdateValue(ctx, "+15551234567", "test-dialog", "count", 5, OperationIncrement, "")
	require.NoError(t, err)

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, nil)
	require.NoError(t, err)

	require.Contains(t, latest, "count")
	assert.True(t, latest["count"].Equal(Number(5)))
}

func TestUpdateValueAppendListOnScalar(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "")

	_, err := service.Append(ctx, "+15551234567", "test-dialog", "colors", String("red"), time.Now())
	require.NoError(t, err)

	err = service.UpdateValue(ctx, "+15551234567", "test-dialog", "colors", "blue", OperationAppendList, "")
	require.NoError(t, err)

	latest, err := service.FetchLatest(ctx, "+15551234567", "test-dialog", nil, nil)
	require.NoError(t, err)

	items, ok := latest["colors"].ListValue()
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.True(t, items[0].Equal(String("red")))
	assert.True(t, items[1].Equal(String("blue")))
}

func TestUpdateValueIneffectiveRemoveAppendsNothing(t *testing.T) {
	ctx := context.Background()
	service, testStore := newTestVariableService(t, "")

	_, err := service.Append(ctx, "+15551234567", "test-dialog", "color", String("red"), time.Now())
	require.NoError(t, err)

	err = service.UpdateValue(ctx, "+15551234567", "test-dialog", "color", "zzz", OperationRemove, "")
	require.NoError(t, err)

	key := "color"
	variables, err := testStore.ListVariables(ctx, &store.FindVariable{Key: &key})
	require.NoError(t, err)
	assert.Len(t, variables, 1)
}

func TestAppendProtectsSender(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestVariableService(t, "test-secret-key")

	created, err := service.Append(ctx, "+15551234567", "test-dialog", "color", String("red"), time.Now())
	require.NoError(t, err)

	assert.True(t, secrets.IsProtected(created.Sender))
	assert.NotNil(t, created.LookupHash)
}
