package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldTurnID is the field name for turn ID.
	LogFieldTurnID = "turn_id"
	// LogFieldSessionID is the field name for session ID.
	LogFieldSessionID = "session_id"
	// LogFieldDialogKey is the field name for the dialog key.
	LogFieldDialogKey = "dialog_key"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldActionType is the field name for a dispatched action type.
	LogFieldActionType = "action_type"
	// LogFieldNudgeHop is the field name for the nudge loop hop count.
	LogFieldNudgeHop = "nudge_hop"
)

// TurnContext carries structured logging state for a single processing turn.
type TurnContext struct {
	TurnID    string
	SessionID int32
	DialogKey string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewTurnContext creates a new turn context with a generated turn ID.
func NewTurnContext(logger *slog.Logger, sessionID int32, dialogKey string) *TurnContext {
	return &TurnContext{
		TurnID:    uuid.New().String(),
		SessionID: sessionID,
		DialogKey: dialogKey,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// Info logs an info message.
func (t *TurnContext) Info(msg string, attrs ...slog.Attr) {
	t.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, t.combined(attrs...)...)
}

// Debug logs a debug message.
func (t *TurnContext) Debug(msg string, attrs ...slog.Attr) {
	t.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, t.combined(attrs...)...)
}

// Warn logs a warning message.
func (t *TurnContext) Warn(msg string, attrs ...slog.Attr) {
	t.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, t.combined(attrs...)...)
}

// Error logs an error message with the error.
func (t *TurnContext) Error(msg string, err error, attrs ...slog.Attr) {
	allAttrs := append(attrs, slog.String("error", err.Error()))
	t.Logger.LogAttrs(context.Background(), slog.LevelError, msg, t.combined(allAttrs...)...)
}

// DurationMs returns the elapsed time in milliseconds.
func (t *TurnContext) DurationMs() int64 {
	return time.Since(t.StartTime).Milliseconds()
}

func (t *TurnContext) combined(attrs ...slog.Attr) []slog.Attr {
	base := []slog.Attr{
		slog.String(LogFieldTurnID, t.TurnID),
		slog.Int64(LogFieldSessionID, int64(t.SessionID)),
		slog.String(LogFieldDialogKey, t.DialogKey),
	}
	return append(base, attrs...)
}
