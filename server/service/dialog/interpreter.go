package dialog

import (
	"context"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Action is one descriptor from the ordered list an interpreter returns for
// a turn. The type tag selects the dispatch contract; remaining fields are
// type-specific.
type Action map[string]any

// Action types the dispatcher knows natively. Anything else is offered to
// custom-action collaborators.
const (
	ActionWaitForInput    = "wait-for-input"
	ActionEcho            = "echo"
	ActionPause           = "pause"
	ActionStoreValue      = "store-value"
	ActionUpdateValue     = "update-value"
	ActionExternalChoice  = "external-choice"
	ActionAlert           = "alert"
	ActionRaiseAlert      = "raise-alert"
	ActionStartNewSession = "start-new-session"
)

// Type returns the action's type tag, or "" when absent.
func (a Action) Type() string {
	return a.String("type")
}

// String returns the named field as a string, or "" when absent or not a
// string.
func (a Action) String(key string) string {
	if value, ok := a[key].(string); ok {
		return value
	}
	return ""
}

// Float returns the named field coerced to a float64, or the fallback.
func (a Action) Float(key string, fallback float64) float64 {
	switch value := a[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	default:
		return fallback
	}
}

// Interpreter is the dialog script interpreter collaborator. Process
// advances the snapshot one step for the given stimulus: it may mutate the
// dialog's Snapshot and Metadata in place, set FinishedTs/FinishReason when
// the run completes, update extras, and return the actions for the turn.
// The engine persists the mutated dialog afterwards. A nil message is a
// bare nudge.
type Interpreter interface {
	Process(ctx context.Context, dialog *store.Dialog, message *string, extras map[string]any) ([]Action, error)
}
