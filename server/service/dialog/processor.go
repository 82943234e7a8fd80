package dialog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/internal/observability"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// maxNudgeHops bounds how many follow-up turns one external trigger may
// drive. A pathological script that never reaches a waiting state trips
// this instead of spinning forever.
const maxNudgeHops = 100

// ProcessResponse runs turns for the session until it reaches quiescence:
// the first turn consumes the stimulus, and each turn whose actions warrant
// a follow-up drives another bare-nudge turn. Hops run outside the turn
// lock, so a concurrent cancel or update can interleave between them; the
// session is re-validated before every hop.
func (e *Engine) ProcessResponse(ctx context.Context, session *store.Session, stimulus *Stimulus, extras map[string]any, transmissionExtras map[string]any, deliverOutbound bool) error {
	if extras == nil {
		extras = map[string]any{}
	}

	if transmissionExtras == nil {
		transmissionExtras = map[string]any{}
	}

	current := stimulus

	for hop := 0; ; hop++ {
		if hop >= maxNudgeHops {
			return errors.Errorf("nudge loop exceeded %d hops for session %d", maxNudgeHops, session.ID)
		}

		nudge, err := e.processTurn(ctx, session, current, extras, transmissionExtras, deliverOutbound, hop)
		if err != nil {
			return err
		}

		if !nudge {
			return nil
		}

		current = nil

		reloaded, err := e.store.GetSession(ctx, &store.FindSession{ID: &session.ID})
		if err != nil {
			return errors.Wrapf(err, "failed to reload session %d between nudge hops", session.ID)
		}

		if reloaded == nil || !reloaded.IsOpen() {
			return nil
		}

		*session = *reloaded
	}
}

// processTurn runs one serialized turn under the session lock. The boolean
// reports whether a follow-up nudge is warranted.
func (e *Engine) processTurn(ctx context.Context, session *store.Session, stimulus *Stimulus, extras map[string]any, transmissionExtras map[string]any, deliverOutbound bool, hop int) (bool, error) {
	if session.DialogID == nil || e.interpreter == nil {
		return false, nil
	}

	release, err := e.locks.acquire(ctx, session.ID)
	if err != nil {
		return false, err
	}
	defer release()

	dialog, err := e.store.GetDialog(ctx, &store.FindDialog{ID: session.DialogID})
	if err != nil {
		return false, errors.Wrapf(err, "failed to load dialog for session %d", session.ID)
	}

	if dialog == nil {
		return false, nil
	}

	tc := observability.NewTurnContext(e.logger, session.ID, dialog.Key)
	tc.Debug("processing turn", slog.Int(observability.LogFieldNudgeHop, hop))

	e.resolveChannelHint(session, transmissionExtras)

	destination, err := e.RevealDestination(session)
	if err != nil {
		return false, err
	}

	var messagePtr *string

	if stimulus != nil {
		message := stimulus.Message
		messagePtr = &message
	}

	for _, collaborator := range e.registry.Collaborators() {
		fetcher, ok := collaborator.(DestinationVariableFetcher)
		if !ok {
			continue
		}

		fetched, err := fetcher.FetchDestinationVariables(ctx, destination)
		if err != nil {
			tc.Warn("collaborator failed fetching destination variables", slog.String("collaborator", collaborator.Name()), slog.String("error", err.Error()))
			continue
		}

		for key, value := range fetched {
			extras[key] = value
		}
	}

	// Record the message before interpreting so the interpreter and the
	// variable log agree on what was just said.
	if stimulus != nil {
		if _, err := e.variables.Append(ctx, destination, dialog.Key, "last_message", FromAny(stimulus.wrapped()), time.Now()); err != nil {
			return false, err
		}
	}

	latest, err := e.fetchLatestVariables(ctx, session, dialog, destination)
	if err != nil {
		return false, err
	}

	for key, value := range latest {
		extras[key] = value.Interface()
	}

	actions, interpretErr := e.interpreter.Process(ctx, dialog, messagePtr, extras)

	// The interpreter mutates the dialog in place; persist whatever state
	// it reached even when it errored partway.
	if err := e.store.UpdateDialog(ctx, &store.UpdateDialog{
		ID:           dialog.ID,
		Snapshot:     &dialog.Snapshot,
		Metadata:     &dialog.Metadata,
		FinishedTs:   dialog.FinishedTs,
		FinishReason: dialog.FinishReason,
	}); err != nil {
		return false, errors.Wrapf(err, "failed to persist dialog %d", dialog.ID)
	}

	if interpretErr != nil {
		return false, errors.Wrapf(interpretErr, "interpreter failed for session %d", session.ID)
	}

	for _, collaborator := range e.registry.Collaborators() {
		updater, ok := collaborator.(DestinationVariableUpdater)
		if !ok {
			continue
		}

		if err := updater.UpdateDestinationVariables(ctx, destination, extras); err != nil {
			tc.Warn("collaborator failed updating destination variables", slog.String("collaborator", collaborator.Name()), slog.String("error", err.Error()))
		}
	}

	nudge := false

	var dispatchErr error

	if len(actions) > 0 {
		session.LastUpdatedTs = time.Now().Unix()

		nudge, dispatchErr = e.dispatchActions(ctx, tc, session, dialog, actions, extras, transmissionExtras, stimulus)
	}

	if dialog.FinishedTs != nil {
		session.FinishedTs = dialog.FinishedTs
		nudge = false
	}

	if err := e.store.UpdateSession(ctx, &store.UpdateSession{
		ID:            session.ID,
		LastUpdatedTs: &session.LastUpdatedTs,
		FinishedTs:    session.FinishedTs,
	}); err != nil {
		return false, errors.Wrapf(err, "failed to persist session %d", session.ID)
	}

	if deliverOutbound {
		if err := e.FlushPending(ctx); err != nil {
			tc.Warn("failed to flush pending outbound messages", slog.String("error", err.Error()))
		}
	}

	tc.Info("turn complete",
		slog.Int64(observability.LogFieldDuration, tc.DurationMs()),
		slog.Bool("nudge_after", nudge),
		slog.Int("actions", len(actions)))

	return nudge, dispatchErr
}

// resolveChannelHint settles which transmission channel outbound replies
// should use for this turn. An explicit session channel always wins; a
// previously cached hint fills the gap when the trigger carried none.
func (e *Engine) resolveChannelHint(session *store.Session, transmissionExtras map[string]any) {
	if session.TransmissionChannel != nil {
		transmissionExtras["message_channel"] = *session.TransmissionChannel
		return
	}

	if _, present := transmissionExtras["message_channel"]; present {
		return
	}

	cached := map[string]any{}
	if session.LatestVariables != "" {
		_ = json.Unmarshal([]byte(session.LatestVariables), &cached)
	}

	if channel, ok := cached["message_channel"]; ok {
		transmissionExtras["message_channel"] = channel
	}
}

// fetchLatestVariables materializes the session's variable view, reading
// only records newer than the cached watermark and never past the
// session's finish time. The refreshed cache is persisted with its new
// watermark.
func (e *Engine) fetchLatestVariables(ctx context.Context, session *store.Session, dialog *store.Dialog, destination string) (map[string]Value, error) {
	cached := map[string]Value{}

	if session.LatestVariables != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(session.LatestVariables), &raw); err == nil {
			for key, value := range raw {
				cached[key] = FromAny(value)
			}
		}
	}

	// A closed session's view is frozen once the cache has caught up to
	// the finish time.
	if session.FinishedTs != nil && session.LastVariableUpdateTs != nil && *session.LastVariableUpdateTs > *session.FinishedTs {
		return cached, nil
	}

	latest, err := e.variables.FetchLatest(ctx, destination, dialog.Key, session.LastVariableUpdateTs, session.FinishedTs)
	if err != nil {
		return nil, err
	}

	for key, value := range latest {
		cached[key] = value
	}

	plain := map[string]any{}
	for key, value := range cached {
		plain[key] = value.Interface()
	}

	encoded, err := json.Marshal(plain)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode latest variables")
	}

	encodedStr := string(encoded)
	nowTs := time.Now().Unix()

	if err := e.store.UpdateSession(ctx, &store.UpdateSession{
		ID:                   session.ID,
		LatestVariables:      &encodedStr,
		LastVariableUpdateTs: &nowTs,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to persist variable cache for session %d", session.ID)
	}

	session.LatestVariables = encodedStr
	session.LastVariableUpdateTs = &nowTs

	return cached, nil
}
