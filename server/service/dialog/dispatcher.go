package dialog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/internal/observability"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// DialogMessagePrefix marks an outbound message as a launch request rather
// than conversational content. The remainder of the message is the script
// identifier.
const DialogMessagePrefix = "dialog:"

// mediaFetchTimeout bounds the best-effort fetch of an echo action's remote
// media attachment.
const mediaFetchTimeout = 10 * time.Second

// Stimulus is the inbound trigger for one turn. A nil stimulus is a bare
// nudge.
type Stimulus struct {
	Message string

	// Media describes attachments the transport received alongside the
	// message.
	Media []MediaAttachment
}

// MediaAttachment describes one attachment on an inbound message.
type MediaAttachment struct {
	Type       string `json:"type"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
}

// wrapped returns the fuller message object recorded as the last_message
// variable, so downstream consumers see attachments and not just the text.
func (s *Stimulus) wrapped() map[string]any {
	media := make([]any, 0, len(s.Media))

	for _, attachment := range s.Media {
		media = append(media, map[string]any{
			"type":       attachment.Type,
			"size":       attachment.Size,
			"url":        attachment.URL,
			"identifier": attachment.Identifier,
		})
	}

	return map[string]any{
		"value": s.Message,
		"media": media,
	}
}

// dispatchActions runs one turn's action batch in order. Side effects from
// earlier actions are not rolled back when a later action fails; the first
// error is sticky and surfaces after the whole batch has been attempted.
// The boolean reports whether any action warrants a follow-up nudge.
func (e *Engine) dispatchActions(ctx context.Context, tc *observability.TurnContext, session *store.Session, dialog *store.Dialog, actions []Action, extras map[string]any, transmissionExtras map[string]any, stimulus *Stimulus) (bool, error) {
	nudge := false

	var firstErr error

	for _, action := range actions {
		actionNudge, err := e.dispatchAction(ctx, tc, session, dialog, action, extras, transmissionExtras, stimulus)
		if err != nil {
			tc.Error("action dispatch failed", err, slog.String(observability.LogFieldActionType, action.Type()))

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		if actionNudge {
			nudge = true
		}
	}

	return nudge, firstErr
}

func (e *Engine) dispatchAction(ctx context.Context, tc *observability.TurnContext, session *store.Session, dialog *store.Dialog, action Action, extras map[string]any, transmissionExtras map[string]any, stimulus *Stimulus) (bool, error) {
	actionType := action.Type()

	if actionType == "" {
		encoded, _ := json.Marshal(action)
		return false, errors.Errorf("unknown action: %s", string(encoded))
	}

	switch actionType {
	case ActionWaitForInput, ActionPause, ActionExternalChoice:
		// Turn ends here; the next trigger arrives externally.
		return false, nil

	case ActionEcho:
		return true, e.dispatchEcho(ctx, tc, session, dialog, action, transmissionExtras)

	case ActionStoreValue:
		return true, e.dispatchStoreValue(ctx, session, dialog, action, stimulus)

	case ActionUpdateValue:
		return true, e.dispatchUpdateValue(ctx, session, dialog, action)

	case ActionAlert, ActionRaiseAlert:
		return true, e.dispatchAlert(ctx, tc, session, dialog, action)

	case ActionStartNewSession:
		return false, e.dispatchStartNewSession(ctx, session, dialog, action)

	default:
		destination, err := e.RevealDestination(session)
		if err != nil {
			return false, err
		}

		for _, collaborator := range e.registry.Collaborators() {
			executor, ok := collaborator.(CustomActionExecutor)
			if !ok {
				continue
			}

			claimed, err := executor.ExecuteDialogAction(ctx, destination, extras, action)
			if err != nil {
				return false, errors.Wrapf(err, "collaborator %s failed executing %s action", collaborator.Name(), actionType)
			}

			if claimed {
				return false, nil
			}
		}

		encoded, _ := json.Marshal(action)
		return false, errors.Errorf("unknown action: %s", string(encoded))
	}
}

// dispatchEcho renders the action's message against the dialog metadata and
// queues it for delivery at now plus the action's delay.
func (e *Engine) dispatchEcho(ctx context.Context, tc *observability.TurnContext, session *store.Session, dialog *store.Dialog, action Action, transmissionExtras map[string]any) error {
	metadata := dialog.MetadataMap()

	rendered := renderTemplate(action.String("message"), metadata)

	messageMetadata := map[string]any{
		"dialog_metadata": metadata,
	}

	if mediaURL := action.String("media-url"); mediaURL != "" {
		if attachment, ok := e.fetchEchoMedia(ctx, tc, mediaURL); ok {
			messageMetadata["media"] = []any{attachment}
		}
	}

	delay := time.Duration(action.Float("delay", 0) * float64(time.Second))
	sendTs := time.Now().Add(delay).Unix()

	destination, err := e.RevealDestination(session)
	if err != nil {
		return err
	}

	_, err = e.CreateOutgoing(ctx, destination, sendTs, rendered, messageMetadata, transmissionExtras)
	return err
}

func (e *Engine) dispatchStoreValue(ctx context.Context, session *store.Session, dialog *store.Dialog, action Action, stimulus *Stimulus) error {
	destination, err := e.RevealDestination(session)
	if err != nil {
		return err
	}

	value := action["value"]

	// Storing the just-received message keeps the fuller wrapped object so
	// attachments survive.
	if text, ok := value.(string); ok && stimulus != nil && text == stimulus.Message {
		value = stimulus.wrapped()
	}

	for _, collaborator := range e.registry.Collaborators() {
		valueStore, ok := collaborator.(ValueStore)
		if !ok {
			continue
		}

		if err := valueStore.StoreValue(ctx, destination, dialog.Key, action.String("key"), value); err != nil {
			return errors.Wrapf(err, "collaborator %s failed storing value", collaborator.Name())
		}
	}

	return nil
}

func (e *Engine) dispatchUpdateValue(ctx context.Context, session *store.Session, dialog *store.Dialog, action Action) error {
	destination, err := e.RevealDestination(session)
	if err != nil {
		return err
	}

	for _, collaborator := range e.registry.Collaborators() {
		updater, ok := collaborator.(ValueUpdater)
		if !ok {
			continue
		}

		if err := updater.UpdateValue(ctx, destination, dialog.Key, action.String("key"), action["value"], action.String("operation"), action.String("replacement")); err != nil {
			return errors.Wrapf(err, "collaborator %s failed updating value", collaborator.Name())
		}
	}

	return nil
}

func (e *Engine) dispatchAlert(ctx context.Context, tc *observability.TurnContext, session *store.Session, dialog *store.Dialog, action Action) error {
	protectedSender, err := e.codec.Protect(session.Destination)
	if err != nil {
		return err
	}

	now := time.Now().Unix()

	alert, err := e.store.CreateAlert(ctx, &store.Alert{
		Sender:        protectedSender,
		DialogID:      &dialog.ID,
		Message:       action.String("message"),
		AddedTs:       now,
		LastUpdatedTs: now,
		Metadata:      "{}",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create alert")
	}

	for _, collaborator := range e.registry.Collaborators() {
		handler, ok := collaborator.(AlertHandler)
		if !ok {
			continue
		}

		if err := handler.HandleDialogAlert(ctx, alert); err != nil {
			return errors.Wrapf(err, "collaborator %s failed handling alert", collaborator.Name())
		}
	}

	return nil
}

// dispatchStartNewSession queues a self-directed launch request and closes
// the current interpreter run. The launch itself happens when the outbound
// queue is flushed.
func (e *Engine) dispatchStartNewSession(ctx context.Context, session *store.Session, dialog *store.Dialog, action Action) error {
	scriptID := action.String("script_id")
	if scriptID == "" {
		return nil
	}

	transmissionMetadata := map[string]any{}

	if session.TransmissionChannel != nil && *session.TransmissionChannel != "" {
		transmissionMetadata["message_channel"] = *session.TransmissionChannel
	}

	destination, err := e.RevealDestination(session)
	if err != nil {
		return err
	}

	if _, err := e.CreateOutgoing(ctx, destination, time.Now().Unix(), DialogMessagePrefix+scriptID, nil, transmissionMetadata); err != nil {
		return err
	}

	if dialog.IsActive() {
		nowTs := time.Now().Unix()
		reason := FinishReasonStartNewDialog

		if err := e.store.UpdateDialog(ctx, &store.UpdateDialog{
			ID:           dialog.ID,
			FinishedTs:   &nowTs,
			FinishReason: &reason,
		}); err != nil {
			return errors.Wrapf(err, "failed to finish dialog %d", dialog.ID)
		}

		dialog.FinishedTs = &nowTs
		dialog.FinishReason = &reason

		session.LastUpdatedTs = nowTs
	}

	return nil
}

// fetchEchoMedia fetches a remote media resource so its details can ride
// along in the outgoing message metadata. Failures are logged and skipped.
func (e *Engine) fetchEchoMedia(ctx context.Context, tc *observability.TurnContext, mediaURL string) (map[string]any, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, mediaFetchTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, mediaURL, nil)
	if err != nil {
		tc.Warn("skipping malformed media url", slog.String("media_url", mediaURL))
		return nil, false
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		tc.Warn("failed to fetch echo media", slog.String("media_url", mediaURL), slog.String("error", err.Error()))
		return nil, false
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		tc.Warn("echo media fetch returned non-ok status", slog.String("media_url", mediaURL), slog.Int("status", response.StatusCode))
		return nil, false
	}

	return map[string]any{
		"url":  mediaURL,
		"type": response.Header.Get("Content-Type"),
		"size": response.ContentLength,
	}, true
}

// renderTemplate substitutes {{ key }} placeholders with dialog metadata
// values. Unknown keys render as empty strings.
func renderTemplate(text string, metadata map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	template, err := fasttemplate.NewTemplate(text, "{{", "}}")
	if err != nil {
		return text
	}

	return template.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		key := strings.TrimSpace(tag)

		value, ok := metadata[key]
		if !ok {
			return 0, nil
		}

		return w.Write([]byte(stringify(value)))
	})
}

// stringify renders a metadata value for template substitution.
func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
