package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Script node fields a launch may override from metadata.
var wellKnownNodeOverrides = []string{"interrupt_minutes", "pause_minutes", "timeout_minutes"}

// LaunchRequest asks for a new session running the named script.
type LaunchRequest struct {
	// Destination is the cleartext identity the session binds to.
	Destination string

	ScriptIdentifier string

	// DeliveryMetadata carries side-channel overrides from the triggering
	// outbound message, including an optional message_channel hint.
	DeliveryMetadata map[string]any

	// RequestID names the originating outbound message, so launch failures
	// can be recorded on it.
	RequestID *int32
}

// LaunchResult reports the outcome of a launch. Failures are carried in
// Error; the launch boundary never raises.
type LaunchResult struct {
	SessionID  int32
	SessionUID string
	Error      string
}

// Launch cancels any open sessions for the destination and starts a new
// one running the requested script.
func (e *Engine) Launch(ctx context.Context, request *LaunchRequest) *LaunchResult {
	open, err := e.OpenSessionsForDestination(ctx, request.Destination, nil)
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to query open sessions: %s", err))
	}

	now := time.Now()

	for _, session := range open {
		if err := e.finishSession(ctx, session, FinishReasonDialogCancelled, now); err != nil {
			return e.launchFailed(ctx, request, fmt.Sprintf("failed to cancel open session %d: %s", session.ID, err))
		}
	}

	script, err := e.store.GetDialogScript(ctx, &store.FindDialogScript{Identifier: &request.ScriptIdentifier})
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to resolve script: %s", err))
	}

	if script == nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("script not found: %s", request.ScriptIdentifier))
	}

	metadata, err := e.buildDialogMetadata(ctx, script, request.Destination, request.DeliveryMetadata)
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to build dialog metadata: %s", err))
	}

	snapshot := applyNodeOverrides(script.Definition, metadata)

	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to encode dialog metadata: %s", err))
	}

	dialog, err := e.store.CreateDialog(ctx, &store.Dialog{
		Key:       script.Identifier,
		ScriptID:  &script.ID,
		Snapshot:  snapshot,
		Metadata:  string(encodedMetadata),
		StartedTs: now.Unix(),
	})
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to create dialog: %s", err))
	}

	protected, err := e.codec.Protect(request.Destination)
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to protect destination: %s", err))
	}

	session := &store.Session{
		UID:             shortuuid.New(),
		Destination:     protected,
		DialogID:        &dialog.ID,
		StartedTs:       now.Unix(),
		LastUpdatedTs:   now.Unix(),
		LatestVariables: "{}",
	}

	if channel := e.resolveLaunchChannel(ctx, request.DeliveryMetadata); channel != nil {
		session.TransmissionChannel = &channel.Identifier
	}

	created, err := e.store.CreateSession(ctx, session)
	if err != nil {
		return e.launchFailed(ctx, request, fmt.Sprintf("failed to create session: %s", err))
	}

	e.logger.Info("launched dialog session",
		"session_id", created.ID,
		"session_uid", created.UID,
		"script", script.Identifier)

	return &LaunchResult{SessionID: created.ID, SessionUID: created.UID}
}

// launchFailed records the failure on the originating request and returns
// it as a structured result.
func (e *Engine) launchFailed(ctx context.Context, request *LaunchRequest, message string) *LaunchResult {
	e.logger.Warn("dialog launch failed", "script", request.ScriptIdentifier, "error", message)

	if request.RequestID != nil {
		if err := e.store.UpdateOutgoingMessage(ctx, &store.UpdateOutgoingMessage{
			ID:           *request.RequestID,
			ErrorMessage: &message,
		}); err != nil {
			e.logger.Warn("failed to record launch error on request", "request_id", *request.RequestID, "error", err)
		}
	}

	return &LaunchResult{Error: message}
}

// buildDialogMetadata layers the new dialog's metadata: global template
// variables, then script-scoped ones, then collaborator contributions,
// then delivery overrides. Later layers win on key collision.
func (e *Engine) buildDialogMetadata(ctx context.Context, script *store.DialogScript, destination string, deliveryMetadata map[string]any) (map[string]any, error) {
	metadata := map[string]any{}

	labels := script.LabelsList()

	globals, err := e.store.ListTemplateVariables(ctx, &store.FindTemplateVariable{GlobalOnly: true})
	if err != nil {
		return nil, err
	}

	for _, variable := range globals {
		metadata[variable.Key] = selectTemplateValue(variable.Value, labels)
	}

	scoped, err := e.store.ListTemplateVariables(ctx, &store.FindTemplateVariable{ScriptID: &script.ID})
	if err != nil {
		return nil, err
	}

	for _, variable := range scoped {
		metadata[variable.Key] = selectTemplateValue(variable.Value, labels)
	}

	for _, collaborator := range e.registry.Collaborators() {
		fetcher, ok := collaborator.(DialogMetadataFetcher)
		if !ok {
			continue
		}

		fetched, err := fetcher.FetchDialogMetadata(ctx, destination, &store.Dialog{Key: script.Identifier, ScriptID: &script.ID})
		if err != nil {
			e.logger.Warn("collaborator failed fetching dialog metadata", "collaborator", collaborator.Name(), "error", err)
			continue
		}

		for key, value := range fetched {
			metadata[key] = value
		}
	}

	for key, value := range deliveryMetadata {
		metadata[key] = value
	}

	return metadata, nil
}

// selectTemplateValue resolves a template variable's stored value. A
// multi-line value holds labeled tag|value variants; the variant whose tag
// matches one of the script's labels wins, falling back to the first
// line's last token.
func selectTemplateValue(value string, scriptLabels []string) string {
	lines := strings.Split(strings.TrimSpace(value), "\n")

	if len(lines) <= 1 {
		return value
	}

	selected := ""
	found := false

	for _, line := range lines {
		tokens := strings.Split(line, "|")

		if len(tokens) == 1 {
			selected = tokens[0]
			found = true
			continue
		}

		for _, label := range scriptLabels {
			if tokens[0] == label {
				selected = tokens[1]
				found = true
				break
			}
		}
	}

	if !found {
		firstTokens := strings.Split(lines[0], "|")
		return firstTokens[len(firstTokens)-1]
	}

	return selected
}

// applyNodeOverrides rewrites timing fields in the script definition from
// launch metadata. Only nodes already carrying a field are rewritten; the
// override never adds timing behavior a node did not declare.
func applyNodeOverrides(definition string, metadata map[string]any) string {
	var nodes []map[string]any
	if err := json.Unmarshal([]byte(definition), &nodes); err != nil {
		return definition
	}

	changed := false

	for _, field := range wellKnownNodeOverrides {
		override, present := metadata[field]
		if !present {
			continue
		}

		for _, node := range nodes {
			if _, carries := node[field]; carries {
				node[field] = override
				changed = true
			}
		}
	}

	if !changed {
		return definition
	}

	rewritten, err := json.Marshal(nodes)
	if err != nil {
		return definition
	}

	return string(rewritten)
}

// resolveLaunchChannel settles the new session's transmission channel from
// the delivery metadata hint, falling back to the directory default. Only
// enabled channels pin a session.
func (e *Engine) resolveLaunchChannel(ctx context.Context, deliveryMetadata map[string]any) *Channel {
	if e.channels == nil {
		return nil
	}

	if name, ok := deliveryMetadata["message_channel"].(string); ok && name != "" {
		channel, err := e.channels.ResolveChannel(ctx, name)
		if err != nil {
			e.logger.Warn("failed to resolve channel", "channel", name, "error", err)
		} else if channel != nil && channel.Enabled {
			return channel
		}
	}

	channel, err := e.channels.DefaultChannel(ctx)
	if err != nil {
		e.logger.Warn("failed to resolve default channel", "error", err)
		return nil
	}

	if channel != nil && channel.Enabled {
		return channel
	}

	return nil
}

// HandleInbound routes one recorded inbound message: open sessions for the
// sender get it as their next turn; otherwise the body is tried as a
// launch keyword. Per-session turn failures do not stop delivery to the
// remaining sessions; the first failure is returned after all were tried.
func (e *Engine) HandleInbound(ctx context.Context, incoming *store.IncomingMessage) error {
	sender, err := e.codec.Reveal(incoming.Sender)
	if err != nil {
		return err
	}

	transmissionExtras := map[string]any{}
	if incoming.TransmissionMetadata != "" {
		_ = json.Unmarshal([]byte(incoming.TransmissionMetadata), &transmissionExtras)
	}

	channelName := e.resolveInboundChannel(ctx, transmissionExtras)

	sessions, err := e.OpenSessionsForDestination(ctx, sender, channelName)
	if err != nil {
		return err
	}

	if len(sessions) > 0 {
		var firstErr error

		for _, session := range sessions {
			stimulus := &Stimulus{Message: incoming.Message}

			// Each session resolves its own channel hint; one session's
			// pinned channel must not leak into the next via the shared
			// inbound metadata.
			sessionExtras := maps.Clone(transmissionExtras)

			if err := e.ProcessResponse(ctx, session, stimulus, nil, sessionExtras, true); err != nil {
				e.logger.Error("turn processing failed", "session_id", session.ID, "error", err)

				if firstErr == nil {
					firstErr = err
				}
			}
		}

		return firstErr
	}

	keyword, err := e.matchLaunchKeyword(ctx, incoming.Message)
	if err != nil {
		return err
	}

	if keyword == nil {
		return nil
	}

	launchMetadata := map[string]any{}
	if channelName != nil {
		launchMetadata["message_channel"] = *channelName
	}

	if _, err := e.CreateOutgoing(ctx, sender, time.Now().Unix(), DialogMessagePrefix+keyword.ScriptIdentifier, nil, launchMetadata); err != nil {
		return err
	}

	return e.FlushPending(ctx)
}

// resolveInboundChannel maps the message's channel hint to an enabled
// logical channel, falling back to the directory default. Nil means no
// channel filtering applies.
func (e *Engine) resolveInboundChannel(ctx context.Context, transmissionExtras map[string]any) *string {
	if e.channels == nil {
		return nil
	}

	if name, ok := transmissionExtras["message_channel"].(string); ok && name != "" {
		channel, err := e.channels.ResolveChannel(ctx, name)
		if err != nil {
			e.logger.Warn("failed to resolve channel", "channel", name, "error", err)
		} else if channel != nil && channel.Enabled {
			return &channel.Identifier
		}
	}

	channel, err := e.channels.DefaultChannel(ctx)
	if err != nil {
		e.logger.Warn("failed to resolve default channel", "error", err)
		return nil
	}

	if channel != nil && channel.Enabled {
		return &channel.Identifier
	}

	return nil
}

// matchLaunchKeyword finds the first registered keyword exactly matching
// the message, in priority order. The wildcard keyword matches anything
// but only after every literal keyword has failed.
func (e *Engine) matchLaunchKeyword(ctx context.Context, message string) (*store.LaunchKeyword, error) {
	keywords, err := e.store.ListLaunchKeywords(ctx, &store.FindLaunchKeyword{})
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(message)

	var wildcard *store.LaunchKeyword

	for _, keyword := range keywords {
		if keyword.Keyword == store.WildcardKeyword {
			if wildcard == nil {
				wildcard = keyword
			}
			continue
		}

		if keyword.CaseSensitive {
			if trimmed == keyword.Keyword {
				return keyword, nil
			}
		} else if strings.EqualFold(trimmed, keyword.Keyword) {
			return keyword, nil
		}
	}

	return wildcard, nil
}
