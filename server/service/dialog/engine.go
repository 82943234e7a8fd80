package dialog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/secrets"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Finish reasons recorded on a dialog when a session closes for anything
// other than normal script completion.
const (
	FinishReasonDialogCancelled = "dialog_cancelled"
	FinishReasonUserCancelled   = "user_cancelled"
	FinishReasonStartNewDialog  = "start_new_dialog"
)

// Engine coordinates sessions, the variable log, action dispatch, and
// launches. All configuration is injected at construction.
type Engine struct {
	store       *store.Store
	profile     *profile.Profile
	codec       *secrets.Codec
	logger      *slog.Logger
	interpreter Interpreter

	transport Transport
	channels  ChannelDirectory

	registry  *Registry
	variables *VariableService
	locks     *sessionLocks
}

// NewEngine creates an engine. The engine's own variable log joins the
// collaborator registry so that store-value and update-value actions reach
// it through the same dispatch path deployment collaborators use.
func NewEngine(st *store.Store, prof *profile.Profile, interpreter Interpreter, logger *slog.Logger) *Engine {
	codec := secrets.NewCodec(prof.SecretKey)
	variables := NewVariableService(st, codec, logger)

	registry := NewRegistry()
	registry.Register(variables)

	return &Engine{
		store:       st,
		profile:     prof,
		codec:       codec,
		logger:      logger,
		interpreter: interpreter,
		registry:    registry,
		variables:   variables,
		locks:       newSessionLocks(st),
	}
}

// SetInterpreter wires the script interpreter after construction. Turns
// are no-ops until one is set.
func (e *Engine) SetInterpreter(interpreter Interpreter) {
	e.interpreter = interpreter
}

// SetTransport wires the delivery collaborator. Optional.
func (e *Engine) SetTransport(transport Transport) {
	e.transport = transport
}

// SetChannelDirectory wires the channel directory collaborator. Optional.
func (e *Engine) SetChannelDirectory(channels ChannelDirectory) {
	e.channels = channels
}

// Registry exposes the collaborator registry for startup wiring.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Variables exposes the variable service.
func (e *Engine) Variables() *VariableService {
	return e.variables
}

// RevealDestination returns the session's destination in cleartext.
func (e *Engine) RevealDestination(session *store.Session) (string, error) {
	revealed, err := e.codec.Reveal(session.Destination)
	if err != nil {
		return "", errors.Wrapf(err, "failed to reveal destination for session %d", session.ID)
	}
	return revealed, nil
}

// OpenSessionsForDestination finds open sessions bound to the destination.
// Stored destinations may be ciphertext, so every candidate is revealed
// before comparison. A non-nil channel additionally filters to sessions
// pinned to that channel or to none.
func (e *Engine) OpenSessionsForDestination(ctx context.Context, destination string, channel *string) ([]*store.Session, error) {
	open := true
	sessions, err := e.store.ListSessions(ctx, &store.FindSession{Open: &open, NewestFirst: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list open sessions")
	}

	matched := make([]*store.Session, 0)

	for _, session := range sessions {
		revealed, err := e.codec.Reveal(session.Destination)
		if err != nil {
			e.logger.Warn("skipping session with undecryptable destination", "session_id", session.ID)
			continue
		}

		if revealed != destination {
			continue
		}

		if channel != nil && session.TransmissionChannel != nil && *session.TransmissionChannel != *channel {
			continue
		}

		matched = append(matched, session)
	}

	return matched, nil
}

// DistinctDestinations lists every revealed destination ever seen, in first
// session-start order.
func (e *Engine) DistinctDestinations(ctx context.Context) ([]string, error) {
	sessions, err := e.store.ListSessions(ctx, &store.FindSession{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	seen := map[string]bool{}
	destinations := make([]string, 0)

	for _, session := range sessions {
		revealed, err := e.codec.Reveal(session.Destination)
		if err != nil {
			continue
		}

		if !seen[revealed] {
			seen[revealed] = true
			destinations = append(destinations, revealed)
		}
	}

	return destinations, nil
}

// CancelSession closes an open session at the user's request.
func (e *Engine) CancelSession(ctx context.Context, session *store.Session) error {
	return e.finishSession(ctx, session, FinishReasonUserCancelled, time.Now())
}

// finishSession closes the session and its dialog snapshot with the given
// reason. Already-finished sessions are left untouched.
func (e *Engine) finishSession(ctx context.Context, session *store.Session, reason string, now time.Time) error {
	nowTs := now.Unix()

	if session.FinishedTs == nil {
		if err := e.store.UpdateSession(ctx, &store.UpdateSession{
			ID:            session.ID,
			FinishedTs:    &nowTs,
			LastUpdatedTs: &nowTs,
		}); err != nil {
			return errors.Wrapf(err, "failed to finish session %d", session.ID)
		}

		session.FinishedTs = &nowTs
		session.LastUpdatedTs = nowTs
	}

	if session.DialogID == nil {
		return nil
	}

	dialog, err := e.store.GetDialog(ctx, &store.FindDialog{ID: session.DialogID})
	if err != nil {
		return errors.Wrapf(err, "failed to load dialog for session %d", session.ID)
	}

	if dialog == nil || !dialog.IsActive() {
		return nil
	}

	if err := e.store.UpdateDialog(ctx, &store.UpdateDialog{
		ID:           dialog.ID,
		FinishedTs:   &nowTs,
		FinishReason: &reason,
	}); err != nil {
		return errors.Wrapf(err, "failed to finish dialog %d", dialog.ID)
	}

	return nil
}

// UpdateSessionDestination re-points a session at a new destination,
// protecting it when a key is configured. Unchanged destinations are left
// alone unless forced.
func (e *Engine) UpdateSessionDestination(ctx context.Context, session *store.Session, newDestination string, force bool) error {
	current, err := e.codec.Reveal(session.Destination)
	if err != nil {
		return err
	}

	if !force && newDestination == current {
		return nil
	}

	protected, err := e.codec.Protect(newDestination)
	if err != nil {
		return err
	}

	if err := e.store.UpdateSession(ctx, &store.UpdateSession{ID: session.ID, Destination: &protected}); err != nil {
		return errors.Wrapf(err, "failed to update destination for session %d", session.ID)
	}

	session.Destination = protected

	return nil
}

// EncryptAddresses protects every stored identifier that is still in
// cleartext. Safe to re-run; already-protected values pass through.
func (e *Engine) EncryptAddresses(ctx context.Context) error {
	if !e.codec.Enabled() {
		e.logger.Info("no secret key configured, skipping address encryption")
		return nil
	}

	sessions, err := e.store.ListSessions(ctx, &store.FindSession{})
	if err != nil {
		return errors.Wrap(err, "failed to list sessions")
	}

	for _, session := range sessions {
		if secrets.IsProtected(session.Destination) {
			continue
		}

		if err := e.UpdateSessionDestination(ctx, session, session.Destination, true); err != nil {
			return err
		}
	}

	variables, err := e.store.ListVariables(ctx, &store.FindVariable{})
	if err != nil {
		return errors.Wrap(err, "failed to list variables")
	}

	for _, variable := range variables {
		if secrets.IsProtected(variable.Sender) {
			continue
		}

		protected, err := e.codec.Protect(variable.Sender)
		if err != nil {
			return err
		}

		lookupHash, err := e.codec.LookupHash(variable.Sender)
		if err != nil {
			return err
		}

		if err := e.store.UpdateVariable(ctx, &store.UpdateVariable{
			ID:         variable.ID,
			Sender:     &protected,
			LookupHash: &lookupHash,
		}); err != nil {
			return errors.Wrapf(err, "failed to protect variable %d", variable.ID)
		}
	}

	alerts, err := e.store.ListAlerts(ctx, &store.FindAlert{})
	if err != nil {
		return errors.Wrap(err, "failed to list alerts")
	}

	for _, alert := range alerts {
		if secrets.IsProtected(alert.Sender) {
			continue
		}

		protected, err := e.codec.Protect(alert.Sender)
		if err != nil {
			return err
		}

		if err := e.store.UpdateAlert(ctx, &store.UpdateAlert{ID: alert.ID, Sender: &protected}); err != nil {
			return errors.Wrapf(err, "failed to protect alert %d", alert.ID)
		}
	}

	return nil
}
