package dialog

import (
	"context"
	"sync"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Collaborator is a deployment-provided extension point. Implementations
// opt into capabilities by additionally implementing any of the optional
// interfaces below; absence of a capability is never an error.
type Collaborator interface {
	Name() string
}

// DestinationVariableFetcher supplies destination-scoped context variables
// merged into a turn's extras before interpretation.
type DestinationVariableFetcher interface {
	FetchDestinationVariables(ctx context.Context, destination string) (map[string]any, error)
}

// DestinationVariableUpdater receives the possibly-mutated extras after
// interpretation. Failures are logged, never fatal.
type DestinationVariableUpdater interface {
	UpdateDestinationVariables(ctx context.Context, destination string, extras map[string]any) error
}

// ValueStore persists a store-value action.
type ValueStore interface {
	StoreValue(ctx context.Context, sender, dialogKey, key string, value any) error
}

// ValueUpdater applies an update-value action.
type ValueUpdater interface {
	UpdateValue(ctx context.Context, sender, dialogKey, key string, value any, operation, replacement string) error
}

// CustomActionExecutor handles action types the engine does not know. The
// boolean reports whether the action was claimed; the first claiming
// collaborator wins.
type CustomActionExecutor interface {
	ExecuteDialogAction(ctx context.Context, destination string, extras map[string]any, action Action) (bool, error)
}

// AlertHandler is notified after an alert is raised.
type AlertHandler interface {
	HandleDialogAlert(ctx context.Context, alert *store.Alert) error
}

// DialogMetadataFetcher contributes metadata when a new dialog snapshot is
// created at launch.
type DialogMetadataFetcher interface {
	FetchDialogMetadata(ctx context.Context, destination string, dialog *store.Dialog) (map[string]any, error)
}

// Registry is the process-wide ordered set of collaborators, populated at
// startup. Registration order is dispatch order.
type Registry struct {
	mu            sync.RWMutex
	collaborators []Collaborator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a collaborator.
func (r *Registry) Register(collaborator Collaborator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collaborators = append(r.collaborators, collaborator)
}

// Collaborators returns the registered collaborators in order.
func (r *Registry) Collaborators() []Collaborator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Collaborator, len(r.collaborators))
	copy(list, r.collaborators)
	return list
}

// Channel is a logical transmission route.
type Channel struct {
	Identifier string
	Enabled    bool
}

// ChannelDirectory resolves transmission channels. Both methods return nil
// when no channel applies.
type ChannelDirectory interface {
	DefaultChannel(ctx context.Context) (*Channel, error)
	ResolveChannel(ctx context.Context, name string) (*Channel, error)
}

// Transport delivers queued outbound messages. Delivery mechanics (queuing,
// retries, provider APIs) are owned entirely by the implementation.
type Transport interface {
	DeliverMessage(ctx context.Context, message *store.OutgoingMessage) error
}
