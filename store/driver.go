package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Session model related methods.
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	UpdateSession(ctx context.Context, update *UpdateSession) error
	DeleteSession(ctx context.Context, delete *DeleteSession) error

	// Variable model related methods. The variable log is append-only;
	// UpdateVariable exists only for identity-protection maintenance.
	CreateVariable(ctx context.Context, create *Variable) (*Variable, error)
	ListVariables(ctx context.Context, find *FindVariable) ([]*Variable, error)
	UpdateVariable(ctx context.Context, update *UpdateVariable) error

	// TemplateVariable model related methods.
	CreateTemplateVariable(ctx context.Context, create *TemplateVariable) (*TemplateVariable, error)
	ListTemplateVariables(ctx context.Context, find *FindTemplateVariable) ([]*TemplateVariable, error)
	DeleteTemplateVariable(ctx context.Context, delete *DeleteTemplateVariable) error

	// Alert model related methods.
	CreateAlert(ctx context.Context, create *Alert) (*Alert, error)
	ListAlerts(ctx context.Context, find *FindAlert) ([]*Alert, error)
	UpdateAlert(ctx context.Context, update *UpdateAlert) error

	// LaunchKeyword model related methods.
	CreateLaunchKeyword(ctx context.Context, create *LaunchKeyword) (*LaunchKeyword, error)
	ListLaunchKeywords(ctx context.Context, find *FindLaunchKeyword) ([]*LaunchKeyword, error)
	DeleteLaunchKeyword(ctx context.Context, delete *DeleteLaunchKeyword) error

	// Dialog model related methods.
	CreateDialog(ctx context.Context, create *Dialog) (*Dialog, error)
	ListDialogs(ctx context.Context, find *FindDialog) ([]*Dialog, error)
	UpdateDialog(ctx context.Context, update *UpdateDialog) error

	// DialogScript model related methods.
	CreateDialogScript(ctx context.Context, create *DialogScript) (*DialogScript, error)
	ListDialogScripts(ctx context.Context, find *FindDialogScript) ([]*DialogScript, error)

	// IncomingMessage model related methods.
	CreateIncomingMessage(ctx context.Context, create *IncomingMessage) (*IncomingMessage, error)
	ListIncomingMessages(ctx context.Context, find *FindIncomingMessage) ([]*IncomingMessage, error)

	// Session lock lease methods. The lease row is the cross-process half
	// of the turn lock; in-process waiters queue in the engine.
	TryAcquireSessionLock(ctx context.Context, acquire *AcquireSessionLock) (bool, error)
	ReleaseSessionLock(ctx context.Context, release *ReleaseSessionLock) error

	// OutgoingMessage model related methods.
	CreateOutgoingMessage(ctx context.Context, create *OutgoingMessage) (*OutgoingMessage, error)
	ListOutgoingMessages(ctx context.Context, find *FindOutgoingMessage) ([]*OutgoingMessage, error)
	UpdateOutgoingMessage(ctx context.Context, update *UpdateOutgoingMessage) error
}
