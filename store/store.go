package store

import (
	"context"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	return s.driver.CreateSession(ctx, create)
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// GetSession returns the single session matching the find, or nil.
func (s *Store) GetSession(ctx context.Context, find *FindSession) (*Session, error) {
	list, err := s.driver.ListSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateSession(ctx context.Context, update *UpdateSession) error {
	return s.driver.UpdateSession(ctx, update)
}

func (s *Store) DeleteSession(ctx context.Context, delete *DeleteSession) error {
	return s.driver.DeleteSession(ctx, delete)
}

func (s *Store) CreateVariable(ctx context.Context, create *Variable) (*Variable, error) {
	return s.driver.CreateVariable(ctx, create)
}

func (s *Store) ListVariables(ctx context.Context, find *FindVariable) ([]*Variable, error) {
	return s.driver.ListVariables(ctx, find)
}

func (s *Store) UpdateVariable(ctx context.Context, update *UpdateVariable) error {
	return s.driver.UpdateVariable(ctx, update)
}

func (s *Store) CreateTemplateVariable(ctx context.Context, create *TemplateVariable) (*TemplateVariable, error) {
	return s.driver.CreateTemplateVariable(ctx, create)
}

func (s *Store) ListTemplateVariables(ctx context.Context, find *FindTemplateVariable) ([]*TemplateVariable, error) {
	return s.driver.ListTemplateVariables(ctx, find)
}

func (s *Store) DeleteTemplateVariable(ctx context.Context, delete *DeleteTemplateVariable) error {
	return s.driver.DeleteTemplateVariable(ctx, delete)
}

func (s *Store) CreateAlert(ctx context.Context, create *Alert) (*Alert, error) {
	return s.driver.CreateAlert(ctx, create)
}

func (s *Store) ListAlerts(ctx context.Context, find *FindAlert) ([]*Alert, error) {
	return s.driver.ListAlerts(ctx, find)
}

func (s *Store) UpdateAlert(ctx context.Context, update *UpdateAlert) error {
	return s.driver.UpdateAlert(ctx, update)
}

func (s *Store) CreateLaunchKeyword(ctx context.Context, create *LaunchKeyword) (*LaunchKeyword, error) {
	return s.driver.CreateLaunchKeyword(ctx, create)
}

func (s *Store) ListLaunchKeywords(ctx context.Context, find *FindLaunchKeyword) ([]*LaunchKeyword, error) {
	return s.driver.ListLaunchKeywords(ctx, find)
}

func (s *Store) DeleteLaunchKeyword(ctx context.Context, delete *DeleteLaunchKeyword) error {
	return s.driver.DeleteLaunchKeyword(ctx, delete)
}

func (s *Store) CreateDialog(ctx context.Context, create *Dialog) (*Dialog, error) {
	return s.driver.CreateDialog(ctx, create)
}

func (s *Store) ListDialogs(ctx context.Context, find *FindDialog) ([]*Dialog, error) {
	return s.driver.ListDialogs(ctx, find)
}

// GetDialog returns the single dialog matching the find, or nil.
func (s *Store) GetDialog(ctx context.Context, find *FindDialog) (*Dialog, error) {
	list, err := s.driver.ListDialogs(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateDialog(ctx context.Context, update *UpdateDialog) error {
	return s.driver.UpdateDialog(ctx, update)
}

func (s *Store) CreateDialogScript(ctx context.Context, create *DialogScript) (*DialogScript, error) {
	return s.driver.CreateDialogScript(ctx, create)
}

func (s *Store) ListDialogScripts(ctx context.Context, find *FindDialogScript) ([]*DialogScript, error) {
	return s.driver.ListDialogScripts(ctx, find)
}

// GetDialogScript returns the single script matching the find, or nil.
func (s *Store) GetDialogScript(ctx context.Context, find *FindDialogScript) (*DialogScript, error) {
	list, err := s.driver.ListDialogScripts(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CreateIncomingMessage(ctx context.Context, create *IncomingMessage) (*IncomingMessage, error) {
	return s.driver.CreateIncomingMessage(ctx, create)
}

func (s *Store) ListIncomingMessages(ctx context.Context, find *FindIncomingMessage) ([]*IncomingMessage, error) {
	return s.driver.ListIncomingMessages(ctx, find)
}

func (s *Store) CreateOutgoingMessage(ctx context.Context, create *OutgoingMessage) (*OutgoingMessage, error) {
	return s.driver.CreateOutgoingMessage(ctx, create)
}

func (s *Store) ListOutgoingMessages(ctx context.Context, find *FindOutgoingMessage) ([]*OutgoingMessage, error) {
	return s.driver.ListOutgoingMessages(ctx, find)
}

func (s *Store) UpdateOutgoingMessage(ctx context.Context, update *UpdateOutgoingMessage) error {
	return s.driver.UpdateOutgoingMessage(ctx, update)
}

func (s *Store) TryAcquireSessionLock(ctx context.Context, acquire *AcquireSessionLock) (bool, error) {
	return s.driver.TryAcquireSessionLock(ctx, acquire)
}

func (s *Store) ReleaseSessionLock(ctx context.Context, release *ReleaseSessionLock) error {
	return s.driver.ReleaseSessionLock(ctx, release)
}
