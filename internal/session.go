package internal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SessionOptions tunes a Session. Zero values use the defaults.
type SessionOptions struct {
	UserID             string
	Clock              Clock
	RetryAttempts      int
	RetryBaseDelay     time.Duration
	NoticeDuration     time.Duration
	SaveDebounce       time.Duration
	MaxHistory         int
	FallbackHistory    int
	SyncLimit          int
	MaxAttachmentBytes int
	TimerFactory       func() backoff.Timer
}

// OptionsFromConfig maps a Config onto SessionOptions
func OptionsFromConfig(cfg *Config) SessionOptions {
	return SessionOptions{
		UserID:             cfg.UserID,
		RetryAttempts:      cfg.Retry.Attempts,
		RetryBaseDelay:     cfg.Retry.BaseDelay,
		NoticeDuration:     cfg.Notices.Duration,
		SaveDebounce:       cfg.Editor.SaveDebounce,
		MaxHistory:         cfg.History.MaxEntries,
		FallbackHistory:    cfg.History.FallbackEntries,
		SyncLimit:          cfg.History.SyncLimit,
		MaxAttachmentBytes: cfg.Attachments.MaxBytes,
	}
}

// Session wires the controllers of one user session together
type Session struct {
	Bus       *Bus
	Notices   *Notifier
	Gate      *ConfirmationGate
	Channel   *RemoteChannel
	Cache     *SessionCache
	Store     *SessionStore
	Workspace *WorkspaceController
	Explorer  *ExplorerController
}

// NewSession builds a session over a transport and a cache store
func NewSession(transport Transport, store Store, opts SessionOptions) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}

	bus := NewBus()
	notices := NewNotifier(clock, bus, opts.NoticeDuration)

	channelOpts := []ChannelOption{WithRetry(opts.RetryAttempts, opts.RetryBaseDelay)}
	if opts.TimerFactory != nil {
		channelOpts = append(channelOpts, WithTimerFactory(opts.TimerFactory))
	}

	deps := Deps{
		Channel: NewRemoteChannel(transport, notices, channelOpts...),
		Cache:   NewSessionCache(store, opts.MaxHistory, opts.FallbackHistory),
		Gate:    NewConfirmationGate(bus),
		Notices: notices,
		Bus:     bus,
		Clock:   clock,
	}

	sessionStore := NewSessionStore(opts.UserID, deps,
		WithSyncLimit(opts.SyncLimit),
		WithMaxAttachmentBytes(opts.MaxAttachmentBytes))
	workspace := NewWorkspaceController(sessionStore, deps, opts.SaveDebounce)

	return &Session{
		Bus:       bus,
		Notices:   notices,
		Gate:      deps.Gate,
		Channel:   deps.Channel,
		Cache:     deps.Cache,
		Store:     sessionStore,
		Workspace: workspace,
		Explorer:  NewExplorerController(workspace, deps),
	}
}

// Start restores the cached state and loads the backend config and providers.
// Backend failures are logged; the session stays usable offline.
func (s *Session) Start(ctx context.Context) {
	s.Store.Restore(ctx)
	if err := s.Store.LoadConfig(ctx); err != nil {
		LogWarn("Attachment types unavailable: %v", err)
	}
	if err := s.Store.RefreshProviders(ctx); err != nil {
		LogWarn("Providers unavailable: %v", err)
	}
}

// Close flushes pending edits and detaches the explorer
func (s *Session) Close() {
	s.Workspace.Flush()
	s.Explorer.Detach()
}

// Transcript returns an exportable view of the conversation
func (s *Session) Transcript() Transcript {
	st := s.Store.State()
	return Transcript{
		UserID:   s.Store.UserID(),
		Provider: st.SelectedProvider,
		Messages: st.Transcript,
	}
}
