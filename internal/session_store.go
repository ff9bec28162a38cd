package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Deps are the collaborators shared by the session controllers
type Deps struct {
	Channel *RemoteChannel
	Cache   *SessionCache
	Gate    *ConfirmationGate
	Notices *Notifier
	Bus     *Bus
	Clock   Clock
}

// SessionStore owns the SessionState of one user identity
type SessionStore struct {
	mu           sync.Mutex
	state        SessionState
	providers    ProviderSet
	allowedFiles map[string][]string
	configLoaded bool
	loading      bool

	userID             string
	key                string
	deps               Deps
	reconciler         *Reconciler
	group              singleflight.Group
	syncLimit          int
	maxAttachmentBytes int
}

// StoreOption configures a SessionStore
type StoreOption func(*SessionStore)

// WithSyncLimit overrides the number of messages requested by SyncHistory
func WithSyncLimit(n int) StoreOption {
	return func(s *SessionStore) {
		if n > 0 {
			s.syncLimit = n
		}
	}
}

// WithMaxAttachmentBytes overrides the attachment size limit
func WithMaxAttachmentBytes(n int) StoreOption {
	return func(s *SessionStore) {
		if n > 0 {
			s.maxAttachmentBytes = n
		}
	}
}

// NewSessionStore creates a store for userID with default state
func NewSessionStore(userID string, deps Deps, opts ...StoreOption) *SessionStore {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	s := &SessionStore{
		state:              DefaultSessionState(),
		userID:             userID,
		key:                CacheKey(userID),
		deps:               deps,
		reconciler:         NewReconciler(),
		syncLimit:          SyncHistoryLimit,
		maxAttachmentBytes: DefaultMaxAttachmentBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the identity this store belongs to
func (s *SessionStore) UserID() string {
	return s.userID
}

// Key returns the cache key of this session
func (s *SessionStore) Key() string {
	return s.key
}

// State returns a snapshot of the session state
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Providers returns the providers from the last refresh
func (s *SessionStore) Providers() ProviderSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(ProviderSet(nil), s.providers...)
}

// AllowedFiles returns the attachment types from get_config
func (s *SessionStore) AllowedFiles() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.allowedFiles))
	for k, v := range s.allowedFiles {
		out[k] = v
	}
	return out
}

// Loading reports whether a generate or clear call is in flight
func (s *SessionStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Restore replaces the state with the cached record, if any
func (s *SessionStore) Restore(ctx context.Context) bool {
	cached, ok := s.deps.Cache.Load(ctx, s.key)
	s.update(func(st *SessionState) bool {
		*st = cached
		return true
	})
	if ok {
		LogDebug("Restored %d messages for %s", len(cached.Transcript), s.key)
	}
	return ok
}

// update applies fn under the lock and publishes the new state if fn reports a change
func (s *SessionStore) update(fn func(*SessionState) bool) (SessionState, bool) {
	s.mu.Lock()
	changed := fn(&s.state)
	snap := s.state.Clone()
	s.mu.Unlock()

	if changed {
		s.deps.Bus.Publish(EventStateChanged, snap)
	}
	return snap, changed
}

// Persist writes the current state to the cache
func (s *SessionStore) Persist(ctx context.Context) SaveOutcome {
	return s.deps.Cache.Save(context.WithoutCancel(ctx), s.key, s.State())
}

func (s *SessionStore) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.deps.Bus.Publish(EventLoadingChanged, loading)
}

func (s *SessionStore) now() time.Time {
	return s.deps.Clock.Now()
}

// SubmitPrompt sends prompt with the pending attachments, selected entities
// and, when relevant, the code buffer. A failed call is recorded in the
// transcript as an error message and returned.
func (s *SessionStore) SubmitPrompt(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)

	var req GenerateRequest
	_, submitted := s.update(func(st *SessionState) bool {
		if prompt == "" && len(st.PendingAttachments) == 0 {
			return false
		}

		code := ""
		if st.CurrentCode != "" && (st.IsCodeModified || st.ActiveFilePath != "") {
			code = st.CurrentCode
		}

		attachments := cloneAttachments(st.PendingAttachments)
		entities := cloneStrings(st.SelectedEntities)
		st.Transcript = append(st.Transcript,
			newUserMessage(s.now(), prompt, attachments, entities, code, st.ActiveFilePath))

		req = GenerateRequest{
			Prompt:          prompt,
			ProviderID:      st.SelectedProvider,
			Attachments:     make([]AttachmentPayload, 0, len(attachments)),
			IncludeEntities: entities,
			FilePath:        st.ActiveFilePath,
			Code:            code,
			UserID:          s.userID,
		}
		if req.IncludeEntities == nil {
			req.IncludeEntities = []string{}
		}
		for _, att := range attachments {
			req.Attachments = append(req.Attachments, AttachmentPayload{
				Filename:    att.Filename,
				Content:     att.Content,
				ContentType: att.ContentType,
			})
		}

		st.PendingAttachments = nil
		st.SelectedEntities = []string{}
		return true
	})
	if !submitted {
		return nil
	}

	s.Persist(ctx)
	s.setLoading(true)
	LogDebug("Submitting prompt (provider %s, file %s, code %t)",
		quoteOrEmpty(req.ProviderID), quoteOrEmpty(req.FilePath), req.Code != "")

	raw, err := s.deps.Channel.CallRaw(ctx, OpGenerate, req)
	if err != nil {
		s.update(func(st *SessionState) bool {
			st.Transcript = append(st.Transcript,
				newAssistantMessage(s.now(), "Error: "+causeMessage(err), "", ""))
			return true
		})
		s.deps.Notices.Error(fmt.Sprintf("Failed to get a response: %s", causeMessage(err)))
	} else {
		res := ParseGenerateResult(raw)
		s.update(func(st *SessionState) bool {
			if res.Code != "" {
				st.CurrentCode = res.Code
				st.IsCodeModified = false
			}
			st.Transcript = append(st.Transcript,
				newAssistantMessage(s.now(), res.Text, res.Code, res.ProviderName))
			return true
		})
	}

	s.Persist(ctx)
	s.setLoading(false)
	s.deps.Bus.Publish(EventFocusPrompt, nil)
	return err
}

// ClearChat asks for confirmation, then clears the backend memory and the local conversation
func (s *SessionStore) ClearChat() error {
	return s.deps.Gate.Request(ConfirmationRequest{
		Title:        "Clear chat",
		Body:         "This clears the conversation, the code buffer and pending attachments.",
		ConfirmLabel: "Clear",
		OnConfirm:    s.clearChat,
	})
}

func (s *SessionStore) clearChat(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	var result error
	if err := s.deps.Channel.Call(ctx, OpClearHistory, UserRequest{UserID: s.userID}, nil); err != nil {
		s.deps.Notices.Warning("Could not clear backend memory. Cleared frontend state only.", 0)
		result = &PartialFailureError{Action: "clear_chat", Err: err}
	}

	s.update(func(st *SessionState) bool {
		st.Transcript = []TranscriptMessage{}
		st.CurrentCode = ""
		st.IsCodeModified = false
		st.PendingAttachments = nil
		return true
	})
	s.Persist(ctx)
	return result
}

// SyncHistory asks for confirmation, then replaces the transcript with the backend history
func (s *SessionStore) SyncHistory() error {
	return s.deps.Gate.Request(ConfirmationRequest{
		Title:        "Sync chat history",
		Body:         "This replaces the local conversation with the history stored on the server.",
		ConfirmLabel: "Sync",
		OnConfirm:    s.syncHistory,
	})
}

func (s *SessionStore) syncHistory(ctx context.Context) error {
	var resp SyncHistoryResponse
	req := SyncHistoryRequest{Limit: s.syncLimit, UserID: s.userID}
	if err := s.deps.Channel.Call(ctx, OpSyncHistory, req, &resp); err != nil {
		s.deps.Notices.Error("Failed to sync chat history")
		return err
	}

	if resp.Messages == nil {
		LogWarn("sync_history reply has no messages; keeping the local transcript")
		return nil
	}

	transcript := s.reconciler.Reconcile(resp.Messages)
	s.update(func(st *SessionState) bool {
		st.Transcript = transcript
		if code, ok := PromoteCode(transcript); ok {
			st.CurrentCode = code
			st.IsCodeModified = false
		}
		return true
	})
	s.Persist(ctx)
	s.deps.Notices.Success(fmt.Sprintf("Synced %d messages", len(transcript)), 3*time.Second)
	return nil
}

// SelectProvider selects a known provider; unknown ids are ignored
func (s *SessionStore) SelectProvider(ctx context.Context, id string) bool {
	_, changed := s.update(func(st *SessionState) bool {
		if !s.providers.Contains(id) || st.SelectedProvider == id {
			return false
		}
		st.SelectedProvider = id
		return true
	})
	if changed {
		s.Persist(ctx)
	}
	return changed
}

// RefreshProviders fetches the provider set and repairs the selection.
// Concurrent callers share one backend call.
func (s *SessionStore) RefreshProviders(ctx context.Context) error {
	_, err, shared := s.group.Do(OpGetProviders, func() (any, error) {
		return nil, s.refreshProviders(ctx)
	})
	if shared {
		LogDebug("Joined in-flight %s call", OpGetProviders)
	}
	return err
}

func (s *SessionStore) refreshProviders(ctx context.Context) error {
	var resp ProvidersResponse
	if err := s.deps.Channel.Call(ctx, OpGetProviders, nil, &resp); err != nil {
		LogWarn("Failed to load providers: %v", err)
		return err
	}

	_, changed := s.update(func(st *SessionState) bool {
		s.providers = resp.Providers
		next := chooseProvider(st.SelectedProvider, resp.DefaultProvider, resp.Providers)
		if next == st.SelectedProvider {
			return false
		}
		st.SelectedProvider = next
		return true
	})
	if changed {
		s.Persist(ctx)
	}
	return nil
}

// chooseProvider keeps a valid selection, else the backend default, else the first provider
func chooseProvider(current, def string, providers ProviderSet) string {
	switch {
	case providers.Contains(current):
		return current
	case providers.Contains(def):
		return def
	case len(providers) > 0:
		return providers[0].ID
	default:
		return current
	}
}

// LoadConfig fetches the allowed attachment types once per session
func (s *SessionStore) LoadConfig(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.configLoaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	_, err, _ := s.group.Do(OpGetConfig, func() (any, error) {
		var resp ConfigResponse
		if err := s.deps.Channel.Call(ctx, OpGetConfig, nil, &resp); err != nil {
			LogWarn("Failed to load config: %v", err)
			return nil, err
		}
		s.mu.Lock()
		s.allowedFiles = resp.AllowedFiles
		s.configLoaded = true
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// AddAttachment validates a file and adds it to the pending attachments
func (s *SessionStore) AddAttachment(filename string, content []byte, contentType string) error {
	s.mu.Lock()
	allowed := s.allowedFiles
	s.mu.Unlock()

	if err := ValidateAttachment(filename, len(content), allowed, s.maxAttachmentBytes); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Field == "size" {
			s.deps.Notices.Error(fmt.Sprintf("File too large: %s (%s)", filename, ve.Reason))
		} else {
			s.deps.Notices.Error(fmt.Sprintf("File type not allowed: %s", filename))
		}
		return err
	}

	s.update(func(st *SessionState) bool {
		st.PendingAttachments = append(st.PendingAttachments, Attachment{
			Filename:    filename,
			Content:     string(content),
			ContentType: contentType,
		})
		return true
	})
	return nil
}

// RemoveAttachment drops the pending attachment at index i
func (s *SessionStore) RemoveAttachment(i int) bool {
	_, changed := s.update(func(st *SessionState) bool {
		if i < 0 || i >= len(st.PendingAttachments) {
			return false
		}
		st.PendingAttachments = append(st.PendingAttachments[:i:i], st.PendingAttachments[i+1:]...)
		return true
	})
	return changed
}

// AddEntity selects an entity for the next prompt
func (s *SessionStore) AddEntity(ctx context.Context, id string) bool {
	_, changed := s.update(func(st *SessionState) bool {
		if id == "" {
			return false
		}
		for _, e := range st.SelectedEntities {
			if e == id {
				return false
			}
		}
		st.SelectedEntities = append(st.SelectedEntities, id)
		return true
	})
	if changed {
		s.Persist(ctx)
	}
	return changed
}

// RemoveEntity deselects an entity
func (s *SessionStore) RemoveEntity(ctx context.Context, id string) bool {
	_, changed := s.update(func(st *SessionState) bool {
		for i, e := range st.SelectedEntities {
			if e == id {
				st.SelectedEntities = append(st.SelectedEntities[:i:i], st.SelectedEntities[i+1:]...)
				return true
			}
		}
		return false
	})
	if changed {
		s.Persist(ctx)
	}
	return changed
}

// ToggleSendOnEnter flips the send-on-enter preference and returns the new value
func (s *SessionStore) ToggleSendOnEnter(ctx context.Context) bool {
	snap, _ := s.update(func(st *SessionState) bool {
		st.SendOnEnter = !st.SendOnEnter
		return true
	})
	s.Persist(ctx)
	return snap.SendOnEnter
}

// causeMessage returns the innermost message of a transport failure
func causeMessage(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}
