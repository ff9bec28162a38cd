package internal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/iksnae/codetask-session/testutil"
)

func TestSessionStore_SubmitPrompt(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	store := env.session.Store
	ctx := context.Background()

	store.AddEntity(ctx, "light.kitchen")
	if err := store.AddAttachment("notes.md", []byte("# notes"), "text/markdown"); err != nil {
		t.Fatalf("AddAttachment() error = %v", err)
	}

	if err := store.SubmitPrompt(ctx, "  turn on the lights  "); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}

	state := store.State()
	if len(state.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(state.Transcript))
	}
	user, reply := state.Transcript[0], state.Transcript[1]
	if user.Role != RoleUser || user.Content != "turn on the lights" {
		t.Errorf("user message = %+v", user)
	}
	if diff := cmp.Diff([]string{"light.kitchen"}, user.IncludedEntities); diff != "" {
		t.Errorf("user entities mismatch (-want +got):\n%s", diff)
	}
	if len(user.Attachments) != 1 || user.Attachments[0].Filename != "notes.md" {
		t.Errorf("user attachments = %+v", user.Attachments)
	}
	if reply.Role != RoleAssistant || reply.Content != "echo: turn on the lights" || reply.ProviderName != "OpenAI" {
		t.Errorf("assistant message = %+v", reply)
	}
	if len(state.PendingAttachments) != 0 || len(state.SelectedEntities) != 0 {
		t.Errorf("pending attachments = %v, entities = %v; want both cleared", state.PendingAttachments, state.SelectedEntities)
	}

	var req testutil.GenerateRequest
	if !env.backend.LastPayload(OpGenerate, &req) {
		t.Fatal("backend did not receive generate")
	}
	if req.UserID != "alice" || req.ProviderID != "openai" || req.Code != "" {
		t.Errorf("generate payload = %+v", req)
	}
	if len(req.Attachments) != 1 || req.Attachments[0]["content"] != "# notes" {
		t.Errorf("generate attachments = %v, want full content", req.Attachments)
	}

	if cached := env.cached(t); len(cached.Transcript) != 2 {
		t.Errorf("cached transcript length = %d, want 2", len(cached.Transcript))
	}
	if store.Loading() {
		t.Error("Loading() = true after SubmitPrompt()")
	}
	if env.count(EventLoadingChanged) != 2 || env.count(EventFocusPrompt) != 1 {
		t.Errorf("loading events = %d, focus events = %d; want 2 and 1",
			env.count(EventLoadingChanged), env.count(EventFocusPrompt))
	}
}

func TestSessionStore_SubmitPromptOptimistic(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	store := env.session.Store

	var seen SessionState
	env.backend.Generate = func(req testutil.GenerateRequest) (testutil.GenerateReply, error) {
		seen = store.State()
		return testutil.GenerateReply{Text: "ok"}, nil
	}

	if err := store.SubmitPrompt(context.Background(), "hi"); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}
	if len(seen.Transcript) != 1 || seen.Transcript[0].Content != "hi" {
		t.Errorf("transcript during the call = %+v, want the user message only", seen.Transcript)
	}
	if len(seen.PendingAttachments) != 0 {
		t.Error("pending attachments were not cleared before the call")
	}
}

func TestSessionStore_SubmitPromptEmpty(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)

	if err := env.session.Store.SubmitPrompt(context.Background(), "   "); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}
	if n := env.backend.CallCount(OpGenerate); n != 0 {
		t.Errorf("generate called %d times, want 0", n)
	}
	if len(env.session.Store.State().Transcript) != 0 {
		t.Error("empty prompt was added to the transcript")
	}
}

func TestSessionStore_SubmitAttachmentOnly(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	store := env.session.Store

	_ = store.AddAttachment("a.py", []byte("print(1)"), "text/x-python")
	if err := store.SubmitPrompt(context.Background(), ""); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}
	if n := env.backend.CallCount(OpGenerate); n != 1 {
		t.Errorf("generate called %d times, want 1", n)
	}
}

func TestSessionStore_SubmitPromptCodeContext(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(st *SessionState)
		wantCode string
		wantFile string
	}{
		{
			name:  "untouched buffer is not sent",
			setup: func(st *SessionState) { st.CurrentCode = "x = 1" },
		},
		{
			name: "modified buffer is sent",
			setup: func(st *SessionState) {
				st.CurrentCode = "x = 2"
				st.IsCodeModified = true
			},
			wantCode: "x = 2",
		},
		{
			name: "file-backed buffer is sent",
			setup: func(st *SessionState) {
				st.CurrentCode = "x = 3"
				st.ActiveFilePath = "scripts/x.py"
			},
			wantCode: "x = 3",
			wantFile: "scripts/x.py",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "alice")
			env.start(t)
			store := env.session.Store
			store.update(func(st *SessionState) bool {
				tt.setup(st)
				return true
			})

			if err := store.SubmitPrompt(context.Background(), "refactor"); err != nil {
				t.Fatalf("SubmitPrompt() error = %v", err)
			}

			var req testutil.GenerateRequest
			env.backend.LastPayload(OpGenerate, &req)
			if req.Code != tt.wantCode || req.FilePath != tt.wantFile {
				t.Errorf("payload code/file = %q/%q, want %q/%q", req.Code, req.FilePath, tt.wantCode, tt.wantFile)
			}
			user := store.State().Transcript[0]
			if user.Code != tt.wantCode || user.FilePath != tt.wantFile {
				t.Errorf("user message code/file = %q/%q, want %q/%q", user.Code, user.FilePath, tt.wantCode, tt.wantFile)
			}
		})
	}
}

func TestSessionStore_SubmitPromptReplacesCode(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	store := env.session.Store
	store.update(func(st *SessionState) bool {
		st.CurrentCode = "old"
		st.IsCodeModified = true
		return true
	})

	env.backend.Generate = func(req testutil.GenerateRequest) (testutil.GenerateReply, error) {
		return testutil.GenerateReply{Text: "Updated.", Code: "new", Provider: "OpenAI"}, nil
	}
	if err := store.SubmitPrompt(context.Background(), "improve"); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}

	state := store.State()
	if state.CurrentCode != "new" || state.IsCodeModified {
		t.Errorf("buffer = %q (modified %v), want new and clean", state.CurrentCode, state.IsCodeModified)
	}
	if state.Transcript[1].Code != "new" {
		t.Errorf("assistant code = %q, want new", state.Transcript[1].Code)
	}
}

func TestSessionStore_SubmitPromptFailure(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	env.backend.FailNext(OpGenerate, 3)
	store := env.session.Store

	err := store.SubmitPrompt(context.Background(), "hello")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("SubmitPrompt() error = %v, want *TransportError", err)
	}

	state := store.State()
	if len(state.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(state.Transcript))
	}
	reply := state.Transcript[1]
	if reply.Role != RoleAssistant || reply.Content != "Error: generate: injected failure" {
		t.Errorf("error message = %+v", reply)
	}

	notice := env.notice(t)
	if notice.Kind != NoticeError || notice.Message != "Failed to get a response: generate: injected failure" {
		t.Errorf("notice = %+v", notice)
	}
	if notice.Duration != DefaultNoticeDuration {
		t.Errorf("notice duration = %v, want terminal", notice.Duration)
	}
	if env.count(EventFocusPrompt) != 1 {
		t.Error("focus was not restored after a failure")
	}
	if cached := env.cached(t); len(cached.Transcript) != 2 {
		t.Errorf("cached transcript length = %d, want 2", len(cached.Transcript))
	}
}

func TestSessionStore_SubmitPromptRecovers(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	env.backend.FailNext(OpGenerate, 2)

	if err := env.session.Store.SubmitPrompt(context.Background(), "hello"); err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}
	if n := env.backend.CallCount(OpGenerate); n != 3 {
		t.Errorf("generate attempts = %d, want 3", n)
	}
	if got := env.session.Store.State().Transcript[1].Content; got != "echo: hello" {
		t.Errorf("reply = %q, want echo: hello", got)
	}
}

func TestSessionStore_ClearChat(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store

	_ = store.SubmitPrompt(ctx, "hello")
	store.update(func(st *SessionState) bool {
		st.CurrentCode = "x"
		st.IsCodeModified = true
		st.PendingAttachments = []Attachment{{Filename: "a.py", Content: "1"}}
		return true
	})

	if err := store.ClearChat(); err != nil {
		t.Fatalf("ClearChat() error = %v", err)
	}
	if n := env.backend.CallCount(OpClearHistory); n != 0 {
		t.Fatalf("clear_history called before confirmation")
	}

	env.session.Gate.Cancel()
	if len(store.State().Transcript) != 2 {
		t.Fatal("Cancel() cleared the transcript")
	}

	_ = store.ClearChat()
	if err := env.session.Gate.Accept(ctx); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	state := store.State()
	if len(state.Transcript) != 0 || state.CurrentCode != "" || state.IsCodeModified || len(state.PendingAttachments) != 0 {
		t.Errorf("state after clear = %+v", state)
	}
	if len(env.backend.History["alice"]) != 0 {
		t.Error("backend history was not cleared")
	}
	if cached := env.cached(t); len(cached.Transcript) != 0 {
		t.Error("cleared state was not persisted")
	}
}

func TestSessionStore_ClearChatBackendFailure(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store

	_ = store.SubmitPrompt(ctx, "hello")
	env.backend.FailNext(OpClearHistory, 3)

	_ = store.ClearChat()
	err := env.session.Gate.Accept(ctx)
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("Accept() error = %v, want *PartialFailureError", err)
	}
	if len(store.State().Transcript) != 0 {
		t.Error("local state was not cleared after a backend failure")
	}
	notice := env.notice(t)
	if notice.Kind != NoticeWarning || !strings.Contains(notice.Message, "Cleared frontend state only") {
		t.Errorf("notice = %+v, want the partial-clear warning", notice)
	}
}

func TestSessionStore_SyncHistory(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store

	history := testutil.Conversation(4, 1700000000)
	history = append(history,
		testutil.HistoryMessage{Role: "user", Content: testutil.UserEnvelope("make it loop", "scripts/a.py", nil, nil), Timestamp: 1700000010},
		testutil.HistoryMessage{Role: "assistant", Content: testutil.AssistantEnvelope("Looping now.", "while True: pass", "OpenAI"), Timestamp: 1700000011},
		testutil.HistoryMessage{Role: "assistant", Content: testutil.AssistantEnvelope("No code here.", "", "OpenAI"), Timestamp: 1700000012},
	)
	env.backend.SetHistory("alice", history)

	_ = store.SubmitPrompt(ctx, "local only")
	env.backend.SetHistory("alice", history)

	if err := store.SyncHistory(); err != nil {
		t.Fatalf("SyncHistory() error = %v", err)
	}
	if err := env.session.Gate.Accept(ctx); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	state := store.State()
	if len(state.Transcript) != 7 {
		t.Fatalf("transcript length = %d, want 7 (full replace)", len(state.Transcript))
	}
	if state.Transcript[4].FilePath != "scripts/a.py" {
		t.Errorf("user file path = %q, want scripts/a.py", state.Transcript[4].FilePath)
	}
	if state.CurrentCode != "while True: pass" || state.IsCodeModified {
		t.Errorf("buffer = %q (modified %v), want the newest assistant code", state.CurrentCode, state.IsCodeModified)
	}

	var req struct {
		Limit  int    `json:"limit"`
		UserID string `json:"user_id"`
	}
	env.backend.LastPayload(OpSyncHistory, &req)
	if req.Limit != SyncHistoryLimit || req.UserID != "alice" {
		t.Errorf("sync_history payload = %+v", req)
	}

	notice := env.notice(t)
	if notice.Kind != NoticeSuccess || notice.Message != "Synced 7 messages" {
		t.Errorf("notice = %+v", notice)
	}
	if cached := env.cached(t); len(cached.Transcript) != 7 {
		t.Errorf("cached transcript length = %d, want 7", len(cached.Transcript))
	}
}

func TestSessionStore_SyncHistoryIdempotent(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store
	env.backend.SetHistory("alice", testutil.Conversation(6, 1700000000))

	_ = store.SyncHistory()
	_ = env.session.Gate.Accept(ctx)
	first := store.State().Transcript

	_ = store.SyncHistory()
	_ = env.session.Gate.Accept(ctx)
	second := store.State().Transcript

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second sync changed the transcript (-first +second):\n%s", diff)
	}
}

func TestSessionStore_SyncHistoryFailure(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store

	_ = store.SubmitPrompt(ctx, "keep me")
	env.backend.FailNext(OpSyncHistory, 3)

	_ = store.SyncHistory()
	if err := env.session.Gate.Accept(ctx); err == nil {
		t.Fatal("Accept() error = nil, want the sync failure")
	}
	if len(store.State().Transcript) != 2 {
		t.Error("failed sync changed the transcript")
	}
	if notice := env.notice(t); notice.Message != "Failed to sync chat history" {
		t.Errorf("notice = %+v", notice)
	}
}

func TestSessionStore_SyncLimitOption(t *testing.T) {
	env := newTestEnv(t, "alice")
	store := NewSessionStore("alice", Deps{
		Channel: env.session.Channel,
		Cache:   env.session.Cache,
		Gate:    env.session.Gate,
		Notices: env.session.Notices,
		Bus:     env.session.Bus,
		Clock:   env.clock,
	}, WithSyncLimit(2))
	env.backend.SetHistory("alice", testutil.Conversation(6, 1700000000))

	_ = store.SyncHistory()
	_ = env.session.Gate.Accept(context.Background())

	state := store.State()
	if len(state.Transcript) != 2 || state.Transcript[0].Content != "question 2" {
		t.Errorf("transcript = %+v, want the newest two messages", state.Transcript)
	}
}

func TestChooseProvider(t *testing.T) {
	providers := ProviderSet{{ID: "openai"}, {ID: "anthropic"}}

	tests := []struct {
		name      string
		current   string
		def       string
		providers ProviderSet
		want      string
	}{
		{"keeps a valid selection", "anthropic", "openai", providers, "anthropic"},
		{"falls back to the default", "gone", "openai", providers, "openai"},
		{"empty selection uses the default", "", "anthropic", providers, "anthropic"},
		{"invalid default uses the first", "gone", "missing", providers, "openai"},
		{"no providers leaves the selection", "gone", "", nil, "gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseProvider(tt.current, tt.def, tt.providers); got != tt.want {
				t.Errorf("chooseProvider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionStore_Providers(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	ctx := context.Background()
	store := env.session.Store

	if store.SelectProvider(ctx, "unknown") {
		t.Error("SelectProvider(unknown) = true")
	}
	if !store.SelectProvider(ctx, "anthropic") {
		t.Fatal("SelectProvider(anthropic) = false")
	}
	if store.SelectProvider(ctx, "anthropic") {
		t.Error("reselecting the same provider reported a change")
	}
	if env.cached(t).SelectedProvider != "anthropic" {
		t.Error("selection was not persisted")
	}

	env.backend.Providers = []testutil.ProviderEntry{{ID: "local", Name: "Local"}}
	env.backend.DefaultProvider = "missing"
	if err := store.RefreshProviders(ctx); err != nil {
		t.Fatalf("RefreshProviders() error = %v", err)
	}
	if got := store.State().SelectedProvider; got != "local" {
		t.Errorf("SelectedProvider after refresh = %q, want local", got)
	}

	env.backend.FailNext(OpGetProviders, 3)
	if err := store.RefreshProviders(ctx); err == nil {
		t.Error("RefreshProviders() error = nil, want failure")
	}
	if got := store.State().SelectedProvider; got != "local" {
		t.Errorf("failed refresh changed the selection to %q", got)
	}
}

func TestSessionStore_LoadConfigOnce(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := context.Background()
	store := env.session.Store

	env.backend.FailNext(OpGetConfig, 3)
	if err := store.LoadConfig(ctx); err == nil {
		t.Fatal("LoadConfig() error = nil, want failure")
	}
	if err := store.LoadConfig(ctx); err != nil {
		t.Fatalf("LoadConfig() retry error = %v", err)
	}
	if err := store.LoadConfig(ctx); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if n := env.backend.CallCount(OpGetConfig); n != 4 {
		t.Errorf("get_config called %d times, want 4 (3 failed attempts and 1 success)", n)
	}
}

func TestSessionStore_AddAttachment(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.start(t)
	store := env.session.Store

	tests := []struct {
		name       string
		filename   string
		content    []byte
		wantErr    bool
		wantNotice string
	}{
		{name: "allowed", filename: "a.py", content: []byte("print(1)")},
		{name: "disallowed type", filename: "a.exe", content: []byte("MZ"), wantErr: true, wantNotice: "File type not allowed: a.exe"},
		{name: "too large", filename: "big.py", content: []byte(testutil.Text(DefaultMaxAttachmentBytes + 1)), wantErr: true, wantNotice: "File too large: big.py"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AddAttachment(tt.filename, tt.content, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddAttachment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNotice != "" {
				notice := env.notice(t)
				if notice.Kind != NoticeError || !strings.HasPrefix(notice.Message, tt.wantNotice) {
					t.Errorf("notice = %+v, want prefix %q", notice, tt.wantNotice)
				}
			}
		})
	}

	pending := store.State().PendingAttachments
	if len(pending) != 1 || pending[0].Filename != "a.py" {
		t.Errorf("pending attachments = %+v, want only a.py", pending)
	}
	if env.backend.CallCount(OpGenerate) != 0 {
		t.Error("validation made a backend call")
	}

	if store.RemoveAttachment(5) {
		t.Error("RemoveAttachment(5) = true")
	}
	if !store.RemoveAttachment(0) || len(store.State().PendingAttachments) != 0 {
		t.Error("RemoveAttachment(0) did not remove the attachment")
	}
}

func TestSessionStore_Entities(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := context.Background()
	store := env.session.Store

	store.AddEntity(ctx, "light.a")
	store.AddEntity(ctx, "light.b")
	if store.AddEntity(ctx, "light.a") {
		t.Error("AddEntity() of a duplicate = true")
	}
	if store.AddEntity(ctx, "") {
		t.Error("AddEntity(\"\") = true")
	}
	if !store.RemoveEntity(ctx, "light.a") {
		t.Error("RemoveEntity(light.a) = false")
	}
	if store.RemoveEntity(ctx, "light.a") {
		t.Error("RemoveEntity() of a missing entity = true")
	}
	if diff := cmp.Diff([]string{"light.b"}, env.cached(t).SelectedEntities); diff != "" {
		t.Errorf("cached entities mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionStore_ToggleSendOnEnter(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := context.Background()
	store := env.session.Store

	if !store.ToggleSendOnEnter(ctx) {
		t.Error("first toggle = false, want true")
	}
	if !env.cached(t).SendOnEnter {
		t.Error("cached SendOnEnter = false, want true")
	}
	if store.ToggleSendOnEnter(ctx) {
		t.Error("second toggle = true, want false")
	}
}

func TestSessionStore_RestoreIsolatedByUser(t *testing.T) {
	store := NewMemoryStore()

	alice := newTestEnvWithStore(t, "alice", store)
	alice.start(t)
	_ = alice.session.Store.SubmitPrompt(context.Background(), "from alice")

	bob := newTestEnvWithStore(t, "bob", store)
	if bob.session.Store.Restore(context.Background()) {
		t.Error("Restore() for bob found alice's session")
	}

	again := newTestEnvWithStore(t, "alice", store)
	if !again.session.Store.Restore(context.Background()) {
		t.Fatal("Restore() for alice found nothing")
	}
	if got := again.session.Store.State().Transcript[0].Content; got != "from alice" {
		t.Errorf("restored first message = %q", got)
	}
}

func TestCauseMessage(t *testing.T) {
	cause := errors.New("socket closed")
	if got := causeMessage(&TransportError{Op: OpGenerate, Err: cause}); got != "socket closed" {
		t.Errorf("causeMessage(TransportError) = %q", got)
	}
	if got := causeMessage(cause); got != "socket closed" {
		t.Errorf("causeMessage(plain) = %q", got)
	}
}
