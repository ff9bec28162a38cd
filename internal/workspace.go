package internal

import (
	"context"
	"fmt"
	"path"
	"time"
)

// DefaultSaveDebounce is the quiet window before an edited buffer is persisted
const DefaultSaveDebounce = 500 * time.Millisecond

// WorkspaceMode is the state of the active-file machine
type WorkspaceMode int

const (
	ModeNoFile WorkspaceMode = iota
	ModeOpenClean
	ModeOpenDirty
)

func (m WorkspaceMode) String() string {
	switch m {
	case ModeOpenClean:
		return "open"
	case ModeOpenDirty:
		return "modified"
	default:
		return "no file"
	}
}

// WorkspaceController owns the code buffer and the active remote file.
// Buffer state lives in the SessionStore; every change goes through it.
type WorkspaceController struct {
	store    *SessionStore
	deps     Deps
	debounce *Debouncer
}

// NewWorkspaceController creates a controller over store. A zero window uses DefaultSaveDebounce.
func NewWorkspaceController(store *SessionStore, deps Deps, window time.Duration) *WorkspaceController {
	if window <= 0 {
		window = DefaultSaveDebounce
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	w := &WorkspaceController{store: store, deps: deps}
	w.debounce = NewDebouncer(deps.Clock, window, func() {
		store.Persist(context.Background())
	})
	return w
}

// Mode derives the workspace state from the session state
func (w *WorkspaceController) Mode() WorkspaceMode {
	st := w.store.State()
	switch {
	case st.ActiveFilePath == "":
		return ModeNoFile
	case st.IsCodeModified:
		return ModeOpenDirty
	default:
		return ModeOpenClean
	}
}

// Buffer returns the current code buffer
func (w *WorkspaceController) Buffer() string {
	return w.store.State().CurrentCode
}

// ActiveFilePath returns the open file, or "" when none is open
func (w *WorkspaceController) ActiveFilePath() string {
	return w.store.State().ActiveFilePath
}

// IsModified reports whether the buffer has unsaved edits
func (w *WorkspaceController) IsModified() bool {
	return w.store.State().IsCodeModified
}

// OpenFile loads a remote file into the buffer
func (w *WorkspaceController) OpenFile(ctx context.Context, filePath string) error {
	var resp FileReadResponse
	if err := w.deps.Channel.Call(ctx, OpFileRead, FileReadRequest{Path: filePath}, &resp); err != nil {
		w.deps.Notices.Error(fmt.Sprintf("Could not read file: %s", path.Base(filePath)))
		return &ReadError{Path: filePath, Err: err}
	}

	w.debounce.Cancel()
	w.store.update(func(st *SessionState) bool {
		st.CurrentCode = resp.Content
		st.ActiveFilePath = filePath
		st.IsCodeModified = false
		return true
	})
	w.store.Persist(ctx)
	w.deps.Notices.Success(fmt.Sprintf("Loaded: %s", path.Base(filePath)), 2*time.Second)
	w.deps.Bus.Publish(EventFileOpened, filePath)
	return nil
}

// EditBuffer replaces the buffer with user-edited text. Identical text is ignored.
func (w *WorkspaceController) EditBuffer(text string) bool {
	_, changed := w.store.update(func(st *SessionState) bool {
		if st.CurrentCode == text {
			return false
		}
		st.CurrentCode = text
		st.IsCodeModified = true
		return true
	})
	if changed {
		w.debounce.Trigger()
	}
	return changed
}

// SaveActiveFile writes the buffer back to the active file
func (w *WorkspaceController) SaveActiveFile(ctx context.Context) error {
	st := w.store.State()
	if st.ActiveFilePath == "" {
		return ErrNoActiveFile
	}

	req := FileSaveRequest{Path: st.ActiveFilePath, Content: st.CurrentCode}
	if err := w.deps.Channel.Call(ctx, OpFileSave, req, nil); err != nil {
		w.deps.Notices.Error(fmt.Sprintf("Could not save file: %s", path.Base(st.ActiveFilePath)))
		return err
	}

	w.store.update(func(cur *SessionState) bool {
		// Edits made while saving keep the buffer dirty
		if cur.ActiveFilePath != req.Path || cur.CurrentCode != req.Content {
			return false
		}
		cur.IsCodeModified = false
		return true
	})
	w.debounce.Cancel()
	w.store.Persist(ctx)
	w.deps.Notices.Success(fmt.Sprintf("Saved: %s", path.Base(req.Path)), 3*time.Second)
	return nil
}

// CloseActiveFile closes the active file, asking for confirmation when it has unsaved edits
func (w *WorkspaceController) CloseActiveFile() error {
	st := w.store.State()
	if st.ActiveFilePath == "" {
		return nil
	}
	if !st.IsCodeModified {
		return w.closeFile(context.Background())
	}
	return w.deps.Gate.Request(ConfirmationRequest{
		Title:        "Unsaved changes",
		Body:         fmt.Sprintf("%s has unsaved changes that will be lost.", path.Base(st.ActiveFilePath)),
		ConfirmLabel: "Close without saving",
		OnConfirm:    w.closeFile,
	})
}

func (w *WorkspaceController) closeFile(ctx context.Context) error {
	w.debounce.Cancel()
	w.store.update(func(st *SessionState) bool {
		st.ActiveFilePath = ""
		st.CurrentCode = ""
		st.IsCodeModified = false
		return true
	})
	w.store.Persist(ctx)
	return nil
}

// ClearBuffer asks for confirmation, then empties the code buffer
func (w *WorkspaceController) ClearBuffer() error {
	return w.deps.Gate.Request(ConfirmationRequest{
		Title:        "Clear code",
		Body:         "The code buffer will be emptied.",
		ConfirmLabel: "Clear",
		OnConfirm: func(ctx context.Context) error {
			w.debounce.Cancel()
			w.store.update(func(st *SessionState) bool {
				st.CurrentCode = ""
				st.IsCodeModified = false
				return true
			})
			w.store.Persist(ctx)
			w.deps.Notices.Success("Code cleared", 2*time.Second)
			return nil
		},
	})
}

// LoadCodeFromMessage copies a message's code into the buffer
func (w *WorkspaceController) LoadCodeFromMessage(ctx context.Context, msg TranscriptMessage) bool {
	if msg.Code == "" {
		return false
	}
	w.debounce.Cancel()
	w.store.update(func(st *SessionState) bool {
		st.CurrentCode = msg.Code
		st.IsCodeModified = false
		return true
	})
	w.store.Persist(ctx)
	w.deps.Notices.Success("Code loaded into editor", 2*time.Second)
	return true
}

// LoadAttachment copies an attachment into the buffer and adopts its filename as the active file
func (w *WorkspaceController) LoadAttachment(ctx context.Context, att Attachment) bool {
	if !att.HasContent() {
		return false
	}
	w.debounce.Cancel()
	w.store.update(func(st *SessionState) bool {
		st.CurrentCode = att.Content
		st.ActiveFilePath = att.Filename
		st.IsCodeModified = false
		return true
	})
	w.store.Persist(ctx)
	w.deps.Notices.Success(fmt.Sprintf("Loaded: %s", att.Filename), 2*time.Second)
	return true
}

// Flush persists a pending debounced edit immediately
func (w *WorkspaceController) Flush() {
	w.debounce.Flush()
}
