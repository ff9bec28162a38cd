package internal

import (
	"context"
	"strings"
	"sync"
)

// Region identifies where a pointer interaction happened
type Region int

const (
	RegionOther Region = iota
	RegionExplorer
	RegionExplorerToggle
)

// FileOpener opens a remote file into the workspace
type FileOpener interface {
	OpenFile(ctx context.Context, path string) error
}

// ExplorerController drives the remote directory browser
type ExplorerController struct {
	mu     sync.Mutex
	state  ExplorerState
	loaded bool

	opener FileOpener
	deps   Deps
	unsub  func()
}

// NewExplorerController creates a closed explorer. It closes itself whenever a file is opened.
func NewExplorerController(opener FileOpener, deps Deps) *ExplorerController {
	e := &ExplorerController{opener: opener, deps: deps}
	e.unsub = deps.Bus.Subscribe(EventFileOpened, func(Event) { e.Close() })
	return e
}

// State returns a snapshot of the explorer
func (e *ExplorerController) State() ExplorerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *ExplorerController) snapshot() ExplorerState {
	st := e.state
	st.Items = append([]ExplorerItem(nil), e.state.Items...)
	return st
}

func (e *ExplorerController) update(fn func(*ExplorerState) bool) bool {
	e.mu.Lock()
	changed := fn(&e.state)
	snap := e.snapshot()
	e.mu.Unlock()
	if changed {
		e.deps.Bus.Publish(EventExplorerChanged, snap)
	}
	return changed
}

// Open shows the explorer. The first open lists the root directory.
func (e *ExplorerController) Open(ctx context.Context) error {
	e.update(func(st *ExplorerState) bool {
		if st.Open {
			return false
		}
		st.Open = true
		return true
	})

	e.mu.Lock()
	first := !e.loaded
	e.mu.Unlock()
	if first {
		return e.ListDirectory(ctx, "")
	}
	return nil
}

// Close hides the explorer
func (e *ExplorerController) Close() {
	e.update(func(st *ExplorerState) bool {
		if !st.Open {
			return false
		}
		st.Open = false
		return true
	})
}

// Toggle opens a closed explorer and closes an open one
func (e *ExplorerController) Toggle(ctx context.Context) error {
	if e.State().Open {
		e.Close()
		return nil
	}
	return e.Open(ctx)
}

// ListDirectory lists path and makes it the current directory
func (e *ExplorerController) ListDirectory(ctx context.Context, path string) error {
	e.update(func(st *ExplorerState) bool {
		st.Loading = true
		return true
	})

	var resp FileListResponse
	err := e.deps.Channel.Call(ctx, OpFileList, FileListRequest{Path: path}, &resp)

	e.update(func(st *ExplorerState) bool {
		st.Loading = false
		if err == nil {
			st.CurrentPath = path
			st.Items = resp.Items
		}
		return true
	})
	if err != nil {
		e.deps.Notices.Error("Could not load directory")
		return err
	}

	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	return nil
}

// NavigateUp lists the parent of the current directory. It does nothing at the root.
func (e *ExplorerController) NavigateUp(ctx context.Context) error {
	current := e.State().CurrentPath
	if current == "" {
		return nil
	}
	return e.ListDirectory(ctx, parentPath(current))
}

// Select enters a directory or opens a file
func (e *ExplorerController) Select(ctx context.Context, item ExplorerItem) error {
	if item.IsDir {
		return e.ListDirectory(ctx, item.Path)
	}
	return e.opener.OpenFile(ctx, item.Path)
}

// IsOpenAndShouldCloseFor reports whether an interaction in region should close the explorer
func (e *ExplorerController) IsOpenAndShouldCloseFor(region Region) bool {
	if !e.State().Open {
		return false
	}
	return region != RegionExplorer && region != RegionExplorerToggle
}

// DismissFor closes the explorer when an interaction in region calls for it
func (e *ExplorerController) DismissFor(region Region) bool {
	if !e.IsOpenAndShouldCloseFor(region) {
		return false
	}
	e.Close()
	return true
}

// Detach stops following workspace events
func (e *ExplorerController) Detach() {
	if e.unsub != nil {
		e.unsub()
	}
}

func parentPath(p string) string {
	p = strings.Trim(p, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}
