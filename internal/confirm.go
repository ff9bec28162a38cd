package internal

import (
	"context"
	"sync"
)

// ConfirmationRequest describes a destructive action awaiting a yes/no answer
type ConfirmationRequest struct {
	Title        string
	Body         string
	ConfirmLabel string
	CancelLabel  string
	OnConfirm    func(ctx context.Context) error
}

// ConfirmationGate holds at most one pending confirmation.
// Requests made while one is open are rejected with ErrConfirmationPending.
type ConfirmationGate struct {
	mu      sync.Mutex
	bus     *Bus
	pending *ConfirmationRequest
}

// NewConfirmationGate creates an empty gate
func NewConfirmationGate(bus *Bus) *ConfirmationGate {
	return &ConfirmationGate{bus: bus}
}

// Request opens a confirmation
func (g *ConfirmationGate) Request(req ConfirmationRequest) error {
	if req.ConfirmLabel == "" {
		req.ConfirmLabel = "Confirm"
	}
	if req.CancelLabel == "" {
		req.CancelLabel = "Cancel"
	}

	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		LogDebug("Rejected confirmation %q: %q is pending", req.Title, g.pendingTitle())
		return ErrConfirmationPending
	}
	g.pending = &req
	g.mu.Unlock()

	g.bus.Publish(EventConfirmationOpened, req)
	return nil
}

// pendingTitle is only used for logging and tolerates a racing Accept
func (g *ConfirmationGate) pendingTitle() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ""
	}
	return g.pending.Title
}

// Pending returns the open confirmation, if any
func (g *ConfirmationGate) Pending() (ConfirmationRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ConfirmationRequest{}, false
	}
	return *g.pending, true
}

// Accept closes the confirmation and runs its action
func (g *ConfirmationGate) Accept(ctx context.Context) error {
	req, ok := g.take()
	if !ok {
		return ErrNoPendingConfirmation
	}
	g.bus.Publish(EventConfirmationClosed, true)
	if req.OnConfirm == nil {
		return nil
	}
	return req.OnConfirm(ctx)
}

// Cancel closes the confirmation without running its action
func (g *ConfirmationGate) Cancel() {
	if _, ok := g.take(); ok {
		g.bus.Publish(EventConfirmationClosed, false)
	}
}

func (g *ConfirmationGate) take() (ConfirmationRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ConfirmationRequest{}, false
	}
	req := *g.pending
	g.pending = nil
	return req, true
}
