package client

import (
	"sync"
	"sync/atomic"
)

// PendingState tracks the lifecycle of an optimistic local action.
type PendingState int32

const (
	StatePending PendingState = iota
	StateConfirmed
	StateReverted
)

// PendingAction is an optimistic state toggle (read flag, removal) applied
// locally before the server acknowledges it. Confirm finalizes the applied
// state; Revert rolls it back when the server rejects or the connection drops.
type PendingAction struct {
	id     uint64
	state  atomic.Int32
	revert func()
}

// State reports the action's current lifecycle phase.
func (a *PendingAction) State() PendingState {
	return PendingState(a.state.Load())
}

// PendingActions is a registry of in-flight optimistic actions. Only flag
// toggles go through it; message sends are never optimistic because the
// server echo is the sole append path.
type PendingActions struct {
	mu      sync.Mutex
	nextID  uint64
	actions map[uint64]*PendingAction
}

// NewPendingActions constructs an empty registry.
func NewPendingActions() *PendingActions {
	return &PendingActions{actions: make(map[uint64]*PendingAction)}
}

// Begin applies the optimistic change and records its revert. The returned
// id is passed to Confirm or Revert when the server responds.
func (p *PendingActions) Begin(apply, revert func()) uint64 {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	action := &PendingAction{id: id, revert: revert}
	p.actions[id] = action
	p.mu.Unlock()

	if apply != nil {
		apply()
	}
	return id
}

// Confirm settles the action; the optimistic state becomes authoritative.
func (p *PendingActions) Confirm(id uint64) bool {
	p.mu.Lock()
	action, ok := p.actions[id]
	delete(p.actions, id)
	p.mu.Unlock()

	if !ok {
		return false
	}
	return action.state.CompareAndSwap(int32(StatePending), int32(StateConfirmed))
}

// Revert rolls the single action back.
func (p *PendingActions) Revert(id uint64) bool {
	p.mu.Lock()
	action, ok := p.actions[id]
	delete(p.actions, id)
	p.mu.Unlock()

	if !ok || !action.state.CompareAndSwap(int32(StatePending), int32(StateReverted)) {
		return false
	}
	if action.revert != nil {
		action.revert()
	}
	return true
}

// RevertAll rolls back every in-flight action. Called when the connection
// drops, since the server outcome of unacknowledged actions is unknown.
func (p *PendingActions) RevertAll() int {
	p.mu.Lock()
	pending := make([]*PendingAction, 0, len(p.actions))
	for _, action := range p.actions {
		pending = append(pending, action)
	}
	p.actions = make(map[uint64]*PendingAction)
	p.mu.Unlock()

	reverted := 0
	for _, action := range pending {
		if action.state.CompareAndSwap(int32(StatePending), int32(StateReverted)) {
			if action.revert != nil {
				action.revert()
			}
			reverted++
		}
	}
	return reverted
}

// Len reports how many actions are still in flight.
func (p *PendingActions) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actions)
}
