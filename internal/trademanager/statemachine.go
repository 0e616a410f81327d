package trademanager

import (
	"fmt"
	"sync"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// validTransitions enumerates the Trade Manager's allowed state moves.
var validTransitions = map[domain.TradeManagerState][]domain.TradeManagerState{
	domain.StateIdle:          {domain.StateRunning},
	domain.StateRunning:       {domain.StateWaitingResult, domain.StateStopped},
	domain.StateWaitingResult: {domain.StateRunning, domain.StateStopped},
	domain.StateStopped:       {},
}

// StateMachine guards the Trade Manager's IDLE/RUNNING/WAITING_RESULT/
// STOPPED lifecycle against invalid transitions.
type StateMachine struct {
	mu      sync.RWMutex
	current domain.TradeManagerState
}

// NewStateMachine constructs a StateMachine starting at IDLE.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: domain.StateIdle}
}

// NewStateMachineAt constructs a StateMachine resuming at a specific state
// (used when restoring a persisted session).
func NewStateMachineAt(state domain.TradeManagerState) *StateMachine {
	return &StateMachine{current: state}
}

// Current returns the machine's current state.
func (m *StateMachine) Current() domain.TradeManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanTransition reports whether moving from the current state to target is
// a legal transition.
func (m *StateMachine) CanTransition(target domain.TradeManagerState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range validTransitions[m.current] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves the machine to target, or returns an error if the move
// is not legal from the current state.
func (m *StateMachine) Transition(target domain.TradeManagerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range validTransitions[m.current] {
		if s == target {
			m.current = target
			return nil
		}
	}
	return fmt.Errorf("illegal transition from %s to %s", m.current, target)
}
