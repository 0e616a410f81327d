// Package strategy implements the per-symbol tick-buffer, multi-factor
// regime-adaptive signal synthesis engine, plus the auxiliary LDP,
// Accumulator, and Terminal signal producers that share its input
// contract.
package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// Strategy is the input contract every signal producer implements.
type Strategy interface {
	Name() string
	AddTick(price float64)
	Analyze() domain.Signal
	ClearHistory()
}

// Registry manages available strategy factories, keyed by name.
type Registry struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	strategies map[string]func() Strategy
}

// NewRegistry constructs a Registry with the built-in strategies
// registered: the primary DerivStrategy plus the LDP, Accumulator, and
// Terminal auxiliaries.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger, strategies: make(map[string]func() Strategy)}

	r.Register("deriv", func() Strategy { return NewDerivStrategy(logger) })
	r.Register("ldp", func() Strategy { return NewLDPStrategy(logger) })
	r.Register("accumulator", func() Strategy { return NewAccumulatorStrategy(logger) })
	r.Register("terminal", func() Strategy { return NewTerminalStrategy(logger) })

	return r
}

// Register adds or replaces a strategy factory under name.
func (r *Registry) Register(name string, factory func() Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = factory
}

// Create instantiates a fresh strategy by name.
func (r *Registry) Create(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.strategies[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns every registered strategy name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}
