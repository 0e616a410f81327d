package strategy_test

import (
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func TestNewRegistryRegistersBuiltins(t *testing.T) {
	r := strategy.NewRegistry(zap.NewNop())

	names := r.List()
	sort.Strings(names)
	want := []string{"accumulator", "deriv", "ldp", "terminal"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestRegistryCreateReturnsFreshInstances(t *testing.T) {
	r := strategy.NewRegistry(zap.NewNop())

	a, ok := r.Create("deriv")
	if !ok {
		t.Fatal("Create(deriv) should succeed")
	}
	b, ok := r.Create("deriv")
	if !ok {
		t.Fatal("Create(deriv) should succeed a second time")
	}
	if a == b {
		t.Error("Create should return a new instance on every call")
	}
	if a.Name() != "deriv" {
		t.Errorf("Name() = %q, want deriv", a.Name())
	}
}

func TestRegistryCreateUnknownNameFails(t *testing.T) {
	r := strategy.NewRegistry(zap.NewNop())
	if _, ok := r.Create("nonexistent"); ok {
		t.Error("Create should report false for an unregistered strategy name")
	}
}

func TestRegistryRegisterOverridesExisting(t *testing.T) {
	r := strategy.NewRegistry(zap.NewNop())
	r.Register("deriv", func() strategy.Strategy { return &stubStrategy{direction: domain.DirectionCall} })

	s, ok := r.Create("deriv")
	if !ok {
		t.Fatal("Create(deriv) should still succeed after override")
	}
	if s.Analyze().Direction != domain.DirectionCall {
		t.Error("Register should replace the factory for an existing name")
	}
}

type stubStrategy struct{ direction domain.Direction }

func (s *stubStrategy) Name() string       { return "stub" }
func (s *stubStrategy) AddTick(float64)    {}
func (s *stubStrategy) ClearHistory()      {}
func (s *stubStrategy) Analyze() domain.Signal {
	return domain.Signal{Direction: s.direction}
}
