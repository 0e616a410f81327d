package strategy_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func TestLDPStrategyName(t *testing.T) {
	s := strategy.NewLDPStrategy(zap.NewNop())
	if s.Name() != "ldp" {
		t.Errorf("Name() = %q, want ldp", s.Name())
	}
}

func TestLDPStrategyWaitsWhileWarmingUp(t *testing.T) {
	s := strategy.NewLDPStrategy(zap.NewNop())
	for i := 0; i < 10; i++ {
		s.AddTick(100)
	}
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("expected WAIT before both EMAs are ready, got %s", got)
	}
}

func TestLDPStrategyWaitsWhenTrendIsFlat(t *testing.T) {
	s := strategy.NewLDPStrategy(zap.NewNop())
	for i := 0; i < 25; i++ {
		s.AddTick(100)
	}
	// A perfectly flat series drives emaFast == emaSlow, so the spread is
	// neither positive nor negative and no trend alignment exists.
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("expected WAIT with zero EMA spread, got %s", got)
	}
}

func TestLDPStrategyClearHistoryResetsWarmup(t *testing.T) {
	s := strategy.NewLDPStrategy(zap.NewNop())
	for i := 0; i < 25; i++ {
		s.AddTick(100 + float64(i))
	}
	s.ClearHistory()
	for i := 0; i < 5; i++ {
		s.AddTick(100)
	}
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("expected WAIT immediately after ClearHistory, got %s", got)
	}
}

func TestLDPStrategyIgnoresNonPositiveTicks(t *testing.T) {
	s := strategy.NewLDPStrategy(zap.NewNop())
	for i := 0; i < 20; i++ {
		s.AddTick(100)
	}
	s.AddTick(-10)
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("20 ticks should still be short of the 21-period slow EMA, got %s", got)
	}
}
