package strategy_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func TestAccumulatorStrategyName(t *testing.T) {
	s := strategy.NewAccumulatorStrategy(zap.NewNop())
	if s.Name() != "accumulator" {
		t.Errorf("Name() = %q, want accumulator", s.Name())
	}
}

func TestAccumulatorStrategyWaitsWhileWarmingUp(t *testing.T) {
	s := strategy.NewAccumulatorStrategy(zap.NewNop())
	for i := 0; i < 10; i++ {
		s.AddTick(100)
	}
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("expected WAIT before the Bollinger window fills, got %s", got)
	}
}

func TestAccumulatorStrategyWaitsWhenBandNotCompressed(t *testing.T) {
	s := strategy.NewAccumulatorStrategy(zap.NewNop())
	// A perfectly flat price series drives the band width to zero at every
	// step, so its percentile rank against its own all-zero history sits at
	// the top (rank 1.0), which the compression gate treats as "not
	// compressed" rather than a tradable squeeze.
	for i := 0; i < 25; i++ {
		s.AddTick(100)
	}
	signal := s.Analyze()
	if signal.Direction != domain.DirectionWait {
		t.Errorf("expected WAIT on a flat, non-compressed series, got %s", signal.Direction)
	}
}

func TestAccumulatorStrategyClearHistoryResetsWarmup(t *testing.T) {
	s := strategy.NewAccumulatorStrategy(zap.NewNop())
	for i := 0; i < 25; i++ {
		s.AddTick(100 + float64(i))
	}
	s.ClearHistory()
	for i := 0; i < 5; i++ {
		s.AddTick(100)
	}
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("expected WAIT immediately after ClearHistory with too little history, got %s", got)
	}
}

func TestAccumulatorStrategyIgnoresNonPositiveTicks(t *testing.T) {
	s := strategy.NewAccumulatorStrategy(zap.NewNop())
	for i := 0; i < 19; i++ {
		s.AddTick(100)
	}
	s.AddTick(-1)
	s.AddTick(0)
	// Still only 19 valid ticks fed; the Bollinger period is 20, so it
	// should not yet be ready.
	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("non-positive ticks should not count toward warmup, got %s", got)
	}
}
