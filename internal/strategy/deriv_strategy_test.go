package strategy_test

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func TestDerivStrategyName(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	if s.Name() != "deriv" {
		t.Errorf("Name() = %q, want %q", s.Name(), "deriv")
	}
}

func TestDerivStrategyWaitsForMinimumHistory(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	for i := 0; i < 29; i++ {
		s.AddTick(100 + float64(i))
	}
	signal := s.Analyze()
	if signal.Direction != domain.DirectionWait {
		t.Errorf("expected WAIT with fewer than 30 ticks, got %s", signal.Direction)
	}
}

func TestDerivStrategyIgnoresNonPositiveTicks(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	for i := 0; i < 29; i++ {
		s.AddTick(100 + float64(i))
	}
	s.AddTick(0)
	s.AddTick(-5)

	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("non-positive ticks must not count toward the history minimum, got %s", got)
	}
}

func TestDerivStrategyClearHistoryResetsState(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	for i := 0; i < 60; i++ {
		s.AddTick(100 + math.Sin(float64(i)/3)*5)
	}
	s.ClearHistory()

	if got := s.Analyze().Direction; got != domain.DirectionWait {
		t.Errorf("Analyze immediately after ClearHistory should be WAIT, got %s", got)
	}
}

func TestDerivStrategyAnalyzeProducesBoundedConfidence(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	price := 100.0
	for i := 0; i < 200; i++ {
		price += 0.3 + math.Sin(float64(i)/5)*0.1
		s.AddTick(price)
	}

	signal := s.Analyze()
	conf, _ := signal.Confidence.Float64()
	if conf < 0 || conf > 1 {
		t.Errorf("Confidence must stay within [0,1], got %v for direction %s", conf, signal.Direction)
	}

	if signal.Direction == domain.DirectionCall || signal.Direction == domain.DirectionPut {
		if len(signal.IndicatorsSnapshot) == 0 {
			t.Error("a directional signal should carry a populated indicator snapshot")
		}
		if _, ok := signal.IndicatorsSnapshot["adx"]; !ok {
			t.Error("indicator snapshot should include adx for entry-filter trend alignment")
		}
	}
}

func TestDerivStrategyPrunesAfterLongRun(t *testing.T) {
	s := strategy.NewDerivStrategy(zap.NewNop())
	// Exercise the 10000-tick prune path; this should not panic and the
	// strategy should still answer Analyze() afterward.
	for i := 0; i < 10050; i++ {
		s.AddTick(100 + float64(i%7))
	}
	_ = s.Analyze()
}
