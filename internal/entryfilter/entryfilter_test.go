package entryfilter_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/entryfilter"
	"github.com/dzakiart/derivengine/pkg/domain"
)

// middaySessionTime lands inside the 12:00-17:00 UTC favorable window so
// tests aren't flaky depending on wall-clock time.
var middaySessionTime = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func baseSignal() domain.Signal {
	return domain.Signal{
		Direction:      domain.DirectionCall,
		Confidence:     decimal.NewFromFloat(0.85),
		VolatilityZone: domain.VolatilityNormal,
		IndicatorsSnapshot: map[string]decimal.Decimal{
			"adx":      decimal.NewFromInt(30),
			"plus_di":  decimal.NewFromInt(28),
			"minus_di": decimal.NewFromInt(14),
		},
	}
}

func TestEvaluateAllowsStrongAlignedSignal(t *testing.T) {
	f := entryfilter.New(zap.NewNop())

	result := f.Evaluate(domain.RiskModeHighProbability, baseSignal(), middaySessionTime)
	if !result.Allowed {
		t.Errorf("expected a strong, trend-aligned, normal-volatility signal to be allowed; blocked on %v", result.BlockReasons)
	}
	if result.Score <= 0 {
		t.Errorf("expected a positive composite score, got %v", result.Score)
	}
}

func TestEvaluateBlocksOnExtremeVolatility(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	signal.VolatilityZone = domain.VolatilityExtremeHigh

	result := f.Evaluate(domain.RiskModeHighProbability, signal, middaySessionTime)
	if result.Allowed {
		t.Error("EXTREME_HIGH volatility should always hard-block, regardless of score")
	}
	if !containsReason(result.BlockReasons, "volatility classified EXTREME") {
		t.Errorf("expected an EXTREME volatility block reason, got %v", result.BlockReasons)
	}
}

func TestEvaluateBlocksOnTrendMisalignment(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	// ADX > 25 with +DI < -DI means the trend favors PUT; a CALL signal
	// disagrees with it.
	signal.IndicatorsSnapshot["plus_di"] = decimal.NewFromInt(10)
	signal.IndicatorsSnapshot["minus_di"] = decimal.NewFromInt(30)
	signal.Direction = domain.DirectionCall

	result := f.Evaluate(domain.RiskModeHighProbability, signal, middaySessionTime)
	if result.Allowed {
		t.Error("a CALL signal against a PUT-favoring trend should be blocked")
	}
	if !containsReason(result.BlockReasons, "signal direction misaligned with trend") {
		t.Errorf("expected a trend-misalignment block reason, got %v", result.BlockReasons)
	}
}

func TestEvaluateAllowsWhenADXBelowTrendThreshold(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	// ADX at or below 25: no trend in force, so direction can't misalign.
	signal.IndicatorsSnapshot["adx"] = decimal.NewFromInt(20)
	signal.IndicatorsSnapshot["plus_di"] = decimal.NewFromInt(10)
	signal.IndicatorsSnapshot["minus_di"] = decimal.NewFromInt(30)

	result := f.Evaluate(domain.RiskModeHighProbability, signal, middaySessionTime)
	if containsReason(result.BlockReasons, "signal direction misaligned with trend") {
		t.Error("a sub-threshold ADX should never trigger a trend-misalignment block")
	}
}

func TestEvaluateMissingIndicatorsNeverMisaligns(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	signal.IndicatorsSnapshot = map[string]decimal.Decimal{} // e.g. Terminal strategy

	result := f.Evaluate(domain.RiskModeHighProbability, signal, middaySessionTime)
	if containsReason(result.BlockReasons, "signal direction misaligned with trend") {
		t.Error("a signal lacking ADX/+DI/-DI should never be blocked for misalignment")
	}
}

func TestEvaluateBlocksBelowConfidenceFloor(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	signal.Confidence = decimal.NewFromFloat(0.5) // below HIGH_PROBABILITY's 0.80 floor

	result := f.Evaluate(domain.RiskModeHighProbability, signal, middaySessionTime)
	if result.Allowed {
		t.Error("confidence below the mode's floor should block")
	}
	if !containsReason(result.BlockReasons, "confidence below mode minimum") {
		t.Errorf("expected a confidence-floor block reason, got %v", result.BlockReasons)
	}
}

func TestEvaluateSniperIsStricterThanAggressive(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	signal := baseSignal()
	signal.Confidence = decimal.NewFromFloat(0.62) // above AGGRESSIVE floor, below SNIPER floor

	aggressive := f.Evaluate(domain.RiskModeAggressive, signal, middaySessionTime)
	sniper := f.Evaluate(domain.RiskModeSniper, signal, middaySessionTime)

	if !aggressive.Allowed {
		t.Error("AGGRESSIVE mode should allow a signal above its lower confidence floor")
	}
	if sniper.Allowed {
		t.Error("SNIPER mode should reject a signal below its higher confidence floor")
	}
}

func TestStatsAccumulateAcrossEvaluations(t *testing.T) {
	f := entryfilter.New(zap.NewNop())

	allowed := baseSignal()
	blocked := baseSignal()
	blocked.VolatilityZone = domain.VolatilityExtremeLow

	f.Evaluate(domain.RiskModeHighProbability, allowed, middaySessionTime)
	f.Evaluate(domain.RiskModeHighProbability, blocked, middaySessionTime)

	stats := f.Stats(domain.RiskModeHighProbability)
	if stats.Evaluated != 2 {
		t.Errorf("Evaluated = %d, want 2", stats.Evaluated)
	}
	if stats.AllowRate != 0.5 {
		t.Errorf("AllowRate = %v, want 0.5", stats.AllowRate)
	}
	if stats.BlockBreakdown["volatility classified EXTREME"] != 1 {
		t.Errorf("expected one EXTREME volatility block recorded, got %v", stats.BlockBreakdown)
	}
}

func TestStatsForUnevaluatedModeIsEmpty(t *testing.T) {
	f := entryfilter.New(zap.NewNop())
	stats := f.Stats(domain.RiskModeLowRisk)
	if stats.Evaluated != 0 {
		t.Errorf("expected zero evaluations for an untouched mode, got %d", stats.Evaluated)
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
