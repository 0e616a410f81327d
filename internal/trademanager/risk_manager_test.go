package trademanager_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/config"
	"github.com/dzakiart/derivengine/internal/trademanager"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func TestCheckPreflightApprovesByDefault(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{MaxConsecutiveLosses: 10}, domain.RiskState{})

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if !result.Approved {
		t.Errorf("expected approval with a fresh risk state, got violations: %+v", result.Violations)
	}
}

func TestCheckPreflightBlocksOnMaxConsecutiveLosses(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{MaxConsecutiveLosses: 2}, domain.RiskState{})

	rm.RecordTrade(decimal.NewFromInt(-1), false)
	rm.RecordTrade(decimal.NewFromInt(-1), false)

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if result.Approved {
		t.Error("expected the preflight to block once MaxConsecutiveLosses is reached")
	}
}

func TestRecordTradeWinResetsConsecutiveLosses(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{MaxConsecutiveLosses: 2}, domain.RiskState{})

	rm.RecordTrade(decimal.NewFromInt(-1), false)
	rm.RecordTrade(decimal.NewFromInt(5), true)

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if !result.Approved {
		t.Error("a win should reset the consecutive-loss counter and re-approve")
	}
}

func TestCheckPreflightBlocksOnDailyLossCap(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{
		MaxConsecutiveLosses: 100,
		DailyLossCapStr:      "10",
	}, domain.RiskState{})

	rm.RecordTrade(decimal.NewFromInt(-10), false)

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if result.Approved {
		t.Error("expected the preflight to block once the daily loss cap is breached")
	}
}

func TestResetDailyClearsLossCounter(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{
		MaxConsecutiveLosses: 100,
		DailyLossCapStr:      "10",
	}, domain.RiskState{})

	rm.RecordTrade(decimal.NewFromInt(-10), false)
	rm.ResetDaily()

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if !result.Approved {
		t.Error("ResetDaily should clear the daily loss so the cap no longer blocks")
	}
}

func TestCheckPreflightWarnsWithoutBlockingWhenAutoStopDisabled(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{
		MaxConsecutiveLosses:  100,
		ProjectedRiskWarnPct:  0.05,
		ProjectedRiskAutoStop: false,
	}, domain.RiskState{})

	stakes := []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(50)}
	result := rm.CheckPreflight(decimal.NewFromInt(50), stakes, decimal.NewFromInt(100))

	if !result.Approved {
		t.Error("a projected-risk warning without auto-stop should still approve the buy")
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning about projected martingale exposure")
	}
}

func TestCheckPreflightAutoStopsOnExcessiveProjectedRisk(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{
		MaxConsecutiveLosses:  100,
		ProjectedRiskWarnPct:  0.05,
		ProjectedRiskAutoStop: true,
	}, domain.RiskState{})

	stakes := []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(50)}
	result := rm.CheckPreflight(decimal.NewFromInt(50), stakes, decimal.NewFromInt(100))

	if result.Approved {
		t.Error("expected the preflight to block when ProjectedRiskAutoStop is enabled and the threshold is exceeded")
	}
}

func TestCircuitBreakerTripsAfterThresholdFailures(t *testing.T) {
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{
		CircuitBreakerFailures: 3,
		CircuitBreakerWindow:   time.Minute,
		CircuitBreakerPause:    time.Hour,
	}, domain.RiskState{})

	if rm.IsCircuitBroken() {
		t.Fatal("circuit breaker should start closed")
	}

	rm.RecordBuyFailure()
	rm.RecordBuyFailure()
	if rm.IsCircuitBroken() {
		t.Fatal("circuit breaker should not trip before reaching the failure threshold")
	}

	rm.RecordBuyFailure()
	if !rm.IsCircuitBroken() {
		t.Error("circuit breaker should trip once CircuitBreakerFailures is reached within the window")
	}

	result := rm.CheckPreflight(decimal.NewFromInt(1), nil, decimal.NewFromInt(100))
	if result.Approved {
		t.Error("an active circuit breaker should block the preflight")
	}
}

func TestStateRoundTripsForSessionPersistence(t *testing.T) {
	resume := domain.RiskState{ConsecutiveLosses: 2, DailyLoss: decimal.NewFromInt(-5)}
	rm := trademanager.NewRiskManager(zap.NewNop(), config.RiskConfig{MaxConsecutiveLosses: 10}, resume)

	got := rm.State()
	if got.ConsecutiveLosses != 2 || !got.DailyLoss.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("State() = %+v, want the resumed values to be preserved", got)
	}
}
