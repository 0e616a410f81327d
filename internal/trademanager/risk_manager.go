// Package trademanager drives the binary-options trading state machine:
// risk preflight, martingale stake progression, and contract lifecycle.
package trademanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/config"
	"github.com/dzakiart/derivengine/pkg/domain"
)

// RiskManager runs the pre-trade risk preflight and tracks the rolling
// counters (consecutive losses, daily loss, buy-failure circuit breaker)
// that feed it.
type RiskManager struct {
	logger *zap.Logger
	config config.RiskConfig

	mu         sync.RWMutex
	state      domain.RiskState
	violations []RiskViolation
	riskEvents chan RiskEvent
}

// RiskViolation is a single failed or warned-on risk rule.
type RiskViolation struct {
	Rule      string          `json:"rule"`
	Severity  RiskSeverity    `json:"severity"`
	Value     decimal.Decimal `json:"value"`
	Limit     decimal.Decimal `json:"limit"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// RiskSeverity classifies a RiskViolation.
type RiskSeverity string

const (
	RiskSeverityWarning  RiskSeverity = "warning"
	RiskSeverityCritical RiskSeverity = "critical"
	RiskSeverityBlock    RiskSeverity = "block"
)

// RiskEvent is emitted whenever the circuit breaker or an abort condition
// fires.
type RiskEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskCheckResult is the preflight verdict for a proposed buy.
type RiskCheckResult struct {
	Approved   bool            `json:"approved"`
	Violations []RiskViolation `json:"violations"`
	Warnings   []string        `json:"warnings"`
}

// NewRiskManager constructs a RiskManager from cfg, optionally resuming
// from a previously persisted RiskState.
func NewRiskManager(logger *zap.Logger, cfg config.RiskConfig, resume domain.RiskState) *RiskManager {
	return &RiskManager{
		logger:     logger.Named("risk-manager"),
		config:     cfg,
		state:      resume,
		riskEvents: make(chan RiskEvent, 100),
	}
}

// CheckPreflight validates a proposed buy of stake against the current
// martingale sequence (projectedStakes lists the remaining stakes a full
// recovery sequence would require, stake included) and balance.
func (rm *RiskManager) CheckPreflight(stake decimal.Decimal, projectedStakes []decimal.Decimal, balance decimal.Decimal) RiskCheckResult {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	result := RiskCheckResult{Approved: true}

	if !rm.state.CircuitBreakerEnd.IsZero() && time.Now().Before(rm.state.CircuitBreakerEnd) {
		result.Approved = false
		result.Violations = append(result.Violations, RiskViolation{
			Rule:      "circuit_breaker",
			Severity:  RiskSeverityBlock,
			Message:   fmt.Sprintf("circuit breaker active until %s", rm.state.CircuitBreakerEnd.Format(time.RFC3339)),
			Timestamp: time.Now(),
		})
		return result
	}

	if rm.state.ConsecutiveLosses >= rm.config.MaxConsecutiveLosses {
		result.Approved = false
		result.Violations = append(result.Violations, RiskViolation{
			Rule:      "max_consecutive_losses",
			Severity:  RiskSeverityCritical,
			Value:     decimal.NewFromInt(int64(rm.state.ConsecutiveLosses)),
			Limit:     decimal.NewFromInt(int64(rm.config.MaxConsecutiveLosses)),
			Message:   "maximum consecutive losses reached",
			Timestamp: time.Now(),
		})
	}

	dailyCap, err := decimal.NewFromString(rm.config.DailyLossCapStr)
	if err == nil && dailyCap.IsPositive() && rm.state.DailyLoss.Abs().GreaterThanOrEqual(dailyCap) {
		result.Approved = false
		result.Violations = append(result.Violations, RiskViolation{
			Rule:      "daily_loss_cap",
			Severity:  RiskSeverityCritical,
			Value:     rm.state.DailyLoss,
			Limit:     dailyCap.Neg(),
			Message:   "daily loss cap reached",
			Timestamp: time.Now(),
		})
	}

	projected := decimal.Zero
	for _, s := range projectedStakes {
		projected = projected.Add(s)
	}
	if balance.IsPositive() && projected.IsPositive() {
		warnThreshold := balance.Mul(decimal.NewFromFloat(rm.config.ProjectedRiskWarnPct))
		if projected.GreaterThan(warnThreshold) {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"projected martingale exposure %s exceeds %.0f%% of balance", projected.String(), rm.config.ProjectedRiskWarnPct*100))
			if rm.config.ProjectedRiskAutoStop {
				result.Approved = false
				result.Violations = append(result.Violations, RiskViolation{
					Rule:      "projected_risk_auto_stop",
					Severity:  RiskSeverityBlock,
					Value:     projected,
					Limit:     warnThreshold,
					Message:   "projected martingale exposure exceeds the auto-stop threshold",
					Timestamp: time.Now(),
				})
			}
		}
	}

	if len(result.Violations) > 0 {
		rm.violations = append(rm.violations, result.Violations...)
		rm.logger.Warn("risk preflight blocked buy", zap.Int("violations", len(result.Violations)))
	}

	return result
}

// RecordTrade folds a settled contract's outcome into the rolling risk
// counters.
func (rm *RiskManager) RecordTrade(profit decimal.Decimal, isWin bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.state.LastTradeTime = time.Now()
	if isWin {
		rm.state.ConsecutiveLosses = 0
		return
	}
	rm.state.ConsecutiveLosses++
	rm.state.DailyLoss = rm.state.DailyLoss.Add(profit)
}

// RecordBuyFailure notes a failed buy attempt and trips the circuit
// breaker once CircuitBreakerFailures failures land within
// CircuitBreakerWindow of each other.
func (rm *RiskManager) RecordBuyFailure() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rm.config.CircuitBreakerWindow)

	kept := rm.state.BuyFailureTimes[:0]
	for _, t := range rm.state.BuyFailureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	rm.state.BuyFailureTimes = kept

	if len(rm.state.BuyFailureTimes) >= rm.config.CircuitBreakerFailures {
		pause := rm.config.CircuitBreakerPause
		rm.state.CircuitBreakerEnd = now.Add(pause)
		rm.state.BuyFailureTimes = nil
		rm.sendEvent(RiskEvent{Type: "circuit_breaker_tripped", Message: fmt.Sprintf("pausing trading for %s", pause), Timestamp: now})
		rm.logger.Error("circuit breaker tripped", zap.Duration("pause", pause))
	}
}

// ResetDaily clears the daily-loss counter; called on a UTC day rollover.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.state.DailyLoss = decimal.Zero
}

// IsCircuitBroken reports whether the circuit breaker is currently active.
func (rm *RiskManager) IsCircuitBroken() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return !rm.state.CircuitBreakerEnd.IsZero() && time.Now().Before(rm.state.CircuitBreakerEnd)
}

// State returns a copy of the current risk state, suitable for session
// persistence.
func (rm *RiskManager) State() domain.RiskState {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.state
}

// Events returns the channel risk events are published on.
func (rm *RiskManager) Events() <-chan RiskEvent {
	return rm.riskEvents
}

func (rm *RiskManager) sendEvent(event RiskEvent) {
	select {
	case rm.riskEvents <- event:
	default:
		rm.logger.Warn("risk event channel full")
	}
}
