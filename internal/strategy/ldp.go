package strategy

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
	"github.com/dzakiart/derivengine/pkg/mathutil"
)

// LDPStrategy looks for a pullback to the fast EMA within an established
// EMA-slope trend: price drifting back toward emaFast while emaFast still
// leads emaSlow in the trend direction is read as a continuation entry.
type LDPStrategy struct {
	logger *zap.Logger

	mu      sync.Mutex
	ticks   int
	emaFast *mathutil.EMA
	emaSlow *mathutil.EMA
	price   decimal.Decimal
}

// NewLDPStrategy constructs a fresh LDPStrategy instance.
func NewLDPStrategy(logger *zap.Logger) *LDPStrategy {
	return &LDPStrategy{
		logger:  logger.Named("strategy.ldp"),
		emaFast: mathutil.NewEMA(EMAFastPeriod),
		emaSlow: mathutil.NewEMA(EMASlowPeriod),
	}
}

// Name returns the strategy's registry name.
func (s *LDPStrategy) Name() string { return "ldp" }

// AddTick updates the fast/slow EMAs with the latest price.
func (s *LDPStrategy) AddTick(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return
	}
	s.price = p
	s.emaFast.Add(p)
	s.emaSlow.Add(p)
	s.ticks++
}

// ClearHistory resets the strategy to its initial state.
func (s *LDPStrategy) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = 0
	s.emaFast.Reset()
	s.emaSlow.Reset()
	s.price = decimal.Zero
}

// Analyze returns a pullback-continuation signal when price has reverted
// close to the fast EMA while the slope between the two EMAs still favors
// a trend.
func (s *LDPStrategy) Analyze() domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	if !s.emaFast.Ready() || !s.emaSlow.Ready() {
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "warming up", GeneratedAt: now}
	}

	fast, slow := s.emaFast.Current(), s.emaSlow.Current()
	trendSpread := fast.Sub(slow)
	pullback := mathutil.SafeDiv(s.price.Sub(fast).Abs(), fast, decimal.Zero)

	const pullbackBand = 0.0015
	if pullback.GreaterThan(decimal.NewFromFloat(pullbackBand)) {
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "price outside pullback band", GeneratedAt: now}
	}

	confidence := decimal.NewFromFloat(0.55).Add(mathutil.Clamp(decimal.NewFromFloat(pullbackBand).Sub(pullback).Mul(decimal.NewFromInt(100)), decimal.Zero, decimal.NewFromFloat(0.25)))

	var direction domain.Direction
	switch {
	case trendSpread.IsPositive() && s.price.LessThanOrEqual(fast):
		direction = domain.DirectionCall
	case trendSpread.IsNegative() && s.price.GreaterThanOrEqual(fast):
		direction = domain.DirectionPut
	default:
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "no trend alignment", GeneratedAt: now}
	}

	return domain.Signal{
		Direction:  direction,
		Confidence: mathutil.Clamp(confidence, decimal.Zero, decimal.NewFromInt(1)),
		Reason:     "ema pullback in trend",
		IndicatorsSnapshot: map[string]decimal.Decimal{
			"ema_fast": fast, "ema_slow": slow, "pullback": pullback,
		},
		VolatilityZone: domain.VolatilityNormal,
		GeneratedAt:    now,
	}
}
