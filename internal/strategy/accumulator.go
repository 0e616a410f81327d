package strategy

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/indicator"
	"github.com/dzakiart/derivengine/pkg/domain"
	"github.com/dzakiart/derivengine/pkg/mathutil"
)

// AccumulatorStrategy waits for the Bollinger band to compress into the
// bottom of its recent width-percentile range, then trades in the
// direction of the prevailing tick-imbalance drift on the thesis that a
// narrow-volatility accumulation zone precedes a directional expansion.
type AccumulatorStrategy struct {
	logger *zap.Logger

	mu            sync.Mutex
	bollinger     *indicator.Bollinger
	imbalance     *indicator.TickImbalance
	ticks         int
	lastResult    indicator.BollingerResult
	lastImbalance decimal.Decimal
}

// NewAccumulatorStrategy constructs a fresh AccumulatorStrategy instance.
func NewAccumulatorStrategy(logger *zap.Logger) *AccumulatorStrategy {
	return &AccumulatorStrategy{
		logger:    logger.Named("strategy.accumulator"),
		bollinger: indicator.NewBollinger(BollingerPeriod, decimal.NewFromFloat(2.0)),
		imbalance: indicator.NewTickImbalance(TickImbalanceWindow),
	}
}

// Name returns the strategy's registry name.
func (s *AccumulatorStrategy) Name() string { return "accumulator" }

// AddTick feeds price into the Bollinger band and tick-imbalance tracker.
func (s *AccumulatorStrategy) AddTick(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return
	}
	s.lastResult = s.bollinger.Add(p)
	s.lastImbalance = s.imbalance.Add(p)
	s.ticks++
}

// ClearHistory resets the strategy to its initial state.
func (s *AccumulatorStrategy) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = 0
	s.bollinger = indicator.NewBollinger(BollingerPeriod, decimal.NewFromFloat(2.0))
	s.imbalance = indicator.NewTickImbalance(TickImbalanceWindow)
}

// Analyze returns a directional signal only while the band is compressed
// into the bottom fifth (width percentile at most 0.20) of its recent
// width history.
func (s *AccumulatorStrategy) Analyze() domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	if !s.bollinger.Ready() {
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "warming up", GeneratedAt: now}
	}

	const compressionBand = 0.20
	result := s.lastResult
	if result.WidthPercentile.GreaterThan(decimal.NewFromFloat(compressionBand)) {
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "volatility not compressed", GeneratedAt: now}
	}

	drift := s.lastImbalance
	var direction domain.Direction
	switch {
	case drift.GreaterThan(decimal.NewFromFloat(0.55)):
		direction = domain.DirectionCall
	case drift.LessThan(decimal.NewFromFloat(0.45)):
		direction = domain.DirectionPut
	default:
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "no drift bias", GeneratedAt: now}
	}

	compressionDepth := decimal.NewFromFloat(compressionBand).Sub(result.WidthPercentile)
	confidence := decimal.NewFromFloat(0.55).Add(mathutil.Clamp(compressionDepth.Mul(decimal.NewFromInt(2)), decimal.Zero, decimal.NewFromFloat(0.30)))

	return domain.Signal{
		Direction:  direction,
		Confidence: mathutil.Clamp(confidence, decimal.Zero, decimal.NewFromInt(1)),
		Reason:     "narrow volatility band accumulation",
		IndicatorsSnapshot: map[string]decimal.Decimal{
			"band_width_pct": result.WidthPercentile, "tick_imbalance": drift,
		},
		VolatilityZone: domain.VolatilityLow,
		GeneratedAt:    now,
	}
}
