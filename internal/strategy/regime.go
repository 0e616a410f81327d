package strategy

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// RegimeState is a single classification snapshot, mirroring the shape of
// a regime-history entry: type, confidence, and the inputs behind it.
type RegimeState struct {
	Regime     domain.Regime
	Confidence decimal.Decimal
	ADX        decimal.Decimal
	DISpread   decimal.Decimal
	Timestamp  time.Time
}

// FactorWeights is a factor-weight profile for the multi-horizon
// prediction step. Every weight has a floor (>= 1%) and the active
// profile is re-normalised to sum to 1 by normalize().
type FactorWeights struct {
	Momentum      float64
	EMASlope      float64
	Sequence      float64
	ZScore        float64
	HMA           float64
	TickImbalance float64
	Baseline      float64
}

func (w FactorWeights) normalize() FactorWeights {
	const floor = 0.01
	clamp := func(v float64) float64 {
		if v < floor {
			return floor
		}
		return v
	}
	w.Momentum, w.EMASlope, w.Sequence = clamp(w.Momentum), clamp(w.EMASlope), clamp(w.Sequence)
	w.ZScore, w.HMA, w.TickImbalance = clamp(w.ZScore), clamp(w.HMA), clamp(w.TickImbalance)
	w.Baseline = clamp(w.Baseline)

	sum := w.Momentum + w.EMASlope + w.Sequence + w.ZScore + w.HMA + w.TickImbalance + w.Baseline
	if sum == 0 {
		return w
	}
	w.Momentum /= sum
	w.EMASlope /= sum
	w.Sequence /= sum
	w.ZScore /= sum
	w.HMA /= sum
	w.TickImbalance /= sum
	w.Baseline /= sum
	return w
}

func trendingWeights() FactorWeights {
	return FactorWeights{Momentum: 0.30, EMASlope: 0.25, Sequence: 0.20, ZScore: 0.05, HMA: 0.10, TickImbalance: 0.05, Baseline: 0.05}.normalize()
}

func rangingWeights() FactorWeights {
	return FactorWeights{Momentum: 0.05, EMASlope: 0.05, Sequence: 0.05, ZScore: 0.30, HMA: 0.25, TickImbalance: 0.25, Baseline: 0.05}.normalize()
}

func transitionalWeights() FactorWeights {
	return FactorWeights{Momentum: 1.0 / 7, EMASlope: 1.0 / 7, Sequence: 1.0 / 7, ZScore: 1.0 / 7, HMA: 1.0 / 7, TickImbalance: 1.0 / 7, Baseline: 1.0 / 7}.normalize()
}

// RegimeDetector classifies the market as TRENDING, RANGING, or
// TRANSITIONAL from ADX and Bollinger-width-percentile inputs, and selects
// the corresponding factor-weight profile.
type RegimeDetector struct {
	mu      sync.RWMutex
	current RegimeState
	history []RegimeState
}

const regimeHistoryCap = 1000
const regimeHistoryTrimTo = 500

// NewRegimeDetector constructs an empty regime detector.
func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{current: RegimeState{Regime: domain.RegimeTransitional}}
}

// Classify updates the detector's state from the latest ADX, +DI/-DI
// spread, and Bollinger width percentile, and returns the new state.
func (d *RegimeDetector) Classify(adx, diSpread, bollingerWidthPct decimal.Decimal) RegimeState {
	adxF, _ := adx.Float64()
	spreadF, _ := diSpread.Float64()
	widthF, _ := bollingerWidthPct.Float64()

	var regime domain.Regime
	var confidence float64

	switch {
	case adxF >= RegimeTrendingADXMin && spreadF >= RegimeTrendingDISpreadMin:
		regime = domain.RegimeTrending
		confidence = clamp01(0.5 + (adxF-RegimeTrendingADXMin)/100 + (spreadF-RegimeTrendingDISpreadMin)/100)
	case adxF < RegimeRangingADXMax || (widthF < RegimeRangingBollingerPct && adxF < RegimeRangingADXSoftMax):
		regime = domain.RegimeRanging
		confidence = clamp01(0.5 + (RegimeRangingADXMax-adxF)/50 + (RegimeRangingBollingerPct-widthF))
	default:
		regime = domain.RegimeTransitional
		confidence = 0.5
	}

	state := RegimeState{
		Regime:     regime,
		Confidence: decimal.NewFromFloat(confidence),
		ADX:        adx,
		DISpread:   diSpread,
		Timestamp:  time.Now(),
	}

	d.mu.Lock()
	d.current = state
	d.history = append(d.history, state)
	if len(d.history) > regimeHistoryCap {
		d.history = d.history[len(d.history)-regimeHistoryTrimTo:]
	}
	d.mu.Unlock()

	return state
}

// GetCurrentRegime returns the most recently classified state.
func (d *RegimeDetector) GetCurrentRegime() RegimeState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// GetRegimeHistory returns a copy of the retained classification history.
func (d *RegimeDetector) GetRegimeHistory() []RegimeState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RegimeState, len(d.history))
	copy(out, d.history)
	return out
}

// FactorWeightsFor returns the factor-weight profile for regime.
func FactorWeightsFor(regime domain.Regime) FactorWeights {
	switch regime {
	case domain.RegimeTrending:
		return trendingWeights()
	case domain.RegimeRanging:
		return rangingWeights()
	default:
		return transitionalWeights()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
