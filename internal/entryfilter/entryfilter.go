// Package entryfilter is the universal guard wrapping any strategy's
// signal before the Trade Manager acts on it: a stateless scorer plus
// hard blocks, with rolling per-risk-mode statistics.
package entryfilter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// Weights for the composite score. They sum to 1.0.
const (
	weightConfidence     = 0.40
	weightVolatility     = 0.25
	weightTrendAlignment = 0.20
	weightSessionTime    = 0.15
)

// minScore is the per-risk-mode minimum allowed composite score.
var minScore = map[domain.RiskMode]float64{
	domain.RiskModeLowRisk:         60,
	domain.RiskModeHighProbability: 70,
	domain.RiskModeAggressive:      50,
	domain.RiskModeSniper:          75,
}

// minConfidence is the per-risk-mode hard-block confidence floor.
var minConfidence = map[domain.RiskMode]float64{
	domain.RiskModeLowRisk:         0.70,
	domain.RiskModeHighProbability: 0.80,
	domain.RiskModeAggressive:      0.60,
	domain.RiskModeSniper:          0.85,
}

// Result is the filter's verdict for one evaluated signal.
type Result struct {
	Score         float64  `json:"score"`
	Allowed       bool     `json:"allowed"`
	Reasons       []string `json:"reasons"`
	BlockReasons  []string `json:"blockReasons"`
}

// modeStats is the rolling per-mode bookkeeping.
type modeStats struct {
	evaluated     int
	allowed       int
	scoreTotal    float64
	blockByReason map[string]int
}

// Filter evaluates signals against a configured risk mode's thresholds.
type Filter struct {
	logger *zap.Logger

	mu    sync.Mutex
	stats map[domain.RiskMode]*modeStats
}

// New constructs a Filter.
func New(logger *zap.Logger) *Filter {
	return &Filter{
		logger: logger.Named("entryfilter"),
		stats:  make(map[domain.RiskMode]*modeStats),
	}
}

// Evaluate scores signal under mode at the given evaluation time (for
// session-time scoring). Trend-alignment is read directly off signal's
// +DI/-DI and ADX (when the producing strategy supplies them via
// IndicatorsSnapshot); a strategy that doesn't carry directional-index
// data is treated as trivially aligned, since there is nothing to
// misalign against.
func (f *Filter) Evaluate(mode domain.RiskMode, signal domain.Signal, now time.Time) Result {
	result := Result{Allowed: true}

	confidence, _ := signal.Confidence.Float64()

	if floor, ok := minConfidence[mode]; ok && confidence < floor {
		result.Allowed = false
		result.BlockReasons = append(result.BlockReasons, "confidence below mode minimum")
	}

	if signal.VolatilityZone == domain.VolatilityExtremeHigh || signal.VolatilityZone == domain.VolatilityExtremeLow {
		result.Allowed = false
		result.BlockReasons = append(result.BlockReasons, "volatility classified EXTREME")
	}

	trending, aligned := trendAlignment(signal)
	if trending && !aligned {
		result.Allowed = false
		result.BlockReasons = append(result.BlockReasons, "signal direction misaligned with trend")
	}

	volatilityScore := volatilityScore(signal.VolatilityZone)
	trendScore := 0.0
	if aligned {
		trendScore = 100
	}
	sessionScore := sessionTimeScore(now)

	score := weightConfidence*confidence*100 +
		weightVolatility*volatilityScore +
		weightTrendAlignment*trendScore +
		weightSessionTime*sessionScore

	result.Score = score

	if floor, ok := minScore[mode]; ok && score < floor {
		result.Allowed = false
		result.BlockReasons = append(result.BlockReasons, "composite score below mode minimum")
	}

	if result.Allowed {
		result.Reasons = append(result.Reasons, "passed all entry filter checks")
	}

	f.record(mode, result)
	return result
}

// volatilityScore maps a VolatilityZone to a 0-100 favorability score:
// NORMAL is most favorable, the EXTREME zones (already hard-blocked
// elsewhere) score lowest.
func volatilityScore(zone domain.VolatilityZone) float64 {
	switch zone {
	case domain.VolatilityNormal:
		return 100
	case domain.VolatilityHigh, domain.VolatilityLow:
		return 70
	case domain.VolatilityExtremeHigh, domain.VolatilityExtremeLow:
		return 0
	default:
		return 50
	}
}

// trendAlignment reads +DI/-DI and ADX off the signal's indicator
// snapshot to decide whether a trend is in force (ADX above 25, the same
// threshold the Pair Scanner uses for its rank-score bonus) and, if so,
// whether the signal's direction agrees with it. Signals that don't carry
// this data (the LDP/Accumulator/Terminal auxiliaries) report no trend in
// force, so they are never blocked on this dimension.
func trendAlignment(signal domain.Signal) (trending, aligned bool) {
	adx, hasADX := signal.IndicatorsSnapshot["adx"]
	plusDI, hasPlus := signal.IndicatorsSnapshot["plus_di"]
	minusDI, hasMinus := signal.IndicatorsSnapshot["minus_di"]
	if !hasADX || !hasPlus || !hasMinus {
		return false, true
	}

	adxF, _ := adx.Float64()
	if adxF <= 25 {
		return false, true
	}

	plusF, _ := plusDI.Float64()
	minusF, _ := minusDI.Float64()

	switch {
	case plusF > minusF:
		return true, signal.Direction == domain.DirectionCall
	case minusF > plusF:
		return true, signal.Direction == domain.DirectionPut
	default:
		return true, true
	}
}

// sessionTimeScore favors the overlapping London/New York liquidity window
// (roughly 12:00-17:00 UTC) and scores thin overnight hours lowest.
func sessionTimeScore(now time.Time) float64 {
	hour := now.UTC().Hour()
	switch {
	case hour >= 12 && hour < 17:
		return 100
	case hour >= 7 && hour < 12, hour >= 17 && hour < 21:
		return 75
	default:
		return 40
	}
}

func (f *Filter) record(mode domain.RiskMode, result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.stats[mode]
	if !ok {
		st = &modeStats{blockByReason: make(map[string]int)}
		f.stats[mode] = st
	}

	st.evaluated++
	st.scoreTotal += result.Score
	if result.Allowed {
		st.allowed++
	}
	for _, reason := range result.BlockReasons {
		st.blockByReason[reason]++
	}
}

// Stats is a snapshot of one mode's rolling statistics.
type Stats struct {
	Evaluated     int            `json:"evaluated"`
	AllowRate     float64        `json:"allowRate"`
	AverageScore  float64        `json:"averageScore"`
	BlockBreakdown map[string]int `json:"blockBreakdown"`
}

// Stats returns a copy of mode's rolling statistics.
func (f *Filter) Stats(mode domain.RiskMode) Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.stats[mode]
	if !ok || st.evaluated == 0 {
		return Stats{BlockBreakdown: map[string]int{}}
	}

	breakdown := make(map[string]int, len(st.blockByReason))
	for k, v := range st.blockByReason {
		breakdown[k] = v
	}

	return Stats{
		Evaluated:      st.evaluated,
		AllowRate:      float64(st.allowed) / float64(st.evaluated),
		AverageScore:   st.scoreTotal / float64(st.evaluated),
		BlockBreakdown: breakdown,
	}
}
