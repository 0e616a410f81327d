package strategy

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/indicator"
	"github.com/dzakiart/derivengine/pkg/domain"
	"github.com/dzakiart/derivengine/pkg/mathutil"
)

const tickBufferCap = 500
const pruneEveryTicks = 10000

// DerivStrategy is the primary per-symbol strategy: incremental indicator
// feature extraction, regime-adaptive multi-horizon prediction, and
// weighted BUY/SELL signal synthesis with hard blocks and soft confidence
// adjustments.
type DerivStrategy struct {
	logger *zap.Logger

	mu    sync.Mutex
	ticks []decimal.Decimal
	tickN int

	rsi        *indicator.RSI
	emaFast    *mathutil.EMA
	emaSlow    *mathutil.EMA
	macd       *indicator.MACD
	stochastic *indicator.Stochastic
	atr        *indicator.ATR
	adx        *indicator.ADX
	hma        *indicator.HMA
	bollinger  *indicator.Bollinger
	zscore     *indicator.ZScore
	imbalance  *indicator.TickImbalance
	roc        *indicator.ROC

	regimeDetector *RegimeDetector

	lastCallAt time.Time
	lastPutAt  time.Time

	emaFastHistory []decimal.Decimal

	lastRSI       decimal.Decimal
	lastStochK    decimal.Decimal
	lastStochD    decimal.Decimal
	lastATR       decimal.Decimal
	lastHMAValue  decimal.Decimal
	lastHMASlope  decimal.Decimal
	lastBollinger indicator.BollingerResult
	lastZScore    decimal.Decimal
	lastImbalance decimal.Decimal
}

// NewDerivStrategy constructs a fresh DerivStrategy instance.
func NewDerivStrategy(logger *zap.Logger) *DerivStrategy {
	s := &DerivStrategy{logger: logger.Named("strategy")}
	s.initIndicators()
	return s
}

func (s *DerivStrategy) initIndicators() {
	s.rsi = indicator.NewRSI(RSIPeriod)
	s.emaFast = mathutil.NewEMA(EMAFastPeriod)
	s.emaSlow = mathutil.NewEMA(EMASlowPeriod)
	s.macd = indicator.NewMACD(MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
	s.stochastic = indicator.NewStochastic(StochasticPeriod, StochasticSmooth)
	s.atr = indicator.NewATR(ATRPeriod)
	s.adx = indicator.NewADX(ADXPeriod)
	s.hma = indicator.NewHMA(HMAPeriod)
	s.bollinger = indicator.NewBollinger(BollingerPeriod, decimal.NewFromFloat(2.0))
	s.zscore = indicator.NewZScore(ZScorePeriod)
	s.imbalance = indicator.NewTickImbalance(TickImbalanceWindow)
	s.roc = indicator.NewROC(5)
	s.regimeDetector = NewRegimeDetector()
	s.emaFastHistory = nil
	s.lastRSI = decimal.NewFromInt(50)
	s.lastImbalance = decimal.NewFromFloat(0.5)
}

// Name returns the strategy's registry name.
func (s *DerivStrategy) Name() string { return "deriv" }

// AddTick appends price to the tick buffer (bounded FIFO) and updates every
// incremental indicator once. Analyze only ever reads the cached results of
// this pass, so indicator state is never advanced twice for one tick.
func (s *DerivStrategy) AddTick(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return
	}

	s.ticks = append(s.ticks, p)
	if len(s.ticks) > tickBufferCap {
		s.ticks = s.ticks[len(s.ticks)-tickBufferCap:]
	}
	s.tickN++

	s.lastRSI = s.rsi.Add(p)
	fast := s.emaFast.Add(p)
	s.emaSlow.Add(p)
	s.macd.Add(p)
	s.lastStochK, s.lastStochD = s.stochastic.Add(p)
	s.lastATR = s.atr.Add(p)
	s.adx.Add(p)
	s.lastHMAValue, s.lastHMASlope = s.hma.Add(p)
	s.lastBollinger = s.bollinger.Add(p)
	s.lastZScore = s.zscore.Add(p)
	s.lastImbalance = s.imbalance.Add(p)
	s.roc.Add(p)

	s.emaFastHistory = append(s.emaFastHistory, fast)
	if len(s.emaFastHistory) > 20 {
		s.emaFastHistory = s.emaFastHistory[1:]
	}

	if s.tickN > 0 && s.tickN%pruneEveryTicks == 0 {
		s.pruneLocked()
	}
}

func (s *DerivStrategy) pruneLocked() {
	s.ticks = nil
	s.initIndicators()
}

// ClearHistory resets all indicator and tick-buffer state.
func (s *DerivStrategy) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = nil
	s.tickN = 0
	s.initIndicators()
	s.lastCallAt = time.Time{}
	s.lastPutAt = time.Time{}
}

// Analyze runs the feature-synthesis, regime-classification,
// multi-horizon-prediction, and signal-synthesis pipeline and returns a
// Signal. It returns WAIT whenever a hard block fires or no candidate
// clears the confidence threshold.
func (s *DerivStrategy) Analyze() domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if len(s.ticks) < 30 {
		return s.waitSignal("insufficient history", now)
	}

	price := s.ticks[len(s.ticks)-1]
	rsiVal := s.lastRSI
	macdLine, macdSignal, macdHist := s.macd.Line, s.macd.Signal, s.macd.Histogram
	atrVal := s.lastATR
	adxVal, plusDI, minusDI := s.adx.Value, s.adx.PlusDI, s.adx.MinusDI

	diSpread := plusDI.Sub(minusDI).Abs()
	regimeState := s.regimeDetector.Classify(adxVal, diSpread, s.lastBollinger.WidthPercentile)
	weights := FactorWeightsFor(regimeState.Regime)

	volZone := classifyVolatility(atrVal, price)

	horizonVote, horizonConfidence, horizonsAgree := s.multiHorizonPrediction(weights, rsiVal, s.lastZScore, s.lastHMASlope, s.lastImbalance)

	buyScore, buyReason := s.scoreSide(domain.DirectionCall, price, rsiVal, macdHist, s.lastStochK, plusDI, minusDI, adxVal)
	sellScore, sellReason := s.scoreSide(domain.DirectionPut, price, rsiVal, macdHist, s.lastStochK, plusDI, minusDI, adxVal)

	var candidate domain.Direction
	var candidateScore decimal.Decimal
	var reason string
	switch {
	case buyScore.GreaterThanOrEqual(decimal.NewFromFloat(MinConfidenceThreshold)) && buyScore.GreaterThan(sellScore):
		candidate, candidateScore, reason = domain.DirectionCall, buyScore, buyReason
	case sellScore.GreaterThanOrEqual(decimal.NewFromFloat(MinConfidenceThreshold)) && sellScore.GreaterThan(buyScore):
		candidate, candidateScore, reason = domain.DirectionPut, sellScore, sellReason
	default:
		return s.waitSignal("no side cleared the confidence threshold", now)
	}

	if candidate == domain.DirectionCall && now.Sub(s.lastCallAt) < CooldownSeconds*time.Second {
		return s.waitSignal("same-side cooldown active", now)
	}
	if candidate == domain.DirectionPut && now.Sub(s.lastPutAt) < CooldownSeconds*time.Second {
		return s.waitSignal("same-side cooldown active", now)
	}

	if horizonVote != candidate {
		return s.waitSignal("multi-horizon prediction conflict", now)
	}
	if horizonConfidence.LessThan(decimal.NewFromFloat(HorizonDisagreeMinConf)) {
		return s.waitSignal("multi-horizon confidence too low", now)
	}

	if candidate == domain.DirectionCall && minusDI.Sub(plusDI).GreaterThanOrEqual(decimal.NewFromFloat(ADXConflictMagnitude)) {
		return s.waitSignal("ADX directional conflict", now)
	}
	if candidate == domain.DirectionPut && plusDI.Sub(minusDI).GreaterThanOrEqual(decimal.NewFromFloat(ADXConflictMagnitude)) {
		return s.waitSignal("ADX directional conflict", now)
	}

	confluence := s.confluenceScore(candidate, adxVal, s.lastHMASlope, s.lastImbalance, rsiVal)
	if confluence.LessThan(decimal.NewFromFloat(MinConfluenceScore)) {
		return s.waitSignal("confluence score below minimum", now)
	}

	confidence := candidateScore
	if horizonsAgree == 3 {
		confidence = confidence.Mul(decimal.NewFromFloat(1 + HorizonAllAgreeBoost))
	}

	confidence = confidence.Mul(decimal.NewFromFloat(VolatilityMultipliers[string(volZone)]))
	confidence = confidence.Mul(ADXStrengthMultiplier(toFloat(adxVal)))
	confidence = confidence.Mul(decimal.NewFromFloat(ConfluenceLevelMultiplier(toFloat(confluence))))

	aligned := isAligned(candidate, regimeState.Regime, plusDI, minusDI, s.lastZScore)
	confidence = confidence.Mul(RegimeAlignmentMultiplier(string(regimeState.Regime), aligned))

	confidence = mathutil.Clamp(confidence, decimal.Zero, decimal.NewFromInt(1))

	if candidate == domain.DirectionCall {
		s.lastCallAt = now
	} else {
		s.lastPutAt = now
	}

	tp := atrVal.Mul(decimal.NewFromFloat(ATRTakeProfitMultiplier))
	sl := atrVal.Mul(decimal.NewFromFloat(ATRStopLossMultiplier))

	return domain.Signal{
		Direction:  candidate,
		Confidence: confidence,
		Reason:     reason,
		IndicatorsSnapshot: map[string]decimal.Decimal{
			"rsi": rsiVal, "macd_line": macdLine, "macd_signal": macdSignal, "macd_hist": macdHist,
			"stoch_k": s.lastStochK, "stoch_d": s.lastStochD, "atr": atrVal, "adx": adxVal,
			"plus_di": plusDI, "minus_di": minusDI, "zscore": s.lastZScore, "tick_imbalance": s.lastImbalance,
			"confluence": confluence,
		},
		VolatilityZone: volZone,
		ADXValue:       adxVal,
		TPDistance:     tp,
		SLDistance:     sl,
		GeneratedAt:    now,
	}
}

func (s *DerivStrategy) waitSignal(reason string, now time.Time) domain.Signal {
	return domain.Signal{
		Direction:   domain.DirectionWait,
		Confidence:  decimal.NewFromFloat(HorizonNeutralFloor),
		Reason:      reason,
		GeneratedAt: now,
	}
}

// scoreSide computes the weighted confidence that dir is the correct side,
// per the engine's factor weight table.
func (s *DerivStrategy) scoreSide(dir domain.Direction, price, rsi, macdHist, stochK, plusDI, minusDI, adx decimal.Decimal) (decimal.Decimal, string) {
	bullish := dir == domain.DirectionCall
	score := decimal.Zero
	var reasons []string
	add := func(w float64, why string) {
		score = score.Add(decimal.NewFromFloat(w))
		reasons = append(reasons, why)
	}

	rsiF := toFloat(rsi)
	if bullish && rsiF <= RSIOversold {
		add(WeightRSIExtreme, "rsi oversold")
	} else if !bullish && rsiF >= RSIOverbought {
		add(WeightRSIExtreme, "rsi overbought")
	}

	if bullish && rsiF >= RSIEntryLowerBandMin && rsiF <= RSIEntryLowerBandMax {
		add(WeightRSIEntryBand, "rsi in lower entry band")
	} else if !bullish && rsiF >= RSIEntryUpperBandMin && rsiF <= RSIEntryUpperBandMax {
		add(WeightRSIEntryBand, "rsi in upper entry band")
	}

	emaFastVal, emaSlowVal := s.emaFast.Current(), s.emaSlow.Current()
	if bullish && emaFastVal.GreaterThan(emaSlowVal) {
		add(WeightEMAAlignment, "ema fast above slow")
	} else if !bullish && emaFastVal.LessThan(emaSlowVal) {
		add(WeightEMAAlignment, "ema fast below slow")
	}

	if bullish && price.GreaterThan(emaFastVal) {
		add(WeightPriceVsEMA, "price above ema fast")
	} else if !bullish && price.LessThan(emaFastVal) {
		add(WeightPriceVsEMA, "price below ema fast")
	}

	if bullish && macdHist.IsPositive() {
		add(WeightMACDHistSign, "macd histogram positive")
	} else if !bullish && macdHist.IsNegative() {
		add(WeightMACDHistSign, "macd histogram negative")
	}

	stochF := toFloat(stochK)
	if bullish && stochF <= 20 {
		add(WeightStochExtreme, "stochastic oversold")
	} else if !bullish && stochF >= 80 {
		add(WeightStochExtreme, "stochastic overbought")
	}

	if bullish && s.lastImbalance.GreaterThan(decimal.NewFromFloat(0.5)) {
		add(WeightTickTrend, "tick imbalance favors up")
	} else if !bullish && s.lastImbalance.LessThan(decimal.NewFromFloat(0.5)) {
		add(WeightTickTrend, "tick imbalance favors down")
	}

	adxF := toFloat(adx)
	strength := clamp01(adxF / 50)
	if bullish && plusDI.GreaterThan(minusDI) {
		add(WeightADXAligned*strength, "directional index favors calls")
	} else if !bullish && minusDI.GreaterThan(plusDI) {
		add(WeightADXAligned*strength, "directional index favors puts")
	}

	momentumWeight := WeightRSIMomentumMin + (WeightRSIMomentumMax-WeightRSIMomentumMin)*strength
	deviation := math.Abs(rsiF-50) / 50
	if (bullish && rsiF < 50) || (!bullish && rsiF > 50) {
		add(momentumWeight*deviation, "rsi momentum aligned")
	}

	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "weighted factor confluence"
	}
	return score, reason
}

// confluenceScore rates how many of six independent checks agree with
// candidate, on a 0-100 scale.
func (s *DerivStrategy) confluenceScore(candidate domain.Direction, adx, hmaSlope, imbalance, rsi decimal.Decimal) decimal.Decimal {
	bullish := candidate == domain.DirectionCall
	checks := 0.0

	adxF := toFloat(adx)
	switch {
	case adxF >= RegimeTrendingADXMin:
		checks++
	case adxF >= RegimeRangingADXMax:
		checks += 0.5
	}

	emaFastVal, emaSlowVal := s.emaFast.Current(), s.emaSlow.Current()
	if (bullish && emaFastVal.GreaterThan(emaSlowVal)) || (!bullish && emaFastVal.LessThan(emaSlowVal)) {
		checks++
	}
	if (bullish && imbalance.GreaterThan(decimal.NewFromFloat(0.5))) || (!bullish && imbalance.LessThan(decimal.NewFromFloat(0.5))) {
		checks++
	}
	if (bullish && hmaSlope.IsPositive()) || (!bullish && hmaSlope.IsNegative()) {
		checks++
	}
	rsiF := toFloat(rsi)
	if (bullish && rsiF < 50) || (!bullish && rsiF > 50) {
		checks++
	}
	if (bullish && s.macd.Histogram.IsPositive()) || (!bullish && s.macd.Histogram.IsNegative()) {
		checks++
	}

	return decimal.NewFromFloat(checks / 6 * 100)
}

// multiHorizonPrediction scores three lookahead horizons (1, 3, 5 ticks)
// using the regime's active factor weights, and returns the majority vote,
// its confidence, and how many horizons agreed.
func (s *DerivStrategy) multiHorizonPrediction(w FactorWeights, rsi, zscore, hmaSlope, imbalance decimal.Decimal) (domain.Direction, decimal.Decimal, int) {
	horizons := []int{1, 3, 5}
	votes := make([]domain.Direction, 0, len(horizons))
	scores := make([]float64, 0, len(horizons))

	for _, h := range horizons {
		score := s.horizonScore(w, h, rsi, zscore, hmaSlope, imbalance)
		scores = append(scores, score)
		switch {
		case score > HorizonScoreThreshold:
			votes = append(votes, domain.DirectionCall)
		case score < -HorizonScoreThreshold:
			votes = append(votes, domain.DirectionPut)
		default:
			votes = append(votes, domain.DirectionWait)
		}
	}

	callVotes, putVotes := 0, 0
	for _, v := range votes {
		switch v {
		case domain.DirectionCall:
			callVotes++
		case domain.DirectionPut:
			putVotes++
		}
	}

	var vote domain.Direction
	var agree int
	switch {
	case callVotes == 3:
		vote, agree = domain.DirectionCall, 3
	case putVotes == 3:
		vote, agree = domain.DirectionPut, 3
	case callVotes == 2:
		vote, agree = domain.DirectionCall, 2
	case putVotes == 2:
		vote, agree = domain.DirectionPut, 2
	default:
		vote, agree = domain.DirectionWait, 1
	}

	if agree < 2 {
		return vote, decimal.NewFromFloat(HorizonNeutralFloor), agree
	}

	avgAbs := 0.0
	for _, sc := range scores {
		avgAbs += math.Abs(sc)
	}
	avgAbs /= float64(len(scores))

	return vote, decimal.NewFromFloat(clamp01(0.4 + avgAbs)), agree
}

func (s *DerivStrategy) horizonScore(w FactorWeights, horizon int, rsi, zscore, hmaSlope, imbalance decimal.Decimal) float64 {
	velocity := toFloat(s.roc.Velocity(horizon))
	momentumSignal := clampSignal(velocity * 50)
	emaSlopeSignal := clampSignal(toFloat(s.emaFastSlope()) * 1000)
	sequenceSignal := clampSignal((toFloat(imbalance) - 0.5) * 4)
	zscoreSignal := clampSignal(toFloat(zscore) / 3)
	hmaSignal := clampSignal(toFloat(hmaSlope) * 1000)
	imbalanceSignal := clampSignal((toFloat(imbalance) - 0.5) * 2)
	baselineSignal := clampSignal((50 - toFloat(rsi)) / 50)

	return w.Momentum*momentumSignal + w.EMASlope*emaSlopeSignal + w.Sequence*sequenceSignal +
		w.ZScore*zscoreSignal + w.HMA*hmaSignal + w.TickImbalance*imbalanceSignal + w.Baseline*baselineSignal
}

func (s *DerivStrategy) emaFastSlope() decimal.Decimal {
	if len(s.emaFastHistory) < 2 {
		return decimal.Zero
	}
	return s.emaFastHistory[len(s.emaFastHistory)-1].Sub(s.emaFastHistory[len(s.emaFastHistory)-2])
}

func clampSignal(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func classifyVolatility(atr, price decimal.Decimal) domain.VolatilityZone {
	if price.IsZero() {
		return domain.VolatilityNormal
	}
	ratio := atr.Div(price)
	switch {
	case ratio.GreaterThan(decimal.NewFromFloat(0.01)):
		return domain.VolatilityExtremeHigh
	case ratio.GreaterThan(decimal.NewFromFloat(0.005)):
		return domain.VolatilityHigh
	case ratio.LessThan(decimal.NewFromFloat(0.0005)):
		return domain.VolatilityExtremeLow
	case ratio.LessThan(decimal.NewFromFloat(0.001)):
		return domain.VolatilityLow
	default:
		return domain.VolatilityNormal
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func isAligned(candidate domain.Direction, regime domain.Regime, plusDI, minusDI, zscore decimal.Decimal) bool {
	trendUp := plusDI.GreaterThan(minusDI)
	switch regime {
	case domain.RegimeTrending:
		if candidate == domain.DirectionCall {
			return trendUp
		}
		return !trendUp
	case domain.RegimeRanging:
		if candidate == domain.DirectionCall {
			return zscore.IsNegative()
		}
		return zscore.IsPositive()
	default:
		return true
	}
}
