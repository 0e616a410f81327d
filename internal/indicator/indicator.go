// Package indicator implements the incremental technical-indicator library:
// RSI, EMA, MACD, Stochastic, ATR, ADX, Hull MA, Bollinger, Z-score, ROC,
// tick imbalance, and velocity. Indicators update incrementally from their
// own cached state on each Add; Stochastic, Hull MA, and Bollinger
// recompute over their window on every Add rather than in O(1). No
// indicator detects a skipped or reset tick stream, and none falls back to
// a full recomputation.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/dzakiart/derivengine/pkg/mathutil"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// RSI is a Wilder-smoothed relative strength index. Its neutral value (no
// data yet) is 50, per the documented guard.
type RSI struct {
	period    int
	avgGain   *mathutil.Wilder
	avgLoss   *mathutil.Wilder
	prevPrice decimal.Decimal
	hasPrev   bool
}

// NewRSI constructs an RSI over the given period (spec default 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period, avgGain: mathutil.NewWilder(period), avgLoss: mathutil.NewWilder(period)}
}

// Add feeds price into the RSI and returns the updated value, or the
// neutral value 50 if not enough data has accumulated yet.
func (r *RSI) Add(price decimal.Decimal) decimal.Decimal {
	if !r.hasPrev {
		r.prevPrice = price
		r.hasPrev = true
		return decimal.NewFromInt(50)
	}

	change := price.Sub(r.prevPrice)
	r.prevPrice = price

	gain, loss := zero, zero
	if change.IsPositive() {
		gain = change
	} else if change.IsNegative() {
		loss = change.Abs()
	}

	r.avgGain.Add(gain)
	r.avgLoss.Add(loss)

	if !r.avgGain.Ready() {
		return decimal.NewFromInt(50)
	}

	if r.avgLoss.Current().IsZero() {
		return hundred
	}

	rs := r.avgGain.Current().Div(r.avgLoss.Current())
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// Reset clears accumulated state, forcing a full recomputation on the next
// sequence of Adds.
func (r *RSI) Reset() {
	r.avgGain.Reset()
	r.avgLoss.Reset()
	r.hasPrev = false
}

// MACD is the 12/26/9 moving-average-convergence-divergence oscillator.
type MACD struct {
	fast, slow *mathutil.EMA
	signal     *mathutil.EMA
	Line       decimal.Decimal
	Signal     decimal.Decimal
	Histogram  decimal.Decimal
}

// NewMACD constructs a MACD with the given fast/slow/signal periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   mathutil.NewEMA(fastPeriod),
		slow:   mathutil.NewEMA(slowPeriod),
		signal: mathutil.NewEMA(signalPeriod),
	}
}

// Add feeds price into the MACD and returns the updated line/signal/histogram.
func (m *MACD) Add(price decimal.Decimal) (line, signal, histogram decimal.Decimal) {
	fast := m.fast.Add(price)
	slow := m.slow.Add(price)
	m.Line = fast.Sub(slow)
	m.Signal = m.signal.Add(m.Line)
	m.Histogram = m.Line.Sub(m.Signal)
	return m.Line, m.Signal, m.Histogram
}

// Ready reports whether the slow EMA has accumulated enough data.
func (m *MACD) Ready() bool { return m.slow.Ready() }

// Stochastic is the 14,3 %K/%D oscillator over a rolling high/low window.
type Stochastic struct {
	period, smoothing int
	highs, lows       []decimal.Decimal
	kValues           []decimal.Decimal
}

// NewStochastic constructs a Stochastic oscillator (spec default 14,3).
func NewStochastic(period, smoothing int) *Stochastic {
	return &Stochastic{period: period, smoothing: smoothing}
}

// Add feeds a price (used as both high and low proxy for tick data, since
// ticks carry no OHLC) and returns %K and %D.
func (s *Stochastic) Add(price decimal.Decimal) (k, d decimal.Decimal) {
	s.highs = append(s.highs, price)
	s.lows = append(s.lows, price)
	if len(s.highs) > s.period {
		s.highs = s.highs[1:]
		s.lows = s.lows[1:]
	}

	highest, lowest := s.highs[0], s.lows[0]
	for i := 1; i < len(s.highs); i++ {
		if s.highs[i].GreaterThan(highest) {
			highest = s.highs[i]
		}
		if s.lows[i].LessThan(lowest) {
			lowest = s.lows[i]
		}
	}

	rangeVal := highest.Sub(lowest)
	k = mathutil.SafeDiv(price.Sub(lowest).Mul(hundred), rangeVal, decimal.NewFromInt(50))

	s.kValues = append(s.kValues, k)
	if len(s.kValues) > s.smoothing {
		s.kValues = s.kValues[1:]
	}
	d = mathutil.Mean(s.kValues)
	return k, d
}

// ATR is a Wilder-smoothed average true range over absolute tick deltas
// (ticks carry no high/low, so true range degenerates to |delta|).
type ATR struct {
	wilder    *mathutil.Wilder
	prevPrice decimal.Decimal
	hasPrev   bool
}

// NewATR constructs an ATR over the given period (spec default 14).
func NewATR(period int) *ATR {
	return &ATR{wilder: mathutil.NewWilder(period)}
}

// Add feeds price into the ATR and returns the updated value.
func (a *ATR) Add(price decimal.Decimal) decimal.Decimal {
	if !a.hasPrev {
		a.prevPrice = price
		a.hasPrev = true
		return zero
	}
	tr := price.Sub(a.prevPrice).Abs()
	a.prevPrice = price
	return a.wilder.Add(tr)
}

// Ready reports whether the ATR has accumulated a full period.
func (a *ATR) Ready() bool { return a.wilder.Ready() }

// ADX is a Wilder-smoothed average directional index with +DI/-DI.
type ADX struct {
	period                   int
	prevPrice                decimal.Decimal
	hasPrev                  bool
	plusDM, minusDM, trSmooth *mathutil.Wilder
	dxSmooth                  *mathutil.Wilder
	PlusDI, MinusDI, Value    decimal.Decimal
}

// NewADX constructs an ADX over the given period (spec default 14).
func NewADX(period int) *ADX {
	return &ADX{
		period:    period,
		plusDM:    mathutil.NewWilder(period),
		minusDM:   mathutil.NewWilder(period),
		trSmooth:  mathutil.NewWilder(period),
		dxSmooth:  mathutil.NewWilder(period),
	}
}

// Add feeds price into the ADX and returns the updated value with +DI/-DI.
// Ticks carry no high/low, so directional movement degenerates to the sign
// of consecutive price deltas.
func (a *ADX) Add(price decimal.Decimal) (value, plusDI, minusDI decimal.Decimal) {
	if !a.hasPrev {
		a.prevPrice = price
		a.hasPrev = true
		return zero, zero, zero
	}

	delta := price.Sub(a.prevPrice)
	a.prevPrice = price

	plusDM, minusDM := zero, zero
	if delta.IsPositive() {
		plusDM = delta
	} else if delta.IsNegative() {
		minusDM = delta.Abs()
	}
	tr := delta.Abs()

	a.plusDM.Add(plusDM)
	a.minusDM.Add(minusDM)
	a.trSmooth.Add(tr)

	if !a.trSmooth.Ready() || a.trSmooth.Current().IsZero() {
		return a.Value, a.PlusDI, a.MinusDI
	}

	a.PlusDI = a.plusDM.Current().Div(a.trSmooth.Current()).Mul(hundred)
	a.MinusDI = a.minusDM.Current().Div(a.trSmooth.Current()).Mul(hundred)

	diSum := a.PlusDI.Add(a.MinusDI)
	dx := mathutil.SafeDiv(a.PlusDI.Sub(a.MinusDI).Abs().Mul(hundred), diSum, zero)

	a.Value = a.dxSmooth.Add(dx)
	return a.Value, a.PlusDI, a.MinusDI
}

// Ready reports whether the ADX has accumulated enough data to be
// meaningful (two full Wilder periods: one for DM/TR, one for DX).
func (a *ADX) Ready() bool { return a.dxSmooth.Ready() }

// HMA is a Hull moving average, computed from a rolling buffer of prices.
type HMA struct {
	period int
	prices []decimal.Decimal
	prev   decimal.Decimal
	hasPrev bool
	Slope  decimal.Decimal
}

// NewHMA constructs a Hull MA over the given period (spec default 16).
func NewHMA(period int) *HMA {
	return &HMA{period: period}
}

// Add feeds price into the HMA's working set and returns the current value
// and slope direction.
func (h *HMA) Add(price decimal.Decimal) (value decimal.Decimal, slope decimal.Decimal) {
	h.prices = append(h.prices, price)
	if len(h.prices) > h.period {
		h.prices = h.prices[1:]
	}
	if len(h.prices) < h.period {
		return zero, zero
	}

	half := h.period / 2
	sqrtN := int(mathutil.Sqrt(decimal.NewFromInt(int64(h.period))).IntPart())
	if sqrtN < 1 {
		sqrtN = 1
	}

	wmaHalf := weightedMA(h.prices[len(h.prices)-half:])
	wmaFull := weightedMA(h.prices)
	raw := wmaHalf.Mul(decimal.NewFromInt(2)).Sub(wmaFull)

	start := len(h.prices) - sqrtN
	if start < 0 {
		start = 0
	}
	value = weightedMA(append(append([]decimal.Decimal{}, h.prices[start:len(h.prices)-1]...), raw))

	if h.hasPrev {
		h.Slope = value.Sub(h.prev)
	}
	h.prev = value
	h.hasPrev = true

	return value, h.Slope
}

// Ready reports whether the HMA has a full working window.
func (h *HMA) Ready() bool { return len(h.prices) >= h.period }

func weightedMA(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return zero
	}
	sum := zero
	weightSum := 0
	for i, v := range values {
		weight := i + 1
		sum = sum.Add(v.Mul(decimal.NewFromInt(int64(weight))))
		weightSum += weight
	}
	return sum.Div(decimal.NewFromInt(int64(weightSum)))
}

// Bollinger tracks a 20-tick simple-moving-average band with width
// percentile over a rolling history of widths.
type Bollinger struct {
	sma          *mathutil.SMA
	period       int
	stdDevMult   decimal.Decimal
	widthHistory []decimal.Decimal
}

// NewBollinger constructs a Bollinger band over period with stdDevMult
// (spec defaults: period 20, mult 2.0).
func NewBollinger(period int, stdDevMult decimal.Decimal) *Bollinger {
	return &Bollinger{sma: mathutil.NewSMA(period), period: period, stdDevMult: stdDevMult}
}

// BollingerResult holds the bands, band position, and width percentile
// produced by one Add.
type BollingerResult struct {
	Upper, Middle, Lower decimal.Decimal
	Position             decimal.Decimal // 0=lower band, 1=upper band
	WidthPercentile      decimal.Decimal
}

// Add feeds price into the Bollinger band and returns the updated result.
func (b *Bollinger) Add(price decimal.Decimal) BollingerResult {
	sma := b.sma.Add(price)
	if !b.sma.Ready() {
		return BollingerResult{Middle: sma}
	}

	stdDev := mathutil.StdDev(b.sma.Values())
	upper := sma.Add(stdDev.Mul(b.stdDevMult))
	lower := sma.Sub(stdDev.Mul(b.stdDevMult))
	width := upper.Sub(lower)

	b.widthHistory = append(b.widthHistory, width)
	if len(b.widthHistory) > 100 {
		b.widthHistory = b.widthHistory[1:]
	}

	position := mathutil.SafeDiv(price.Sub(lower), upper.Sub(lower), decimal.NewFromFloat(0.5))
	return BollingerResult{
		Upper: upper, Middle: sma, Lower: lower,
		Position:        position,
		WidthPercentile: percentileRank(b.widthHistory, width),
	}
}

// Ready reports whether the underlying SMA window has filled.
func (b *Bollinger) Ready() bool { return b.sma.Ready() }

func percentileRank(history []decimal.Decimal, value decimal.Decimal) decimal.Decimal {
	if len(history) == 0 {
		return decimal.NewFromFloat(0.5)
	}
	below := 0
	for _, v := range history {
		if v.LessThanOrEqual(value) {
			below++
		}
	}
	return decimal.NewFromInt(int64(below)).Div(decimal.NewFromInt(int64(len(history))))
}

// ZScore tracks a rolling mean/variance for a standard-score oscillator.
type ZScore struct {
	sma *mathutil.SMA
}

// NewZScore constructs a ZScore over the given rolling window (spec
// default 30).
func NewZScore(period int) *ZScore {
	return &ZScore{sma: mathutil.NewSMA(period)}
}

// Add feeds price into the rolling window and returns the Z-score.
func (z *ZScore) Add(price decimal.Decimal) decimal.Decimal {
	z.sma.Add(price)
	if !z.sma.Ready() {
		return zero
	}
	mean := z.sma.Current()
	stdDev := mathutil.StdDev(z.sma.Values())
	return mathutil.SafeDiv(price.Sub(mean), stdDev, zero)
}

// Ready reports whether the rolling window has filled.
func (z *ZScore) Ready() bool { return z.sma.Ready() }

// TickImbalance tracks the up-tick ratio over a rolling window (spec
// default 20).
type TickImbalance struct {
	window    int
	upTicks   []bool
	prevPrice decimal.Decimal
	hasPrev   bool
}

// NewTickImbalance constructs a tick-imbalance tracker over window ticks.
func NewTickImbalance(window int) *TickImbalance {
	return &TickImbalance{window: window}
}

// Add feeds price into the tracker and returns the up-tick ratio in [0,1].
func (ti *TickImbalance) Add(price decimal.Decimal) decimal.Decimal {
	if !ti.hasPrev {
		ti.prevPrice = price
		ti.hasPrev = true
		return decimal.NewFromFloat(0.5)
	}
	ti.upTicks = append(ti.upTicks, price.GreaterThan(ti.prevPrice))
	ti.prevPrice = price
	if len(ti.upTicks) > ti.window {
		ti.upTicks = ti.upTicks[1:]
	}

	if len(ti.upTicks) == 0 {
		return decimal.NewFromFloat(0.5)
	}
	ups := 0
	for _, up := range ti.upTicks {
		if up {
			ups++
		}
	}
	return decimal.NewFromInt(int64(ups)).Div(decimal.NewFromInt(int64(len(ti.upTicks))))
}

// ROC computes rate-of-change and multi-period velocity over a rolling
// price buffer.
type ROC struct {
	period int
	prices []decimal.Decimal
}

// NewROC constructs an ROC indicator over the given lookback period.
func NewROC(period int) *ROC {
	return &ROC{period: period}
}

// Add feeds price into the buffer and returns the rate of change versus
// `period` ticks ago, or zero if not enough history has accumulated.
func (r *ROC) Add(price decimal.Decimal) decimal.Decimal {
	r.prices = append(r.prices, price)
	if len(r.prices) > r.period+1 {
		r.prices = r.prices[1:]
	}
	if len(r.prices) <= r.period {
		return zero
	}
	past := r.prices[0]
	return mathutil.SafeDiv(price.Sub(past).Mul(hundred), past, zero)
}

// Velocity returns the average per-tick change over the last n prices in
// the ROC's buffer.
func (r *ROC) Velocity(n int) decimal.Decimal {
	if len(r.prices) < 2 {
		return zero
	}
	if n > len(r.prices)-1 {
		n = len(r.prices) - 1
	}
	if n < 1 {
		return zero
	}
	start := len(r.prices) - 1 - n
	return r.prices[len(r.prices)-1].Sub(r.prices[start]).Div(decimal.NewFromInt(int64(n)))
}
