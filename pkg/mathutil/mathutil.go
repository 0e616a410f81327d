// Package mathutil provides decimal-precision numeric helpers shared by the
// indicator library and strategy engine.
package mathutil

import "github.com/shopspring/decimal"

// Sqrt approximates the square root of d via Newton's method. Negative or
// zero inputs return zero rather than propagating an invalid value.
func Sqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}

	x := d
	two := decimal.NewFromInt(2)
	for i := 0; i < 24; i++ {
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}

// Mean returns the arithmetic mean of values, or zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// Variance returns the population variance of values around their mean.
func Variance(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	mean := Mean(values)
	sum := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []decimal.Decimal) decimal.Decimal {
	return Sqrt(Variance(values))
}

// Clamp restricts d to the closed interval [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// SafeDiv divides a by b, returning fallback when b is zero rather than
// propagating a division error.
func SafeDiv(a, b, fallback decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return fallback
	}
	return a.Div(b)
}

// EMA is an incrementally-updated exponential moving average.
type EMA struct {
	period     int
	multiplier decimal.Decimal
	current    decimal.Decimal
	count      int
}

// NewEMA constructs an EMA with smoothing constant k = 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1))),
	}
}

// Add feeds value into the average and returns the updated current value.
func (e *EMA) Add(value decimal.Decimal) decimal.Decimal {
	e.count++
	if e.count == 1 {
		e.current = value
		return e.current
	}
	e.current = value.Mul(e.multiplier).Add(e.current.Mul(decimal.NewFromInt(1).Sub(e.multiplier)))
	return e.current
}

// Current returns the most recently computed value.
func (e *EMA) Current() decimal.Decimal { return e.current }

// Ready reports whether the average has seen at least `period` values.
func (e *EMA) Ready() bool { return e.count >= e.period }

// Reset clears accumulated state, forcing the next Add to reseed.
func (e *EMA) Reset() {
	e.current = decimal.Zero
	e.count = 0
}

// SMA is an incrementally-updated simple moving average over a fixed window.
type SMA struct {
	period int
	values []decimal.Decimal
	sum    decimal.Decimal
}

// NewSMA constructs an SMA over the given window size.
func NewSMA(period int) *SMA {
	return &SMA{period: period, values: make([]decimal.Decimal, 0, period)}
}

// Add feeds value into the window and returns the updated average.
func (s *SMA) Add(value decimal.Decimal) decimal.Decimal {
	s.values = append(s.values, value)
	s.sum = s.sum.Add(value)
	if len(s.values) > s.period {
		s.sum = s.sum.Sub(s.values[0])
		s.values = s.values[1:]
	}
	return s.Current()
}

// Current returns the average of the current window.
func (s *SMA) Current() decimal.Decimal {
	if len(s.values) == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(len(s.values))))
}

// Values returns a copy of the values currently in the window.
func (s *SMA) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.values))
	copy(out, s.values)
	return out
}

// Ready reports whether the window has filled to its configured period.
func (s *SMA) Ready() bool { return len(s.values) >= s.period }

// Reset empties the window.
func (s *SMA) Reset() {
	s.values = s.values[:0]
	s.sum = decimal.Zero
}

// Wilder is an incrementally-updated Wilder-smoothed average, used for RSI
// and ADX gain/loss and directional-movement accumulators.
type Wilder struct {
	period  int
	current decimal.Decimal
	count   int
}

// NewWilder constructs a Wilder smoother over the given period.
func NewWilder(period int) *Wilder {
	return &Wilder{period: period}
}

// Add feeds value into the smoother and returns the updated current value.
// The first `period` values are averaged directly; thereafter Wilder's
// recursive formula `((prev*(period-1))+value)/period` applies.
func (w *Wilder) Add(value decimal.Decimal) decimal.Decimal {
	w.count++
	if w.count <= w.period {
		w.current = w.current.Add(value)
		if w.count == w.period {
			w.current = w.current.Div(decimal.NewFromInt(int64(w.period)))
		}
		return w.current
	}
	periodDec := decimal.NewFromInt(int64(w.period))
	w.current = w.current.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(value).Div(periodDec)
	return w.current
}

// Ready reports whether the smoother has accumulated a full period.
func (w *Wilder) Ready() bool { return w.count >= w.period }

// Current returns the most recently computed value.
func (w *Wilder) Current() decimal.Decimal { return w.current }

// Reset clears accumulated state.
func (w *Wilder) Reset() {
	w.current = decimal.Zero
	w.count = 0
}
