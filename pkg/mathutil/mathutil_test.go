package mathutil_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dzakiart/derivengine/pkg/mathutil"
)

func TestSqrt(t *testing.T) {
	cases := []struct {
		name  string
		input float64
		want  float64
	}{
		{"perfect square", 144, 12},
		{"zero", 0, 0},
		{"negative clamps to zero", -9, 0},
		{"non-perfect square", 2, 1.41421356},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mathutil.Sqrt(decimal.NewFromFloat(tc.input))
			want := decimal.NewFromFloat(tc.want)
			if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
				t.Errorf("Sqrt(%v) = %s, want ~%s", tc.input, got, want)
			}
		})
	}
}

func TestMeanAndVariance(t *testing.T) {
	values := []decimal.Decimal{
		decimal.NewFromInt(2), decimal.NewFromInt(4), decimal.NewFromInt(6), decimal.NewFromInt(8),
	}

	mean := mathutil.Mean(values)
	if !mean.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Mean = %s, want 5", mean)
	}

	variance := mathutil.Variance(values)
	if !variance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Variance = %s, want 5", variance)
	}

	if mathutil.Mean(nil).Sign() != 0 {
		t.Error("Mean of empty slice should be zero")
	}
}

func TestClamp(t *testing.T) {
	lo, hi := decimal.NewFromInt(0), decimal.NewFromInt(100)

	if got := mathutil.Clamp(decimal.NewFromInt(150), lo, hi); !got.Equal(hi) {
		t.Errorf("Clamp(150) = %s, want 100", got)
	}
	if got := mathutil.Clamp(decimal.NewFromInt(-10), lo, hi); !got.Equal(lo) {
		t.Errorf("Clamp(-10) = %s, want 0", got)
	}
	if got := mathutil.Clamp(decimal.NewFromInt(50), lo, hi); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Clamp(50) = %s, want 50", got)
	}
}

func TestSafeDiv(t *testing.T) {
	fallback := decimal.NewFromInt(-1)
	if got := mathutil.SafeDiv(decimal.NewFromInt(10), decimal.Zero, fallback); !got.Equal(fallback) {
		t.Errorf("SafeDiv by zero = %s, want fallback %s", got, fallback)
	}
	if got := mathutil.SafeDiv(decimal.NewFromInt(10), decimal.NewFromInt(2), fallback); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("SafeDiv(10,2) = %s, want 5", got)
	}
}

func TestEMASeedsOnFirstValue(t *testing.T) {
	ema := mathutil.NewEMA(3)

	if got := ema.Add(decimal.NewFromInt(10)); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("first EMA value should seed directly, got %s", got)
	}
	if ema.Ready() {
		t.Error("EMA should not be ready after one value with period 3")
	}

	ema.Add(decimal.NewFromInt(20))
	ema.Add(decimal.NewFromInt(30))
	if !ema.Ready() {
		t.Error("EMA should be ready after 3 values with period 3")
	}
}

func TestSMAWindowSlides(t *testing.T) {
	sma := mathutil.NewSMA(3)

	sma.Add(decimal.NewFromInt(1))
	sma.Add(decimal.NewFromInt(2))
	sma.Add(decimal.NewFromInt(3))
	if !sma.Ready() {
		t.Fatal("SMA should be ready after 3 values with period 3")
	}
	if got := sma.Current(); !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("SMA = %s, want 2", got)
	}

	sma.Add(decimal.NewFromInt(6))
	want := decimal.NewFromInt(11).Div(decimal.NewFromInt(3))
	if got := sma.Current(); !got.Equal(want) {
		t.Errorf("SMA after slide = %s, want %s", got, want)
	}
	if len(sma.Values()) != 3 {
		t.Errorf("SMA window should stay bounded at 3, got %d", len(sma.Values()))
	}
}

func TestWilderReachesReadyAtPeriod(t *testing.T) {
	w := mathutil.NewWilder(3)

	w.Add(decimal.NewFromInt(3))
	w.Add(decimal.NewFromInt(6))
	if w.Ready() {
		t.Error("Wilder should not be ready before period values accumulate")
	}
	w.Add(decimal.NewFromInt(9))
	if !w.Ready() {
		t.Fatal("Wilder should be ready after period values accumulate")
	}
	if got := w.Current(); !got.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Wilder seed average = %s, want 6", got)
	}
}
