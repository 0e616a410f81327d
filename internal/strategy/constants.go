package strategy

import "github.com/shopspring/decimal"

// The thresholds below are the spec's authoritative numeric defaults.
// They are kept as named constants rather than scattered literals so a
// future tuning pass has one place to look, per the engine's design notes.
const (
	FeatureThrottleTicks = 10

	RSIPeriod         = 14
	EMAFastPeriod     = 9
	EMASlowPeriod     = 21
	MACDFastPeriod    = 12
	MACDSlowPeriod    = 26
	MACDSignalPeriod  = 9
	StochasticPeriod  = 14
	StochasticSmooth  = 3
	ATRPeriod         = 14
	ADXPeriod         = 14
	HMAPeriod         = 16
	BollingerPeriod   = 20
	ZScorePeriod      = 30
	TickImbalanceWindow = 20

	RegimeTrendingADXMin      = 22.0
	RegimeTrendingDISpreadMin = 10.0
	RegimeRangingADXMax       = 12.0
	RegimeRangingBollingerPct = 0.25
	RegimeRangingADXSoftMax   = 18.0

	HorizonScoreThreshold   = 0.15
	HorizonAllAgreeBoost    = 0.15
	HorizonTwoAgreeFloor    = 0.0
	HorizonNeutralFloor     = 0.25
	HorizonDisagreeMinConf  = 0.55

	MinConfidenceThreshold = 0.50
	MinConfluenceScore     = 40.0

	CooldownSeconds          = 12
	ADXConflictMagnitude     = 15.0

	RSIOversold   = 30.0
	RSIOverbought = 70.0
	RSIEntryLowerBandMin  = 22.0
	RSIEntryLowerBandMax  = 30.0
	RSIEntryUpperBandMin  = 70.0
	RSIEntryUpperBandMax  = 78.0

	WeightRSIExtreme     = 0.35
	WeightRSIEntryBand   = 0.05
	WeightEMAAlignment   = 0.20
	WeightPriceVsEMA     = 0.05
	WeightMACDHistSign   = 0.15
	WeightStochExtreme   = 0.10
	WeightTickTrend      = 0.05
	WeightADXAligned     = 0.15
	WeightRSIMomentumMin = 0.05
	WeightRSIMomentumMax = 0.10

	ATRTakeProfitMultiplier = 2.5
	ATRStopLossMultiplier   = 1.5
)

// VolatilityMultipliers maps a volatility zone to its confidence multiplier.
var VolatilityMultipliers = map[string]float64{
	"EXTREME_HIGH": 0.7,
	"HIGH":         0.85,
	"NORMAL":       1.0,
	"LOW":          0.7,
	"EXTREME_LOW":  0.5,
}

// ConfluenceLevelMultiplier returns the soft-adjustment multiplier for a
// confluence score on a 0-100 scale.
func ConfluenceLevelMultiplier(score float64) float64 {
	switch {
	case score >= 70:
		return 1.15
	case score >= 50:
		return 1.0
	default:
		return 0.85
	}
}

// ADXStrengthMultiplier scales confidence by ADX strength in [0.75, 1.0].
func ADXStrengthMultiplier(adx float64) decimal.Decimal {
	mult := 0.75 + (adx/100.0)*0.25
	if mult > 1.0 {
		mult = 1.0
	}
	if mult < 0.75 {
		mult = 0.75
	}
	return decimal.NewFromFloat(mult)
}

// RegimeAlignmentMultiplier implements the spec's per-regime alignment
// table.
func RegimeAlignmentMultiplier(regime string, aligned bool) decimal.Decimal {
	switch regime {
	case "TRENDING":
		if aligned {
			return decimal.NewFromFloat(1.30)
		}
		return decimal.NewFromFloat(0.85)
	case "RANGING":
		if aligned {
			return decimal.NewFromFloat(1.50)
		}
		return decimal.NewFromFloat(0.90)
	default:
		return decimal.NewFromFloat(1.0)
	}
}
