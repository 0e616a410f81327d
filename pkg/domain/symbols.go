package domain

import "github.com/shopspring/decimal"

// Symbols is the static catalog of tradable Deriv instruments.
var Symbols = map[string]SymbolConfig{
	"R_100": {
		Symbol: "R_100", DisplayName: "Volatility 100 Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"R_75": {
		Symbol: "R_75", DisplayName: "Volatility 75 Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"R_50": {
		Symbol: "R_50", DisplayName: "Volatility 50 Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"R_25": {
		Symbol: "R_25", DisplayName: "Volatility 25 Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"R_10": {
		Symbol: "R_10", DisplayName: "Volatility 10 Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"1HZ100V": {
		Symbol: "1HZ100V", DisplayName: "Volatility 100 (1s) Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"1HZ75V": {
		Symbol: "1HZ75V", DisplayName: "Volatility 75 (1s) Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"1HZ50V": {
		Symbol: "1HZ50V", DisplayName: "Volatility 50 (1s) Index",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitTicks, DurationUnitSeconds},
		ShortTermScan: true,
	},
	"frxXAUUSD": {
		Symbol: "frxXAUUSD", DisplayName: "Gold/USD",
		MinStake:      decimal.NewFromFloat(0.50),
		DurationUnits: []DurationUnit{DurationUnitDays},
		ShortTermScan: false,
	},
}

// LookupSymbol returns the catalog entry for symbol, or false if unknown.
func LookupSymbol(symbol string) (SymbolConfig, bool) {
	cfg, ok := Symbols[symbol]
	return cfg, ok
}

// ShortTermSymbols returns every symbol eligible for the Pair Scanner.
func ShortTermSymbols() []string {
	out := make([]string, 0, len(Symbols))
	for sym, cfg := range Symbols {
		if cfg.ShortTermScan {
			out = append(out, sym)
		}
	}
	return out
}
