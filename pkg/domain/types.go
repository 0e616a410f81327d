// Package domain holds the shared value types used across the trading
// engine: ticks, signals, contracts, session state, and the symbol catalog.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the directional bet placed on a contract.
type Direction string

const (
	DirectionCall    Direction = "CALL"
	DirectionPut     Direction = "PUT"
	DirectionWait    Direction = "WAIT"
	DirectionNeutral Direction = "NEUTRAL"
)

// DurationUnit is the unit in which a contract's duration is expressed.
type DurationUnit string

const (
	DurationUnitTicks   DurationUnit = "t"
	DurationUnitSeconds DurationUnit = "s"
	DurationUnitMinutes DurationUnit = "m"
	DurationUnitDays    DurationUnit = "d"
)

// ContractStatus is the lifecycle stage of a Contract.
type ContractStatus string

const (
	ContractProposed ContractStatus = "PROPOSED"
	ContractOpen     ContractStatus = "OPEN"
	ContractSettled  ContractStatus = "SETTLED"
)

// VolatilityZone classifies recent ATR-implied volatility.
type VolatilityZone string

const (
	VolatilityExtremeHigh VolatilityZone = "EXTREME_HIGH"
	VolatilityHigh        VolatilityZone = "HIGH"
	VolatilityNormal      VolatilityZone = "NORMAL"
	VolatilityLow         VolatilityZone = "LOW"
	VolatilityExtremeLow  VolatilityZone = "EXTREME_LOW"
)

// Regime classifies the current market structure.
type Regime string

const (
	RegimeTrending     Regime = "TRENDING"
	RegimeRanging      Regime = "RANGING"
	RegimeTransitional Regime = "TRANSITIONAL"
)

// RiskMode selects the Entry Filter's minimum-allowed-score profile.
type RiskMode string

const (
	RiskModeLowRisk         RiskMode = "LOW_RISK"
	RiskModeHighProbability RiskMode = "HIGH_PROBABILITY"
	RiskModeAggressive      RiskMode = "AGGRESSIVE"
	RiskModeSniper          RiskMode = "SNIPER"
)

// TradeManagerState is the Trade Manager's execution state machine position.
type TradeManagerState string

const (
	StateIdle          TradeManagerState = "IDLE"
	StateRunning       TradeManagerState = "RUNNING"
	StateWaitingResult TradeManagerState = "WAITING_RESULT"
	StateStopped       TradeManagerState = "STOPPED"
)

// Tick is a single price observation for a symbol.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Valid reports whether the tick's price is finite and positive.
func (t Tick) Valid() bool {
	return t.Price.IsPositive()
}

// SymbolConfig describes one entry in the static symbol catalog.
type SymbolConfig struct {
	Symbol          string         `json:"symbol"`
	DisplayName     string         `json:"displayName"`
	MinStake        decimal.Decimal `json:"minStake"`
	DurationUnits   []DurationUnit `json:"durationUnits"`
	ShortTermScan   bool           `json:"shortTermScan"`
}

// SupportsDuration reports whether unit is valid for this symbol.
func (s SymbolConfig) SupportsDuration(unit DurationUnit) bool {
	for _, u := range s.DurationUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// Signal is an immutable value produced by a Strategy at a point in time.
type Signal struct {
	Direction          Direction
	Confidence         decimal.Decimal
	Reason             string
	IndicatorsSnapshot map[string]decimal.Decimal
	VolatilityZone     VolatilityZone
	ADXValue           decimal.Decimal
	TPDistance         decimal.Decimal
	SLDistance         decimal.Decimal
	GeneratedAt        time.Time
}

// Contract is a binary option order placed at the exchange.
type Contract struct {
	ContractID      string          `json:"contractId"`
	Symbol          string          `json:"symbol"`
	Direction       Direction       `json:"direction"`
	Stake           decimal.Decimal `json:"stake"`
	Duration        int             `json:"duration"`
	DurationUnit    DurationUnit    `json:"durationUnit"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	ExitPrice       decimal.Decimal `json:"exitPrice"`
	Profit          decimal.Decimal `json:"profit"`
	IsWin           bool            `json:"isWin"`
	Status          ContractStatus  `json:"status"`
	OpenedAt        time.Time       `json:"openedAt"`
	ClosedAt        time.Time       `json:"closedAt"`
	MartingaleLevel int             `json:"martingaleLevel"`
}

// AggregateStats are the running totals kept across a session.
type AggregateStats struct {
	Total            int             `json:"total"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	TotalProfit      decimal.Decimal `json:"totalProfit"`
	StartingBalance  decimal.Decimal `json:"startingBalance"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	PeakBalance      decimal.Decimal `json:"peakBalance"`
	MaxDrawdown      decimal.Decimal `json:"maxDrawdown"`
}

// MartingaleState tracks the current recovery sequence.
type MartingaleState struct {
	Level          int             `json:"level"`
	InSequence     bool            `json:"inSequence"`
	CumulativeLoss decimal.Decimal `json:"cumulativeLoss"`
}

// RiskState tracks the counters the risk preflight consults.
type RiskState struct {
	ConsecutiveLosses int         `json:"consecutiveLosses"`
	DailyLoss         decimal.Decimal `json:"dailyLoss"`
	LastTradeTime     time.Time   `json:"lastTradeTime"`
	BuyFailureTimes   []time.Time `json:"buyFailureTimes"`
	CircuitBreakerEnd time.Time   `json:"circuitBreakerEnd"`
}

// SessionState is the Trade Manager's durable, per-engine-instance state.
type SessionState struct {
	BaseStake     decimal.Decimal    `json:"baseStake"`
	CurrentStake  decimal.Decimal    `json:"currentStake"`
	Symbol        string             `json:"symbol"`
	Duration      int                `json:"duration"`
	DurationUnit  DurationUnit       `json:"durationUnit"`
	TargetTrades  int                `json:"targetTrades"`
	Stats         AggregateStats     `json:"stats"`
	Martingale    MartingaleState    `json:"martingale"`
	Risk          RiskState          `json:"risk"`
	State         TradeManagerState  `json:"state"`
	SavedAt       time.Time          `json:"savedAt"`
}

// Consistent reports whether the session's invariants hold.
func (s SessionState) Consistent(minStake decimal.Decimal, maxMartingaleLevel int) bool {
	if s.Stats.Wins+s.Stats.Losses != s.Stats.Total {
		return false
	}
	if s.CurrentStake.LessThan(minStake) {
		return false
	}
	if s.Martingale.Level < 0 || s.Martingale.Level > maxMartingaleLevel {
		return false
	}
	return true
}
