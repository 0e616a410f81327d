package trademanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/config"
	"github.com/dzakiart/derivengine/internal/entryfilter"
	"github.com/dzakiart/derivengine/internal/eventbus"
	"github.com/dzakiart/derivengine/internal/metrics"
	"github.com/dzakiart/derivengine/internal/retry"
	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/internal/transport"
	"github.com/dzakiart/derivengine/pkg/domain"
)

// cooldownPeriod is the minimum gap between a settled trade and the next
// buy attempt for the same symbol.
const cooldownPeriod = 4 * time.Second

// buyTimeout bounds how long a submitted buy may wait for a settlement
// before the session is reset to RUNNING and the attempt counted as a
// circuit-breaker failure.
const buyTimeout = 30 * time.Second

// Broker is the subset of Transport the Trade Manager depends on; kept as
// an interface so tests can substitute a fake exchange.
type Broker interface {
	SubscribeTicks(symbol string, cb transport.TickCallback)
	SubscribeContract(contractID string, cb transport.ContractCallback)
	BuyContract(ctx context.Context, direction, symbol string, stake float64, duration int, durationUnit string) (json.RawMessage, error)
}

// SessionStore persists SessionState across restarts. internal/recovery's
// Store satisfies this.
type SessionStore interface {
	Save(domain.SessionState) error
}

// TradeManager owns the single-symbol IDLE/RUNNING/WAITING_RESULT/STOPPED
// lifecycle: it feeds incoming ticks to a Strategy, runs the risk
// preflight, places buys, tracks the martingale recovery sequence, and
// settles contracts as they close.
type TradeManager struct {
	logger *zap.Logger

	broker    Broker
	bus       *eventbus.Bus
	strategy  strategy.Strategy
	risk      *RiskManager
	store     SessionStore
	martingle config.MartingaleConfig
	filter    *entryfilter.Filter
	riskMode  domain.RiskMode

	sm *StateMachine

	mu      sync.Mutex
	session domain.SessionState

	signalLock  sync.Mutex // non-blocking single-flight guard across evaluate-and-send
	lastTradeAt time.Time
	lastBuyAt   time.Time
	cancel      context.CancelFunc
}

// New constructs a TradeManager. resume, if non-zero, is a previously
// persisted session to continue rather than start fresh. riskMode selects
// the Entry Filter's minimum-score and minimum-confidence profile.
func New(logger *zap.Logger, broker Broker, bus *eventbus.Bus, strat strategy.Strategy, risk *RiskManager, store SessionStore, martingale config.MartingaleConfig, filter *entryfilter.Filter, riskMode domain.RiskMode, resume domain.SessionState) *TradeManager {
	session := resume
	if session.CurrentStake.IsZero() {
		session.CurrentStake = session.BaseStake
	}

	return &TradeManager{
		logger:    logger.Named("trademanager"),
		broker:    broker,
		bus:       bus,
		strategy:  strat,
		risk:      risk,
		store:     store,
		martingle: martingale,
		filter:    filter,
		riskMode:  riskMode,
		sm:        NewStateMachineAt(session.State),
		session:   session,
	}
}

// Configure sets the base stake, target trade count, and contract terms
// for a fresh (IDLE) session.
func (tm *TradeManager) Configure(symbol string, baseStake decimal.Decimal, duration int, unit domain.DurationUnit, targetTrades int, startingBalance decimal.Decimal) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.session = domain.SessionState{
		BaseStake:    baseStake,
		CurrentStake: baseStake,
		Symbol:       symbol,
		Duration:     duration,
		DurationUnit: unit,
		TargetTrades: targetTrades,
		Stats: domain.AggregateStats{
			StartingBalance: startingBalance,
			CurrentBalance:  startingBalance,
			PeakBalance:     startingBalance,
		},
		State: domain.StateIdle,
	}
	tm.sm = NewStateMachineAt(domain.StateIdle)
}

// Start subscribes to the configured symbol's tick stream and transitions
// to RUNNING.
func (tm *TradeManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	symbol := tm.session.Symbol
	tm.mu.Unlock()

	if err := tm.sm.Transition(domain.StateRunning); err != nil {
		return err
	}
	tm.setState(domain.StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	tm.cancel = cancel

	tm.broker.SubscribeTicks(symbol, tm.onTick)

	tm.bus.Publish(eventbus.ChannelStatus, eventbus.StatusEvent{IsTrading: true, IsConnected: true, Timestamp: time.Now()})

	go func() {
		<-runCtx.Done()
	}()

	return nil
}

// Stop transitions to STOPPED; any in-flight contract still settles via
// its subscription callback, but no further buys are placed.
func (tm *TradeManager) Stop() {
	tm.stop("")
}

// stop performs the STOPPED transition and, when reason is non-empty,
// publishes it as a positions-reset event so dashboard/chat clients can
// surface it as the terminal notification that names the abort cause
// (RiskAbort, martingale exhaustion, ...).
func (tm *TradeManager) stop(reason string) {
	tm.mu.Lock()
	if tm.cancel != nil {
		tm.cancel()
	}
	_ = tm.sm.Transition(domain.StateStopped)
	tm.setStateLocked(domain.StateStopped)
	tm.mu.Unlock()

	tm.bus.Publish(eventbus.ChannelStatus, eventbus.StatusEvent{IsTrading: false, IsConnected: true, Timestamp: time.Now()})
	if reason != "" {
		tm.bus.Publish(eventbus.ChannelPosition, eventbus.PositionEvent{
			Type: eventbus.PositionReset, Reason: reason, Timestamp: time.Now(),
		})
	}
}

func (tm *TradeManager) setState(s domain.TradeManagerState) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.setStateLocked(s)
}

func (tm *TradeManager) setStateLocked(s domain.TradeManagerState) {
	tm.session.State = s
	tm.persistLocked()
}

func (tm *TradeManager) persistLocked() {
	if tm.store == nil {
		return
	}
	tm.session.SavedAt = time.Now()
	tm.session.Risk = tm.risk.State()
	if err := tm.store.Save(tm.session); err != nil {
		tm.logger.Warn("session persistence failed", zap.Error(err))
	}
}

// onTick is the Transport callback: it feeds the strategy and, while
// RUNNING, evaluates whether to place a trade.
func (tm *TradeManager) onTick(symbol string, price, timestamp float64) {
	tm.strategy.AddTick(price)
	tm.bus.Publish(eventbus.ChannelTick, eventbus.TickEvent{Symbol: symbol, Price: decimal.NewFromFloat(price), Timestamp: time.Now()})

	if tm.sm.Current() != domain.StateRunning {
		tm.checkBuyTimeout()
		return
	}
	broken := tm.risk.IsCircuitBroken()
	metrics.SetCircuitBreaker(symbol, broken)
	if broken {
		return
	}
	if time.Since(tm.lastTradeAt) < cooldownPeriod {
		return
	}

	tm.mu.Lock()
	if tm.session.TargetTrades > 0 && tm.session.Stats.Total >= tm.session.TargetTrades {
		tm.mu.Unlock()
		tm.Stop()
		return
	}
	tm.mu.Unlock()

	if !tm.signalLock.TryLock() {
		return // a signal is already being evaluated for this symbol
	}
	defer tm.signalLock.Unlock()

	signal := tm.strategy.Analyze()
	if signal.Direction != domain.DirectionCall && signal.Direction != domain.DirectionPut {
		return
	}

	verdict := tm.filter.Evaluate(tm.riskMode, signal, time.Now())
	metrics.RecordEntryFilterEvaluation(string(tm.riskMode), verdict.Allowed)
	if !verdict.Allowed {
		tm.logger.Debug("signal rejected by entry filter", zap.Strings("reasons", verdict.BlockReasons), zap.Float64("score", verdict.Score))
		return
	}

	tm.attemptBuy(signal)
}

// checkBuyTimeout resets a WAITING_RESULT session that has exceeded
// buyTimeout without a settlement, counting the stall as a buy failure.
func (tm *TradeManager) checkBuyTimeout() {
	if tm.sm.Current() != domain.StateWaitingResult {
		return
	}
	if time.Since(tm.lastBuyAt) <= buyTimeout {
		return
	}
	tm.logger.Warn("buy response timed out, resetting to RUNNING")
	tm.risk.RecordBuyFailure()
	if err := tm.sm.Transition(domain.StateRunning); err == nil {
		tm.setState(domain.StateRunning)
	}
}

// attemptBuy runs the risk preflight and, if approved, places a buy (with
// retry/backoff on exchange failure) and moves to WAITING_RESULT.
func (tm *TradeManager) attemptBuy(signal domain.Signal) {
	tm.mu.Lock()
	stake := tm.session.CurrentStake
	symbol := tm.session.Symbol
	duration := tm.session.Duration
	unit := tm.session.DurationUnit
	balance := tm.session.Stats.CurrentBalance
	level := tm.session.Martingale.Level
	tm.mu.Unlock()

	projected := projectedStakes(stake, tm.martingle.Multiplier, level, tm.martingle.MaxLevel)

	result := tm.risk.CheckPreflight(stake, projected, balance)
	if !result.Approved {
		if reason, abort := riskAbortReason(result); abort {
			tm.logger.Warn("risk preflight aborted session", zap.String("symbol", symbol), zap.String("reason", reason))
			tm.stop(reason)
		} else {
			tm.logger.Info("buy suppressed by circuit breaker", zap.String("symbol", symbol))
		}
		return
	}

	if err := tm.sm.Transition(domain.StateWaitingResult); err != nil {
		return
	}
	tm.setState(domain.StateWaitingResult)
	tm.lastBuyAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stakeF, _ := stake.Float64()

	var raw json.RawMessage
	buyErr := retry.Do(ctx, retry.BuyConfig(), func(attempt int) error {
		var err error
		raw, err = tm.broker.BuyContract(ctx, string(signal.Direction), symbol, stakeF, duration, string(unit))
		if err != nil {
			tm.risk.RecordBuyFailure()
			metrics.RecordBuyFailure(symbol)
			tm.logger.Warn("buy attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		}
		return err
	})
	if buyErr != nil {
		tm.logger.Error("buy abandoned after retries", zap.Error(buyErr))
		_ = tm.sm.Transition(domain.StateRunning)
		tm.setState(domain.StateRunning)
		return
	}

	var resp struct {
		Buy struct {
			ContractID int64   `json:"contract_id"`
			BuyPrice   float64 `json:"buy_price"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Buy.ContractID == 0 {
		tm.logger.Warn("buy response decode failed", zap.Error(err))
		tm.risk.RecordBuyFailure()
		_ = tm.sm.Transition(domain.StateRunning)
		tm.setState(domain.StateRunning)
		return
	}

	contractID := fmt.Sprintf("%d", resp.Buy.ContractID)
	tm.bus.Publish(eventbus.ChannelPosition, eventbus.PositionEvent{
		Type: eventbus.PositionOpen, ContractID: contractID, Symbol: symbol, Timestamp: time.Now(),
	})

	tm.broker.SubscribeContract(contractID, func(msg json.RawMessage) { tm.onContractUpdate(contractID, symbol, signal.Direction, stake, msg) })
}

// onContractUpdate handles a proposal_open_contract push. Only a settled
// (is_sold) update advances the state machine.
func (tm *TradeManager) onContractUpdate(contractID, symbol string, direction domain.Direction, stake decimal.Decimal, msg json.RawMessage) {
	var resp struct {
		IsSold  int     `json:"is_sold"`
		Profit  float64 `json:"profit"`
		Status  string  `json:"status"`
	}
	if err := json.Unmarshal(msg, &resp); err != nil {
		tm.logger.Warn("contract update decode failed", zap.Error(err))
		return
	}
	if resp.IsSold == 0 {
		return
	}

	profit := decimal.NewFromFloat(resp.Profit)
	isWin := profit.IsPositive()

	tm.risk.RecordTrade(profit, isWin)
	tm.lastTradeAt = time.Now()

	tm.mu.Lock()
	tm.session.Stats.Total++
	if isWin {
		tm.session.Stats.Wins++
	} else {
		tm.session.Stats.Losses++
	}
	tm.session.Stats.TotalProfit = tm.session.Stats.TotalProfit.Add(profit)
	tm.session.Stats.CurrentBalance = tm.session.Stats.CurrentBalance.Add(profit)
	if tm.session.Stats.CurrentBalance.GreaterThan(tm.session.Stats.PeakBalance) {
		tm.session.Stats.PeakBalance = tm.session.Stats.CurrentBalance
	}
	drawdown := tm.session.Stats.PeakBalance.Sub(tm.session.Stats.CurrentBalance)
	if drawdown.GreaterThan(tm.session.Stats.MaxDrawdown) {
		tm.session.Stats.MaxDrawdown = drawdown
	}

	martingaleExhausted := tm.applyMartingaleLocked(isWin, profit)
	martingaleLevel := tm.session.Martingale.Level
	cumulativeLoss := tm.session.Martingale.CumulativeLoss

	targetReached := tm.session.TargetTrades > 0 && tm.session.Stats.Total >= tm.session.TargetTrades
	tm.mu.Unlock()

	metrics.RecordTrade(symbol, isWin, resp.Profit)
	metrics.SetMartingaleLevel(symbol, martingaleLevel)

	tm.bus.Publish(eventbus.ChannelTrade, eventbus.TradeEvent{
		TradeID: contractID, Symbol: symbol, Direction: string(direction), Stake: stake,
		Result: resultOf(isWin), Profit: profit, Timestamp: time.Now(),
	})
	tm.bus.Publish(eventbus.ChannelPosition, eventbus.PositionEvent{
		Type: eventbus.PositionClose, ContractID: contractID, Symbol: symbol, IsWin: isWin, Profit: profit, Timestamp: time.Now(),
	})

	if martingaleExhausted {
		reason := fmt.Sprintf("MAX MARTINGALE LEVEL reached, cumulative loss %s", cumulativeLoss.StringFixed(2))
		tm.logger.Warn("martingale sequence exhausted, stopping session", zap.String("symbol", symbol), zap.String("reason", reason))
		tm.stop(reason)
		return
	}

	if targetReached {
		tm.stop("")
		return
	}

	if err := tm.sm.Transition(domain.StateRunning); err == nil {
		tm.setState(domain.StateRunning)
	}
}

// applyMartingaleLocked advances the martingale sequence; caller holds tm.mu.
// It returns true when the loss just recorded brings Level to MaxLevel: per
// the recovery rule, that stops the session outright rather than placing
// another buy at the next multiplied stake.
func (tm *TradeManager) applyMartingaleLocked(isWin bool, profit decimal.Decimal) bool {
	if isWin {
		tm.session.CurrentStake = tm.session.BaseStake
		tm.session.Martingale = domain.MartingaleState{}
		return false
	}

	tm.session.Martingale.InSequence = true
	tm.session.Martingale.CumulativeLoss = tm.session.Martingale.CumulativeLoss.Add(profit.Abs())
	tm.session.Martingale.Level++

	if tm.session.Martingale.Level >= tm.martingle.MaxLevel {
		return true
	}

	tm.session.CurrentStake = tm.session.CurrentStake.Mul(decimal.NewFromFloat(tm.martingle.Multiplier))
	return false
}

func resultOf(isWin bool) eventbus.TradeResult {
	if isWin {
		return eventbus.TradeWin
	}
	return eventbus.TradeLoss
}

// riskAbortReason reports whether a blocked preflight verdict should end
// the session outright. A circuit-breaker violation is a temporary pause
// (the next signal may be approved once it lapses) and never stops the
// session; every other violation (consecutive-loss cap, daily-loss cap,
// excess projected exposure) is a RiskAbort and carries its message as
// the terminal notification's cause.
func riskAbortReason(result RiskCheckResult) (string, bool) {
	if len(result.Violations) == 0 {
		return "", false
	}
	v := result.Violations[0]
	if v.Rule == "circuit_breaker" {
		return "", false
	}
	return fmt.Sprintf("RiskAbort: %s", v.Message), true
}

// projectedStakes returns the stakes a full martingale recovery sequence
// would require, starting from stake at level, through maxLevel.
func projectedStakes(stake decimal.Decimal, multiplier float64, level, maxLevel int) []decimal.Decimal {
	out := []decimal.Decimal{stake}
	cur := stake
	for l := level; l < maxLevel; l++ {
		cur = cur.Mul(decimal.NewFromFloat(multiplier))
		out = append(out, cur)
	}
	return out
}

// Snapshot returns a copy of the current session state.
func (tm *TradeManager) Snapshot() domain.SessionState {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.session
}
