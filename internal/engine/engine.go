// Package engine wires the Trade Manager, the Pair Scanner, and the event
// bus together behind the single Engine interface the operator HTTP
// surface (internal/api) talks to.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/api"
	"github.com/dzakiart/derivengine/internal/eventbus"
	"github.com/dzakiart/derivengine/internal/scanner"
	"github.com/dzakiart/derivengine/internal/trademanager"
	"github.com/dzakiart/derivengine/pkg/domain"
)

// Engine satisfies api.Engine, translating the HTTP operator surface's
// requests into calls on the Trade Manager, the Pair Scanner, and the
// event bus's retained snapshot state.
type Engine struct {
	logger  *zap.Logger
	tm      *trademanager.TradeManager
	scanner *scanner.Scanner
	bus     *eventbus.Bus
}

var _ api.Engine = (*Engine)(nil)

// New constructs an Engine over an already-configured TradeManager,
// Scanner, and Bus; all three are started/stopped independently by main
// at startup.
func New(logger *zap.Logger, tm *trademanager.TradeManager, sc *scanner.Scanner, bus *eventbus.Bus) *Engine {
	return &Engine{logger: logger.Named("engine"), tm: tm, scanner: sc, bus: bus}
}

// Status reports the Trade Manager's current lifecycle state and stats.
func (e *Engine) Status() api.StatusView {
	session := e.tm.Snapshot()
	return api.StatusView{
		State:      session.State,
		Stats:      session.Stats,
		Symbol:     session.Symbol,
		Martingale: session.Martingale,
	}
}

// Snapshot reports the event bus's retained open-positions state alongside
// the Trade Manager's running trade count and balance.
func (e *Engine) Snapshot() api.SnapshotView {
	session := e.tm.Snapshot()
	busSnap := e.bus.GetSnapshot()

	lastBalance := session.Stats.CurrentBalance.String()
	if busSnap.Balance != nil {
		lastBalance = busSnap.Balance.Balance.String()
	}

	return api.SnapshotView{
		OpenPositions: len(busSnap.OpenPositions),
		TradeCount:    session.Stats.Total,
		LastBalance:   lastBalance,
		AsOf:          time.Now(),
	}
}

// Recommendations surfaces the Pair Scanner's top-ranked symbols.
func (e *Engine) Recommendations(topN int) []api.RecommendationView {
	snap := e.scanner.GetSnapshot(topN)
	out := make([]api.RecommendationView, 0, len(snap.Recommendations))
	for _, r := range snap.Recommendations {
		out = append(out, api.RecommendationView{
			Symbol:     r.Symbol,
			Score:      r.Score,
			Direction:  string(r.Direction),
			Confidence: r.Confidence,
		})
	}
	return out
}

// Configure validates and applies a new session configuration to the Trade
// Manager.
func (e *Engine) Configure(req api.ConfigureRequest) error {
	sym, ok := domain.Symbols[req.Symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %q", req.Symbol)
	}

	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		return fmt.Errorf("invalid stake %q: %w", req.Stake, err)
	}
	if stake.LessThan(sym.MinStake) {
		return fmt.Errorf("stake %s below minimum %s for %s", stake, sym.MinStake, req.Symbol)
	}

	unit := domain.DurationUnit(req.DurationUnit)
	if !sym.SupportsDuration(unit) {
		return fmt.Errorf("symbol %s does not support duration unit %q", req.Symbol, req.DurationUnit)
	}

	e.tm.Configure(req.Symbol, stake, req.Duration, unit, req.TargetTrades, decimal.Zero)
	return nil
}

// Start begins trading the configured session.
func (e *Engine) Start(ctx context.Context) error {
	return e.tm.Start(ctx)
}

// Stop halts the session and returns a summary of the finished run.
func (e *Engine) Stop() api.SummaryView {
	session := e.tm.Snapshot()
	e.tm.Stop()
	return api.SummaryView{
		Total:       session.Stats.Total,
		Wins:        session.Stats.Wins,
		Losses:      session.Stats.Losses,
		TotalProfit: session.Stats.TotalProfit.String(),
	}
}
