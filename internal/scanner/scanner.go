// Package scanner implements the Pair Scanner: one Strategy instance per
// short-term symbol, preloaded from history and fed by live ticks, ranked
// every sweep so the operator surface can recommend where to trade.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/metrics"
	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/internal/transport"
	"github.com/dzakiart/derivengine/internal/workerpool"
	"github.com/dzakiart/derivengine/pkg/domain"
)

const (
	sweepInterval      = 15 * time.Second
	minReadyTicks      = 30
	pruneAfterTicks    = 10000
	staleResultMaxAge  = 5 * time.Minute
	historyPreloadPad  = 20
)

// Broker is the subset of Transport the scanner needs: historical preload
// and a live per-symbol tick subscription.
type Broker interface {
	GetTicksHistory(ctx context.Context, symbol string, count int, timeout time.Duration) ([]float64, error)
	SubscribeTicks(symbol string, cb transport.TickCallback)
}

// symbolState is one scanned symbol's strategy instance plus bookkeeping.
type symbolState struct {
	symbol   string
	strat    strategy.Strategy
	ticks    int
	lastSeen time.Time

	mu         sync.Mutex
	lastSignal domain.Signal
	lastScore  float64
	computedAt time.Time
}

// Recommendation is one ranked entry in a scan snapshot.
type Recommendation struct {
	Symbol     string
	Score      float64
	Direction  domain.Direction
	Confidence float64
	Reason     string
}

// Snapshot is the atomic result of GetSnapshot.
type Snapshot struct {
	AsOf            time.Time
	Recommendations []Recommendation
}

// Scanner runs the periodic parallel sweep across every short-term symbol.
type Scanner struct {
	logger   *zap.Logger
	broker   Broker
	registry *strategy.Registry
	pool     *workerpool.Pool

	mu      sync.RWMutex
	symbols map[string]*symbolState

	cancel context.CancelFunc
}

// New constructs a Scanner over every symbol in domain.ShortTermSymbols().
func New(logger *zap.Logger, broker Broker, registry *strategy.Registry) *Scanner {
	pool := workerpool.NewPool(logger.Named("scanner-pool"), &workerpool.PoolConfig{
		Name:            "pair-scanner",
		NumWorkers:      8,
		QueueSize:       256,
		TaskTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		PanicRecovery:   true,
	})

	s := &Scanner{
		logger:   logger.Named("scanner"),
		broker:   broker,
		registry: registry,
		pool:     pool,
		symbols:  make(map[string]*symbolState),
	}

	for _, sym := range domain.ShortTermSymbols() {
		strat, _ := registry.Create("deriv")
		s.symbols[sym] = &symbolState{symbol: sym, strat: strat}
	}

	return s
}

// Start preloads each symbol's history synchronously, subscribes to live
// ticks, then begins the periodic sweep loop.
func (s *Scanner) Start(ctx context.Context) error {
	s.pool.Start()

	for sym, st := range s.symbols {
		requiredTicks := minReadyTicks + historyPreloadPad
		history, err := s.broker.GetTicksHistory(ctx, sym, requiredTicks, 10*time.Second)
		if err != nil {
			s.logger.Warn("history preload failed", zap.String("symbol", sym), zap.Error(err))
		}
		for _, p := range history {
			st.strat.AddTick(p)
			st.ticks++
		}

		sym := sym
		s.broker.SubscribeTicks(sym, func(symbol string, price, timestamp float64) {
			s.onTick(symbol, price)
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.sweepLoop(runCtx)

	return nil
}

// Stop ends the sweep loop and drains the worker pool.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.pool.Stop()
}

func (s *Scanner) onTick(symbol string, price float64) {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if !ok {
		return
	}

	st.strat.AddTick(price)
	st.ticks++
	st.lastSeen = time.Now()

	if st.ticks > 0 && st.ticks%pruneAfterTicks == 0 {
		st.strat.ClearHistory()
	}
}

func (s *Scanner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scanner) sweep() {
	s.mu.RLock()
	states := make([]*symbolState, 0, len(s.symbols))
	for _, st := range s.symbols {
		states = append(states, st)
	}
	s.mu.RUnlock()

	tasks := make([]workerpool.Task, 0, len(states))
	for _, st := range states {
		st := st
		tasks = append(tasks, workerpool.TaskFunc(func() error {
			s.analyzeOne(st)
			return nil
		}))
	}
	if _, err := s.pool.SubmitBatch(tasks); err != nil {
		s.logger.Warn("sweep submission degraded", zap.Error(err))
	}
	metrics.ScannerQueueDepth.Set(float64(s.pool.QueueLength()))
	metrics.RecordPoolStats(s.pool.Stats())
}

func (s *Scanner) analyzeOne(st *symbolState) {
	if st.ticks < minReadyTicks {
		return
	}

	signal := st.strat.Analyze()
	score := rankScore(signal)

	st.mu.Lock()
	st.lastSignal = signal
	st.lastScore = score
	st.computedAt = time.Now()
	st.mu.Unlock()
}

// rankScore implements the scanner's recommendation ranking formula:
// 50 for a non-WAIT signal, 30*confidence, 20*confluence/100, an ADX
// bonus, and an extreme-volatility penalty. Strategies that don't carry a
// confluence sub-score (the LDP/Accumulator/Terminal auxiliaries) fall
// back to confidence*100 for that term.
func rankScore(signal domain.Signal) float64 {
	score := 0.0
	if signal.Direction == domain.DirectionCall || signal.Direction == domain.DirectionPut {
		score += 50
	}

	confidence, _ := signal.Confidence.Float64()
	score += 30 * confidence

	confluence := confidence * 100
	if c, ok := signal.IndicatorsSnapshot["confluence"]; ok {
		confluence, _ = c.Float64()
	}
	score += 20 * confluence / 100

	adx, _ := signal.ADXValue.Float64()
	switch {
	case adx > 25:
		score += 15
	case adx > 20:
		score += 10
	}

	if signal.VolatilityZone == domain.VolatilityExtremeHigh || signal.VolatilityZone == domain.VolatilityExtremeLow {
		score -= 10
	}

	return score
}

// GetSnapshot atomically returns the top N ranked symbols by score, skipping
// stale (>5 minute old) or not-yet-ready results.
func (s *Scanner) GetSnapshot(topN int) Snapshot {
	s.mu.RLock()
	states := make([]*symbolState, 0, len(s.symbols))
	for _, st := range s.symbols {
		states = append(states, st)
	}
	s.mu.RUnlock()

	now := time.Now()
	recs := make([]Recommendation, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		computedAt := st.computedAt
		signal := st.lastSignal
		score := st.lastScore
		st.mu.Unlock()

		if computedAt.IsZero() || now.Sub(computedAt) > staleResultMaxAge {
			continue
		}
		confidence, _ := signal.Confidence.Float64()
		recs = append(recs, Recommendation{
			Symbol:     st.symbol,
			Score:      score,
			Direction:  signal.Direction,
			Confidence: confidence,
			Reason:     signal.Reason,
		})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if topN > 0 && len(recs) > topN {
		recs = recs[:topN]
	}

	return Snapshot{AsOf: now, Recommendations: recs}
}
