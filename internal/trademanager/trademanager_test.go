package trademanager_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/config"
	"github.com/dzakiart/derivengine/internal/entryfilter"
	"github.com/dzakiart/derivengine/internal/eventbus"
	"github.com/dzakiart/derivengine/internal/trademanager"
	"github.com/dzakiart/derivengine/internal/transport"
	"github.com/dzakiart/derivengine/pkg/domain"
)

// cooldown mirrors trademanager's unexported cooldownPeriod; tests that
// drive more than one buy cycle through the same manager must wait it out.
const cooldown = 4100 * time.Millisecond

// fakeBroker is an in-memory Broker: it captures the tick and contract
// callbacks the Trade Manager subscribes so a test can drive both ends of
// a trade synchronously, and settles buys with a caller-controlled profit
// sequence, one entry consumed per BuyContract call.
type fakeBroker struct {
	mu          sync.Mutex
	nextProfits []float64
	buyCalls    int
	buyErr      error

	tickCB     transport.TickCallback
	contractCB map[string]transport.ContractCallback
}

func newFakeBroker(profits ...float64) *fakeBroker {
	return &fakeBroker{nextProfits: profits, contractCB: make(map[string]transport.ContractCallback)}
}

func (b *fakeBroker) SubscribeTicks(symbol string, cb transport.TickCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickCB = cb
}

func (b *fakeBroker) SubscribeContract(contractID string, cb transport.ContractCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contractCB[contractID] = cb
}

func (b *fakeBroker) BuyContract(ctx context.Context, direction, symbol string, stake float64, duration int, durationUnit string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buyErr != nil {
		return nil, b.buyErr
	}

	b.buyCalls++
	contractID := int64(1000 + b.buyCalls)
	resp := map[string]interface{}{
		"buy": map[string]interface{}{
			"contract_id": contractID,
			"buy_price":   stake,
		},
	}
	raw, _ := json.Marshal(resp)
	return raw, nil
}

// tick invokes the captured tick callback as the real Transport would.
func (b *fakeBroker) tick(symbol string, price float64) {
	b.mu.Lock()
	cb := b.tickCB
	b.mu.Unlock()
	cb(symbol, price, float64(time.Now().Unix()))
}

// settle pushes a settlement for the most recently opened contract, using
// the next queued profit.
func (b *fakeBroker) settle() {
	b.mu.Lock()
	var profit float64
	if len(b.nextProfits) > 0 {
		profit = b.nextProfits[0]
		b.nextProfits = b.nextProfits[1:]
	}
	contractID := fmt.Sprintf("%d", 1000+b.buyCalls)
	cb := b.contractCB[contractID]
	b.mu.Unlock()

	msg, _ := json.Marshal(map[string]interface{}{
		"is_sold": 1,
		"profit":  profit,
		"status":  "sold",
	})
	cb(msg)
}

// fakeStrategy always signals CALL with high confidence and an ADX below
// the trend-alignment threshold, so the Entry Filter never blocks it.
type fakeStrategy struct{}

func (fakeStrategy) Name() string          { return "fake" }
func (fakeStrategy) AddTick(price float64) {}
func (fakeStrategy) ClearHistory()         {}
func (fakeStrategy) Analyze() domain.Signal {
	return domain.Signal{
		Direction:      domain.DirectionCall,
		Confidence:     decimal.NewFromFloat(0.9),
		VolatilityZone: domain.VolatilityNormal,
		IndicatorsSnapshot: map[string]decimal.Decimal{
			"adx": decimal.NewFromInt(10),
		},
	}
}

func newManager(broker *fakeBroker, martingale config.MartingaleConfig) *trademanager.TradeManager {
	logger := zap.NewNop()
	bus := eventbus.New(logger)
	risk := trademanager.NewRiskManager(logger, config.RiskConfig{
		MaxConsecutiveLosses:   10,
		DailyLossCapStr:        "0",
		CircuitBreakerFailures: 100,
		CircuitBreakerWindow:   time.Minute,
		CircuitBreakerPause:    time.Minute,
	}, domain.RiskState{})
	filter := entryfilter.New(logger)

	tm := trademanager.New(logger, broker, bus, fakeStrategy{}, risk, nil, martingale, filter, domain.RiskModeAggressive, domain.SessionState{})
	tm.Configure("R_100", decimal.NewFromFloat(1.0), 5, domain.DurationUnitTicks, 0, decimal.NewFromFloat(100))
	return tm
}

// buyAndSettle drives one full tick->buy->settle cycle synchronously.
func buyAndSettle(tm *trademanager.TradeManager, broker *fakeBroker) {
	broker.tick("R_100", 100.0)
	broker.settle()
}

func TestTickTriggersBuyAndSettlesWin(t *testing.T) {
	broker := newFakeBroker(2.5)
	tm := newManager(broker, config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 5})
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buyAndSettle(tm, broker)

	snap := tm.Snapshot()
	if snap.Stats.Total != 1 || snap.Stats.Wins != 1 {
		t.Fatalf("expected one settled win, got Stats=%+v", snap.Stats)
	}
	if snap.State != domain.StateRunning {
		t.Errorf("session should resume RUNNING after a settlement, got %s", snap.State)
	}
}

func TestMartingaleExhaustionStopsSession(t *testing.T) {
	// Five consecutive losses from base 1.00 with a 2.0 multiplier and
	// MaxLevel 5: stakes 1, 2, 4, 8, 16, level reaches MaxLevel on the
	// fifth loss, and no sixth buy (which would be at stake 32) is sent.
	broker := newFakeBroker(-1, -2, -4, -8, -16)
	tm := newManager(broker, config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 5})
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		buyAndSettle(tm, broker)
		time.Sleep(cooldown)
	}

	snap := tm.Snapshot()
	if snap.State != domain.StateStopped {
		t.Errorf("expected STOPPED after martingale exhaustion, got %s", snap.State)
	}
	if snap.Martingale.Level != 5 {
		t.Errorf("Martingale.Level = %d, want 5", snap.Martingale.Level)
	}
	if !snap.Martingale.CumulativeLoss.Equal(decimal.NewFromFloat(31)) {
		t.Errorf("CumulativeLoss = %s, want 31", snap.Martingale.CumulativeLoss)
	}
	if broker.buyCalls != 5 {
		t.Errorf("buyCalls = %d, want 5 (no sixth buy at stake 32 after exhaustion)", broker.buyCalls)
	}

	broker.tick("R_100", 100.0)
	if broker.buyCalls != 5 {
		t.Errorf("no further buy should be placed once STOPPED, got %d buy calls", broker.buyCalls)
	}
}

func TestWinResetsMartingale(t *testing.T) {
	broker := newFakeBroker(-1, 3)
	tm := newManager(broker, config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 5})
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buyAndSettle(tm, broker)
	if got := tm.Snapshot().Martingale.Level; got != 1 {
		t.Fatalf("after one loss, Martingale.Level = %d, want 1", got)
	}

	time.Sleep(cooldown)
	buyAndSettle(tm, broker)

	snap := tm.Snapshot()
	if snap.Martingale.Level != 0 || snap.Martingale.InSequence {
		t.Errorf("a win should reset the martingale sequence, got %+v", snap.Martingale)
	}
	if !snap.CurrentStake.Equal(snap.BaseStake) {
		t.Errorf("a win should reset CurrentStake to BaseStake, got %s vs %s", snap.CurrentStake, snap.BaseStake)
	}
}

func TestTargetTradesStopsSession(t *testing.T) {
	broker := newFakeBroker(1, 1)
	tm := newManager(broker, config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 5})
	tm.Configure("R_100", decimal.NewFromFloat(1.0), 5, domain.DurationUnitTicks, 2, decimal.NewFromFloat(100))
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buyAndSettle(tm, broker)
	if tm.Snapshot().State == domain.StateStopped {
		t.Fatal("session should not stop before reaching TargetTrades")
	}

	time.Sleep(cooldown)
	buyAndSettle(tm, broker)
	if tm.Snapshot().State != domain.StateStopped {
		t.Error("session should stop once TargetTrades is reached")
	}
}

func TestRiskAbortStopsSessionCleanly(t *testing.T) {
	broker := newFakeBroker(-1, -1)
	logger := zap.NewNop()
	bus := eventbus.New(logger)
	risk := trademanager.NewRiskManager(logger, config.RiskConfig{
		MaxConsecutiveLosses:   2,
		DailyLossCapStr:        "0",
		CircuitBreakerFailures: 100,
		CircuitBreakerWindow:   time.Minute,
		CircuitBreakerPause:    time.Minute,
	}, domain.RiskState{})
	filter := entryfilter.New(logger)
	tm := trademanager.New(logger, broker, bus, fakeStrategy{}, risk, nil,
		config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 10}, filter, domain.RiskModeAggressive, domain.SessionState{})
	tm.Configure("R_100", decimal.NewFromFloat(1.0), 5, domain.DurationUnitTicks, 0, decimal.NewFromFloat(100))
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buyAndSettle(tm, broker) // loss 1: ConsecutiveLosses -> 1
	time.Sleep(cooldown)
	buyAndSettle(tm, broker) // loss 2: ConsecutiveLosses -> 2, preflight now blocks further buys

	time.Sleep(cooldown)
	broker.tick("R_100", 100.0) // third signal: preflight rejects, session must stop

	snap := tm.Snapshot()
	if snap.State != domain.StateStopped {
		t.Errorf("expected STOPPED once the consecutive-loss cap blocks the preflight, got %s", snap.State)
	}
	if broker.buyCalls != 2 {
		t.Errorf("buyCalls = %d, want 2 (no buy once the risk preflight aborts the session)", broker.buyCalls)
	}
}

func TestStopPreventsFurtherBuys(t *testing.T) {
	broker := newFakeBroker(1)
	tm := newManager(broker, config.MartingaleConfig{Multiplier: 2.0, MaxLevel: 5})
	if err := tm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tm.Stop()

	broker.tick("R_100", 100.0)

	if broker.buyCalls != 0 {
		t.Errorf("no buy should be placed once the session is STOPPED, got %d buy calls", broker.buyCalls)
	}
	if tm.Snapshot().State != domain.StateStopped {
		t.Errorf("expected session to remain STOPPED, got %s", tm.Snapshot().State)
	}
}
