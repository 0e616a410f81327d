// Package eventbus provides the process-wide, thread-safe publish/subscribe
// bus that fans out engine state transitions to dashboards and chat
// clients. It exposes five named channels, each subscriber getting a
// bounded, drop-oldest queue, plus a set of mutated-on-publish snapshots
// suitable for bootstrapping a new subscriber.
package eventbus

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Channel names the bus's five fixed publish/subscribe topics.
type Channel string

const (
	ChannelTick     Channel = "tick"
	ChannelPosition Channel = "position"
	ChannelTrade    Channel = "trade"
	ChannelBalance  Channel = "balance"
	ChannelStatus   Channel = "status"
)

// QueueCapacity is the bounded size of each subscriber's per-channel queue.
const QueueCapacity = 1000

// TradeHistoryCapacity bounds the snapshot's retained settlement history.
const TradeHistoryCapacity = 200

// TickEvent is published on ChannelTick.
type TickEvent struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// PositionEventType discriminates PositionEvent payloads.
type PositionEventType string

const (
	PositionOpen   PositionEventType = "open"
	PositionUpdate PositionEventType = "update"
	PositionClose  PositionEventType = "close"
	PositionReset  PositionEventType = "reset"
)

// PositionEvent is published on ChannelPosition.
type PositionEvent struct {
	Type       PositionEventType
	ContractID string
	Symbol     string
	IsWin      bool
	Profit     decimal.Decimal
	Reason     string
	Timestamp  time.Time
}

// TradeResult discriminates a settled trade's outcome.
type TradeResult string

const (
	TradeWin  TradeResult = "win"
	TradeLoss TradeResult = "loss"
)

// TradeEvent is published on ChannelTrade.
type TradeEvent struct {
	TradeID   string
	Symbol    string
	Direction string
	Stake     decimal.Decimal
	Result    TradeResult
	Profit    decimal.Decimal
	Timestamp time.Time
}

// BalanceEvent is published on ChannelBalance.
type BalanceEvent struct {
	Balance   decimal.Decimal
	Currency  string
	AccountID string
	Timestamp time.Time
}

// StatusEvent is published on ChannelStatus.
type StatusEvent struct {
	IsTrading   bool
	IsConnected bool
	AccountType string
	Timestamp   time.Time
}

// Event is the union of every channel's payload type; subscribers type
// switch on the concrete type they receive.
type Event interface{}

type subscriber struct {
	id    uint64
	queue chan Event
}

// Bus is the process-wide event bus. Construct one with New; it is ready
// for Publish immediately.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[Channel]map[uint64]*subscriber
	nextID      uint64

	snapMu        sync.RWMutex
	openPositions map[string]PositionEvent
	tradeHistory  []TradeEvent
	lastBalance   *BalanceEvent
	lastStatus    *StatusEvent
	lastTick      map[string]TickEvent

	stopped chan struct{}
	once    sync.Once
}

// Snapshot is a consistent, point-in-time copy of the bus's retained state,
// suitable for bootstrapping a newly-attached subscriber.
type Snapshot struct {
	OpenPositions map[string]PositionEvent
	TradeHistory  []TradeEvent
	Balance       *BalanceEvent
	Status        *StatusEvent
	LastTick      map[string]TickEvent
}

// New constructs a Bus. The bus is immediately usable and runs no
// background loop: queue delivery happens synchronously in the Publish
// call.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger:        logger.Named("eventbus"),
		subscribers:   make(map[Channel]map[uint64]*subscriber),
		openPositions: make(map[string]PositionEvent),
		lastTick:      make(map[string]TickEvent),
		stopped:       make(chan struct{}),
	}
}

// Subscribe registers a new subscriber on channel and returns a receive-only
// queue plus an unsubscribe function.
func (b *Bus) Subscribe(channel Channel) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{id: id, queue: make(chan Event, QueueCapacity)}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[uint64]*subscriber)
	}
	b.subscribers[channel][id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subscribers[channel]; ok {
			delete(set, id)
		}
	}
	return sub.queue, unsubscribe
}

// Publish delivers event to every subscriber of channel and updates the
// bus's mutable snapshot state. Publish never fails visibly to callers: a
// subscriber whose queue is full has its oldest entry dropped to make room
// for the newest; if the queue is still full after that, the event is
// dropped for that subscriber. Subscribers are never evicted by Publish:
// one that stops reading stays registered until it calls its unsubscribe
// function.
func (b *Bus) Publish(channel Channel, event Event) {
	b.applySnapshot(channel, event)

	b.mu.RLock()
	set := b.subscribers[channel]
	subs := make([]*subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

func (b *Bus) deliver(s *subscriber, event Event) {
	select {
	case s.queue <- event:
		return
	default:
	}

	// Queue full: drop the oldest entry to make room for the newest.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- event:
	default:
		b.logger.Debug("subscriber queue unavailable, dropping event")
	}
}

func (b *Bus) applySnapshot(channel Channel, event Event) {
	b.snapMu.Lock()
	defer b.snapMu.Unlock()

	switch channel {
	case ChannelTick:
		if e, ok := event.(TickEvent); ok {
			b.lastTick[e.Symbol] = e
		}
	case ChannelPosition:
		if e, ok := event.(PositionEvent); ok {
			switch e.Type {
			case PositionOpen:
				b.openPositions[e.ContractID] = e
			case PositionUpdate:
				b.openPositions[e.ContractID] = e
			case PositionClose:
				delete(b.openPositions, e.ContractID)
			case PositionReset:
				b.openPositions = make(map[string]PositionEvent)
			}
		}
	case ChannelTrade:
		if e, ok := event.(TradeEvent); ok {
			b.tradeHistory = append(b.tradeHistory, e)
			if len(b.tradeHistory) > TradeHistoryCapacity {
				b.tradeHistory = b.tradeHistory[len(b.tradeHistory)-TradeHistoryCapacity:]
			}
		}
	case ChannelBalance:
		if e, ok := event.(BalanceEvent); ok {
			cp := e
			b.lastBalance = &cp
		}
	case ChannelStatus:
		if e, ok := event.(StatusEvent); ok {
			cp := e
			b.lastStatus = &cp
		}
	}
}

// GetSnapshot returns a consistent copy of the bus's retained state.
func (b *Bus) GetSnapshot() Snapshot {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()

	openPositions := make(map[string]PositionEvent, len(b.openPositions))
	for k, v := range b.openPositions {
		openPositions[k] = v
	}
	tradeHistory := make([]TradeEvent, len(b.tradeHistory))
	copy(tradeHistory, b.tradeHistory)
	lastTick := make(map[string]TickEvent, len(b.lastTick))
	for k, v := range b.lastTick {
		lastTick[k] = v
	}

	var balance *BalanceEvent
	if b.lastBalance != nil {
		cp := *b.lastBalance
		balance = &cp
	}
	var status *StatusEvent
	if b.lastStatus != nil {
		cp := *b.lastStatus
		status = &cp
	}

	return Snapshot{
		OpenPositions: openPositions,
		TradeHistory:  tradeHistory,
		Balance:       balance,
		Status:        status,
		LastTick:      lastTick,
	}
}

// Stop is idempotent and releases no resources today since delivery is
// synchronous, but exists so callers can treat the bus like the engine's
// other long-lived components during shutdown sequencing.
func (b *Bus) Stop() {
	b.once.Do(func() { close(b.stopped) })
}
