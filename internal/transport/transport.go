// Package transport maintains the single persistent duplex connection to
// the Deriv exchange: connect/authorize/subscribe, request/response
// correlation via req_id, reconnect with exponential backoff, and a health
// loop.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/internal/errs"
)

// ConnState is the Transport's connection state machine position.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateAuthorizing
	StateReady
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthorizing:
		return "AUTHORIZING"
	case StateReady:
		return "READY"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Config parameterizes reconnect/health-loop behavior. Defaults match the
// spec's authoritative thresholds.
type Config struct {
	Endpoint string
	AppID    string

	AuthorizeTimeout time.Duration
	HistoryTimeout   time.Duration
	BuyTimeout       time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMaxAttempts  int

	HealthInterval      time.Duration
	HealthJitterMin     time.Duration
	HealthJitterMax     time.Duration
	HealthMissedLimit   int
	HealthGracePeriod   time.Duration

	PendingRequestTTL     time.Duration
	PendingRequestSweep   time.Duration
	PendingRequestWarnLen int
}

// DefaultConfig returns the spec's authoritative transport defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:              "wss://ws.derivws.com/websockets/v3",
		AppID:                 "1089",
		AuthorizeTimeout:      30 * time.Second,
		HistoryTimeout:        10 * time.Second,
		BuyTimeout:            30 * time.Second,
		ReconnectInitialDelay: 5 * time.Second,
		ReconnectMaxDelay:     60 * time.Second,
		ReconnectMaxAttempts:  5,
		HealthInterval:        60 * time.Second,
		HealthJitterMin:       10 * time.Second,
		HealthJitterMax:       20 * time.Second,
		HealthMissedLimit:     3,
		HealthGracePeriod:     10 * time.Second,
		PendingRequestTTL:     60 * time.Second,
		PendingRequestSweep:   30 * time.Second,
		PendingRequestWarnLen: 50,
	}
}

// TickCallback is invoked for every tick delivered on a ticks subscription.
type TickCallback func(symbol string, price, timestamp float64)

// ContractCallback is invoked for every proposal_open_contract update.
type ContractCallback func(msg json.RawMessage)

type pendingRequest struct {
	reqID     int64
	createdAt time.Time
	response  chan json.RawMessage
}

type subscriptionRecord struct {
	symbol   string
	callback TickCallback
}

// Transport owns the connection, subscription tables, and in-flight
// correlation table. No mutable state here is shared with any other
// component except via explicit thread-safe methods on Transport itself.
type Transport struct {
	cfg    Config
	logger *zap.Logger

	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	reqSeq int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest

	subMu             sync.RWMutex
	tickSubscriptions map[string]*subscriptionRecord
	contractCallback  ContractCallback

	token, fallbackToken string

	closeOnce sync.Once
	closeChan chan struct{}

	onFatal func(error)

	missedPings atomic.Int32
}

// New constructs a Transport. Call Connect to establish the connection.
func New(cfg Config, logger *zap.Logger) *Transport {
	return &Transport{
		cfg:               cfg,
		logger:            logger.Named("transport"),
		pending:           make(map[int64]*pendingRequest),
		tickSubscriptions: make(map[string]*subscriptionRecord),
		closeChan:         make(chan struct{}),
	}
}

// SetOnFatal registers the callback invoked when reconnect attempts are
// exhausted and the transport gives up.
func (t *Transport) SetOnFatal(fn func(error)) { t.onFatal = fn }

// State returns the current connection state.
func (t *Transport) State() ConnState { return ConnState(t.state.Load()) }

func (t *Transport) setState(s ConnState) { t.state.Store(int32(s)) }

// wsURL builds the full Deriv websocket endpoint including app_id.
func (t *Transport) wsURL() string {
	return fmt.Sprintf("%s?app_id=%s", t.cfg.Endpoint, t.cfg.AppID)
}

// Connect establishes the connection, starts the receive loop and health
// loop, and authorizes with token. fallbackToken, if non-empty, is used if
// token is rejected as invalid.
func (t *Transport) Connect(ctx context.Context, token, fallbackToken string) error {
	t.token, t.fallbackToken = token, fallbackToken

	if err := t.dial(); err != nil {
		return err
	}

	go t.readPump()
	go t.healthLoop()
	go t.pendingReaper()

	return t.authorize(ctx, token)
}

func (t *Transport) dial() error {
	t.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.Dial(t.wsURL(), nil)
	if err != nil {
		t.setState(StateDisconnected)
		return &errs.TransportError{Op: "dial", Err: err}
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.setState(StateConnected)
	return nil
}

// authorize sends the authorize request and waits (bounded) for a response.
// InvalidToken is not retried; it falls back to the configured alternate
// token, if any.
func (t *Transport) authorize(ctx context.Context, token string) error {
	t.setState(StateAuthorizing)

	respCh, reqID := t.newPending()
	t.send(map[string]interface{}{"authorize": token, "req_id": reqID})

	select {
	case raw := <-respCh:
		var resp struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return &errs.TransportError{Op: "authorize-decode", Err: err}
		}
		if resp.Error != nil {
			if resp.Error.Code == "InvalidToken" {
				if t.fallbackToken != "" && token != t.fallbackToken {
					t.logger.Warn("invalid token, falling back to alternate account")
					return t.authorize(ctx, t.fallbackToken)
				}
				return &errs.AuthError{InvalidToken: true, Err: fmt.Errorf(resp.Error.Message)}
			}
			return &errs.AuthError{Err: fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)}
		}
		t.setState(StateReady)
		t.send(map[string]interface{}{"balance": 1, "subscribe": 1, "req_id": t.nextReqID()})
		return nil
	case <-time.After(t.cfg.AuthorizeTimeout):
		return &errs.TransportError{Op: "authorize", Err: fmt.Errorf("timed out after %s", t.cfg.AuthorizeTimeout)}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) nextReqID() int64 {
	return atomic.AddInt64(&t.reqSeq, 1)
}

func (t *Transport) newPending() (chan json.RawMessage, int64) {
	reqID := t.nextReqID()
	ch := make(chan json.RawMessage, 1)

	t.pendingMu.Lock()
	t.pending[reqID] = &pendingRequest{reqID: reqID, createdAt: time.Now(), response: ch}
	depth := len(t.pending)
	t.pendingMu.Unlock()

	if depth > t.cfg.PendingRequestWarnLen {
		t.logger.Warn("pending request table deep", zap.Int("depth", depth))
	}
	return ch, reqID
}

func (t *Transport) send(payload map[string]interface{}) {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.WriteJSON(payload); err != nil {
		t.logger.Warn("send failed", zap.Error(err))
	}
}

// SubscribeTicks registers interest in symbol's tick stream. Idempotent:
// re-subscribing updates the handler without creating a duplicate
// subscription.
func (t *Transport) SubscribeTicks(symbol string, cb TickCallback) {
	t.subMu.Lock()
	t.tickSubscriptions[symbol] = &subscriptionRecord{symbol: symbol, callback: cb}
	t.subMu.Unlock()

	t.send(map[string]interface{}{"ticks": symbol, "subscribe": 1, "req_id": t.nextReqID()})
}

// UnsubscribeTicks removes symbol's subscription record and tells the
// exchange to forget it.
func (t *Transport) UnsubscribeTicks(symbol string) {
	t.subMu.Lock()
	delete(t.tickSubscriptions, symbol)
	t.subMu.Unlock()

	t.send(map[string]interface{}{"forget_all": "ticks", "req_id": t.nextReqID()})
}

// UnsubscribeAllTicks clears every tick subscription.
func (t *Transport) UnsubscribeAllTicks() {
	t.subMu.Lock()
	t.tickSubscriptions = make(map[string]*subscriptionRecord)
	t.subMu.Unlock()

	t.send(map[string]interface{}{"forget_all": "ticks", "req_id": t.nextReqID()})
}

// GetTicksHistory blocks the caller up to timeout for a bounded history
// slice of count ticks.
func (t *Transport) GetTicksHistory(ctx context.Context, symbol string, count int, timeout time.Duration) ([]float64, error) {
	respCh, reqID := t.newPending()
	t.send(map[string]interface{}{
		"ticks_history": symbol,
		"count":         count,
		"end":           "latest",
		"style":         "ticks",
		"req_id":        reqID,
	})

	select {
	case raw := <-respCh:
		var resp struct {
			History struct {
				Prices []float64 `json:"prices"`
			} `json:"history"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &errs.TransportError{Op: "ticks_history-decode", Err: err}
		}
		return resp.History.Prices, nil
	case <-time.After(timeout):
		return nil, &errs.TransportError{Op: "ticks_history", Err: fmt.Errorf("timed out")}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubscribeContract streams contract status until settlement.
func (t *Transport) SubscribeContract(contractID string, cb ContractCallback) {
	t.subMu.Lock()
	t.contractCallback = cb
	t.subMu.Unlock()

	t.send(map[string]interface{}{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
		"subscribe":               1,
		"req_id":                  t.nextReqID(),
	})
}

// BuyContract sends a buy request and returns the raw response (the caller
// decodes contract_id, buy_price, and longcode). The correlation between
// request and response uses the monotonic req_id.
func (t *Transport) BuyContract(ctx context.Context, direction, symbol string, stake float64, duration int, durationUnit string) (json.RawMessage, error) {
	respCh, reqID := t.newPending()
	t.send(map[string]interface{}{
		"buy":   1,
		"price": stake,
		"parameters": map[string]interface{}{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": direction,
			"currency":      "USD",
			"duration":      duration,
			"duration_unit": durationUnit,
			"symbol":        symbol,
		},
		"req_id": reqID,
	})

	select {
	case raw := <-respCh:
		return raw, nil
	case <-time.After(t.cfg.BuyTimeout):
		return nil, &errs.InternalTimeout{Op: "buy", Elapsed: t.cfg.BuyTimeout.String()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect stops loops, closes the connection, and clears subscription
// tables.
func (t *Transport) Disconnect() {
	t.closeOnce.Do(func() { close(t.closeChan) })

	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	t.subMu.Lock()
	t.tickSubscriptions = make(map[string]*subscriptionRecord)
	t.subMu.Unlock()

	t.pendingMu.Lock()
	t.pending = make(map[int64]*pendingRequest)
	t.pendingMu.Unlock()

	t.setState(StateDisconnected)
}

func (t *Transport) readPump() {
	for {
		select {
		case <-t.closeChan:
			return
		default:
		}

		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.logger.Warn("read failed, triggering reconnect", zap.Error(err))
			go t.handleDisconnect()
			return
		}
		t.handleMessage(raw)
	}
}

func (t *Transport) handleMessage(raw json.RawMessage) {
	var env struct {
		MsgType string `json:"msg_type"`
		ReqID   int64  `json:"req_id"`
		Tick    struct {
			Symbol string  `json:"symbol"`
			Quote  float64 `json:"quote"`
			Epoch  float64 `json:"epoch"`
		} `json:"tick"`
		ProposalOpenContract json.RawMessage `json:"proposal_open_contract"`
		Ping                 string          `json:"ping"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.logger.Debug("unparseable frame", zap.Error(err))
		return
	}

	if env.ReqID != 0 {
		t.pendingMu.Lock()
		if p, ok := t.pending[env.ReqID]; ok {
			delete(t.pending, env.ReqID)
			t.pendingMu.Unlock()
			p.response <- raw
			return
		}
		t.pendingMu.Unlock()
	}

	switch env.MsgType {
	case "tick":
		t.subMu.RLock()
		rec, ok := t.tickSubscriptions[env.Tick.Symbol]
		t.subMu.RUnlock()
		if ok && rec.callback != nil {
			rec.callback(env.Tick.Symbol, env.Tick.Quote, env.Tick.Epoch)
		}
	case "proposal_open_contract":
		t.subMu.RLock()
		cb := t.contractCallback
		t.subMu.RUnlock()
		if cb != nil {
			cb(env.ProposalOpenContract)
		}
	case "ping":
		t.missedPings.Store(0)
	}
}

func (t *Transport) healthLoop() {
	for {
		jitter := t.cfg.HealthJitterMin + time.Duration(rand.Int63n(int64(t.cfg.HealthJitterMax-t.cfg.HealthJitterMin+1)))
		select {
		case <-time.After(t.cfg.HealthInterval + jitter):
		case <-t.closeChan:
			return
		}

		t.send(map[string]interface{}{"ping": 1, "req_id": t.nextReqID()})
		missed := t.missedPings.Add(1)
		if int(missed) >= t.cfg.HealthMissedLimit {
			time.Sleep(t.cfg.HealthGracePeriod)
			if t.missedPings.Load() >= int32(t.cfg.HealthMissedLimit) {
				t.logger.Warn("health check failed, forcing reconnect")
				go t.handleDisconnect()
				return
			}
		}
	}
}

func (t *Transport) pendingReaper() {
	ticker := time.NewTicker(t.cfg.PendingRequestSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			t.pendingMu.Lock()
			for id, p := range t.pending {
				if now.Sub(p.createdAt) > t.cfg.PendingRequestTTL {
					delete(t.pending, id)
				}
			}
			t.pendingMu.Unlock()
		case <-t.closeChan:
			return
		}
	}
}

// handleDisconnect is idempotent (guarded by the state check) and drives
// the exponential-backoff reconnect loop. It clears the pending-request
// correlation table but keeps the tick subscription table, which it
// replays after re-authorizing on success.
func (t *Transport) handleDisconnect() {
	if t.State() == StateReconnecting {
		return
	}
	t.setState(StateReconnecting)

	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	t.pendingMu.Lock()
	t.pending = make(map[int64]*pendingRequest)
	t.pendingMu.Unlock()

	delay := t.cfg.ReconnectInitialDelay
	for attempt := 1; attempt <= t.cfg.ReconnectMaxAttempts; attempt++ {
		select {
		case <-t.closeChan:
			return
		case <-time.After(delay):
		}

		if err := t.dial(); err != nil {
			t.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			delay *= 2
			if delay > t.cfg.ReconnectMaxDelay {
				delay = t.cfg.ReconnectMaxDelay
			}
			continue
		}

		go t.readPump()

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AuthorizeTimeout)
		err := t.authorize(ctx, t.token)
		cancel()
		if err != nil {
			t.logger.Warn("re-authorize failed after reconnect", zap.Error(err))
			continue
		}

		t.resubscribeAll()
		t.logger.Info("reconnected", zap.Int("attempt", attempt))
		return
	}

	t.logger.Error("reconnect attempts exhausted, giving up")
	t.setState(StateDisconnected)
	if t.onFatal != nil {
		t.onFatal(&errs.TransportError{Op: "reconnect", Err: fmt.Errorf("exhausted %d attempts", t.cfg.ReconnectMaxAttempts)})
	}
}

func (t *Transport) resubscribeAll() {
	t.subMu.RLock()
	symbols := make([]string, 0, len(t.tickSubscriptions))
	for sym := range t.tickSubscriptions {
		symbols = append(symbols, sym)
	}
	t.subMu.RUnlock()

	for _, sym := range symbols {
		t.send(map[string]interface{}{"ticks": sym, "subscribe": 1, "req_id": t.nextReqID()})
	}
}
