package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
	"github.com/dzakiart/derivengine/pkg/mathutil"
)

const terminalDigitWindow = 20

// TerminalStrategy tracks the parity (even/odd) of each tick's last
// significant digit over a rolling window and trades a bias when one
// parity dominates recent history, mirroring a digit-bias play on terminal
// contracts.
type TerminalStrategy struct {
	logger *zap.Logger

	mu      sync.Mutex
	parity  []bool // true = even last digit
	ticks   int
}

// NewTerminalStrategy constructs a fresh TerminalStrategy instance.
func NewTerminalStrategy(logger *zap.Logger) *TerminalStrategy {
	return &TerminalStrategy{logger: logger.Named("strategy.terminal")}
}

// Name returns the strategy's registry name.
func (s *TerminalStrategy) Name() string { return "terminal" }

// AddTick derives the last digit of price (scaled to an integer pip count)
// and records its parity.
func (s *TerminalStrategy) AddTick(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return
	}
	s.ticks++

	scaled := int64(math.Round(price * 100))
	digit := scaled % 10
	if digit < 0 {
		digit = -digit
	}
	s.parity = append(s.parity, digit%2 == 0)
	if len(s.parity) > terminalDigitWindow {
		s.parity = s.parity[1:]
	}
}

// ClearHistory resets the strategy to its initial state.
func (s *TerminalStrategy) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = 0
	s.parity = nil
}

// Analyze returns a bias signal when one digit parity has clearly
// dominated the rolling window; this strategy carries no inherent CALL/PUT
// semantics (it is typically routed into digit-based contracts rather than
// rise/fall), so it encodes the bias as CALL for even-dominance and PUT
// for odd-dominance for interface compatibility with the other producers.
func (s *TerminalStrategy) Analyze() domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	if len(s.parity) < terminalDigitWindow {
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "warming up", GeneratedAt: now}
	}

	evens := 0
	for _, e := range s.parity {
		if e {
			evens++
		}
	}
	ratio := float64(evens) / float64(len(s.parity))

	const biasBand = 0.65
	switch {
	case ratio >= biasBand:
		return domain.Signal{
			Direction:          domain.DirectionCall,
			Confidence:         mathutil.Clamp(decimal.NewFromFloat(0.5+(ratio-biasBand)), decimal.Zero, decimal.NewFromInt(1)),
			Reason:             "even-digit parity dominance",
			IndicatorsSnapshot: map[string]decimal.Decimal{"even_ratio": decimal.NewFromFloat(ratio)},
			GeneratedAt:        now,
		}
	case ratio <= 1-biasBand:
		return domain.Signal{
			Direction:          domain.DirectionPut,
			Confidence:         mathutil.Clamp(decimal.NewFromFloat(0.5+(biasBand-ratio)), decimal.Zero, decimal.NewFromInt(1)),
			Reason:             "odd-digit parity dominance",
			IndicatorsSnapshot: map[string]decimal.Decimal{"even_ratio": decimal.NewFromFloat(ratio)},
			GeneratedAt:        now,
		}
	default:
		return domain.Signal{Direction: domain.DirectionWait, Confidence: decimal.NewFromFloat(0.25), Reason: "no parity bias", GeneratedAt: now}
	}
}
