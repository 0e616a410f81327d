// Package recovery persists the Trade Manager's session state to a
// durable JSON record so a restart can resume an in-progress sequence
// rather than starting cold.
package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// maxAge is how old a recovery record may be before it is considered
// stale and discarded rather than restored.
const maxAge = 30 * time.Minute

// record is the on-disk shape of a persisted session; field names follow
// the original engine's journal convention.
type record struct {
	Symbol            string          `json:"symbol"`
	BaseStake         decimal.Decimal `json:"base_stake"`
	CurrentStake      decimal.Decimal `json:"current_stake"`
	Duration          int             `json:"duration"`
	DurationUnit      string          `json:"duration_unit"`
	TargetTrades      int             `json:"target_trades"`
	Total             int             `json:"total"`
	Wins              int             `json:"wins"`
	Losses            int             `json:"losses"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	StartingBalance   decimal.Decimal `json:"starting_balance"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	PeakBalance       decimal.Decimal `json:"peak_balance"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	MartingaleLevel   int             `json:"martingale_level"`
	InSequence        bool            `json:"in_sequence"`
	CumulativeLoss    decimal.Decimal `json:"cumulative_loss"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	DailyLoss         decimal.Decimal `json:"daily_loss"`
	SavedAt           time.Time       `json:"saved_at"`
}

// Store atomically persists and restores a SessionState for one recovery
// file path.
type Store struct {
	logger *zap.Logger
	path   string
}

// NewStore constructs a Store writing to path (e.g. "./data/session.json").
func NewStore(logger *zap.Logger, path string) *Store {
	return &Store{logger: logger.Named("recovery"), path: path}
}

// Save writes state to disk via temp-file-then-rename so a crash mid-write
// never leaves a corrupt record in place.
func (s *Store) Save(state domain.SessionState) error {
	rec := record{
		Symbol:            state.Symbol,
		BaseStake:         state.BaseStake,
		CurrentStake:      state.CurrentStake,
		Duration:          state.Duration,
		DurationUnit:      string(state.DurationUnit),
		TargetTrades:      state.TargetTrades,
		Total:             state.Stats.Total,
		Wins:              state.Stats.Wins,
		Losses:            state.Stats.Losses,
		TotalProfit:       state.Stats.TotalProfit,
		StartingBalance:   state.Stats.StartingBalance,
		CurrentBalance:    state.Stats.CurrentBalance,
		PeakBalance:       state.Stats.PeakBalance,
		MaxDrawdown:       state.Stats.MaxDrawdown,
		MartingaleLevel:   state.Martingale.Level,
		InSequence:        state.Martingale.InSequence,
		CumulativeLoss:    state.Martingale.CumulativeLoss,
		ConsecutiveLosses: state.Risk.ConsecutiveLosses,
		DailyLoss:         state.Risk.DailyLoss,
		SavedAt:           time.Now(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recovery record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recovery dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recovery-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp recovery file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp recovery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp recovery file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename recovery file: %w", err)
	}

	return nil
}

// Load restores a session if the record exists, is younger than maxAge,
// and is internally consistent. A missing, expired, or corrupt record
// returns a zero SessionState and no error: recovery falls back to a
// fresh start, and the stale artifact is deleted.
func (s *Store) Load(minStake decimal.Decimal, maxMartingaleLevel int) (domain.SessionState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.SessionState{}, false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("recovery record corrupt, discarding", zap.Error(err))
		os.Remove(s.path)
		return domain.SessionState{}, false
	}

	if time.Since(rec.SavedAt) >= maxAge {
		s.logger.Info("recovery record expired, discarding", zap.Time("savedAt", rec.SavedAt))
		os.Remove(s.path)
		return domain.SessionState{}, false
	}

	state := domain.SessionState{
		Symbol:       rec.Symbol,
		BaseStake:    rec.BaseStake,
		CurrentStake: rec.CurrentStake,
		Duration:     rec.Duration,
		DurationUnit: domain.DurationUnit(rec.DurationUnit),
		TargetTrades: rec.TargetTrades,
		Stats: domain.AggregateStats{
			Total: rec.Total, Wins: rec.Wins, Losses: rec.Losses,
			TotalProfit: rec.TotalProfit, StartingBalance: rec.StartingBalance,
			CurrentBalance: rec.CurrentBalance, PeakBalance: rec.PeakBalance, MaxDrawdown: rec.MaxDrawdown,
		},
		Martingale: domain.MartingaleState{
			Level: rec.MartingaleLevel, InSequence: rec.InSequence, CumulativeLoss: rec.CumulativeLoss,
		},
		Risk: domain.RiskState{
			ConsecutiveLosses: rec.ConsecutiveLosses, DailyLoss: rec.DailyLoss,
		},
		State:   domain.StateIdle,
		SavedAt: rec.SavedAt,
	}

	if !state.Consistent(minStake, maxMartingaleLevel) {
		s.logger.Warn("recovery record failed consistency check, discarding")
		os.Remove(s.path)
		return domain.SessionState{}, false
	}

	return state, true
}

// Clear deletes the recovery record; called on normal session completion.
func (s *Store) Clear() {
	os.Remove(s.path)
}
