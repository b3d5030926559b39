package metrics

import (
	"time"

	"github.com/ihavespoons/agentrun/internal/logger"
)

// budgetWindow is the trailing window the gate sums usage over.
const budgetWindow = 24 * time.Hour

// Gate prevents starting an agent run once the rolling daily token
// ceiling is met. A zero or negative limit disables the gate.
type Gate struct {
	store *Store
	limit int64
	now   func() time.Time
}

// NewGate creates a budget gate over the given store.
func NewGate(store *Store, dailyTokenLimit int64) *Gate {
	return &Gate{
		store: store,
		limit: dailyTokenLimit,
		now:   time.Now,
	}
}

// Check reports whether a new run may start. Store read failures fail
// open: storage problems must never block execution outright.
func (g *Gate) Check() bool {
	if g.limit <= 0 {
		return true
	}

	used, err := g.store.SumTokensSince(g.now().Add(-budgetWindow))
	if err != nil {
		logger.Warn().Err(err).Msg("Budget check failed, allowing run")
		return true
	}

	if used >= g.limit {
		logger.Info().
			Int64("tokens_used", used).
			Int64("daily_limit", g.limit).
			Msg("Daily token budget exhausted")
		return false
	}
	return true
}
