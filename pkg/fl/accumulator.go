package fl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
)

// CommitFunc persists a freshly aggregated global model. It runs while the
// accumulator lock is held, so commits never interleave.
type CommitFunc func(ctx context.Context, global checkpoint.Weights) error

// Outcome describes the accumulator state after an Add or Flush.
type Outcome struct {
	Contributions int
	Aggregated    bool
	Global        checkpoint.Weights
}

// Accumulator collects the weights of one round.
//
// With a quorum of zero every Add aggregates everything collected so far and
// commits the result. With a positive quorum aggregation happens once, when
// the quorum is reached (or on Flush), and further contributions are refused
// until Reset.
type Accumulator struct {
	mu         sync.Mutex
	aggregator Aggregator
	commit     CommitFunc
	quorum     int
	updates    []Update
	dirty      bool
	closed     bool
	rounds     int
}

func NewAccumulator(aggregator Aggregator, quorum int, commit CommitFunc) *Accumulator {
	if quorum < 0 {
		quorum = 0
	}

	return &Accumulator{
		aggregator: aggregator,
		commit:     commit,
		quorum:     quorum,
	}
}

func (a *Accumulator) Quorum() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.quorum
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.updates)
}

// Aggregations counts the successful aggregations since the last Reset.
func (a *Accumulator) Aggregations() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.rounds
}

// Contributors lists who added weights this round, in arrival order.
func (a *Accumulator) Contributors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.updates))
	for i, u := range a.updates {
		out[i] = u.Contributor
	}

	return out
}

// Add appends a deep copy of w and aggregates when due.
func (a *Accumulator) Add(ctx context.Context, contributor string, w checkpoint.Weights) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Outcome{Contributions: len(a.updates)}, ErrRoundClosed
	}
	for _, u := range a.updates {
		if u.Contributor == contributor {
			return Outcome{Contributions: len(a.updates)}, fmt.Errorf("%w: %s", ErrDuplicateContribution, contributor)
		}
	}

	a.updates = append(a.updates, Update{
		Contributor: contributor,
		Weights:     w.Clone(),
		ReceivedAt:  time.Now(),
	})
	a.dirty = true

	if a.quorum > 0 && len(a.updates) < a.quorum {
		return Outcome{Contributions: len(a.updates)}, nil
	}

	out, err := a.aggregate(ctx)
	if err != nil {
		if out.Global == nil {
			// The new update could not be combined with the others.
			a.updates = a.updates[:len(a.updates)-1]
			a.dirty = a.quorum > 0 && len(a.updates) > 0
		}
		out.Contributions = len(a.updates)

		return out, err
	}
	if a.quorum > 0 {
		a.closed = true
	}

	return out, nil
}

// Flush aggregates pending contributions, if any, and closes the round.
func (a *Accumulator) Flush(ctx context.Context) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.dirty || len(a.updates) == 0 {
		return Outcome{Contributions: len(a.updates)}, nil
	}

	out, err := a.aggregate(ctx)
	if err != nil {
		return out, err
	}
	a.closed = true

	return out, nil
}

// Reset drops every contribution so the next round starts empty.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updates = nil
	a.dirty = false
	a.closed = false
	a.rounds = 0
}

func (a *Accumulator) aggregate(ctx context.Context) (Outcome, error) {
	weights := make([]checkpoint.Weights, len(a.updates))
	for i, u := range a.updates {
		weights[i] = u.Weights
	}

	global, err := a.aggregator.Aggregate(ctx, weights)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to aggregate %d updates: %w", len(weights), err)
	}

	out := Outcome{Contributions: len(a.updates), Global: global}
	if a.commit != nil {
		if err := a.commit(ctx, global); err != nil {
			return out, fmt.Errorf("failed to commit aggregated weights: %w", err)
		}
	}
	a.dirty = false
	a.rounds++
	out.Aggregated = true

	return out, nil
}
