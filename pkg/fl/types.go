// Package fl holds the hub-side federated-learning primitives: the
// aggregation engine contract, the shared weight accumulator, fresh model
// initialization and the round history.
package fl

import (
	"context"
	"time"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
)

// Aggregator combines local weight collections into one global collection.
// Implementations must accept the updates in any order.
type Aggregator interface {
	Aggregate(ctx context.Context, updates []checkpoint.Weights) (checkpoint.Weights, error)
}

// Initializer produces model weights when no checkpoint exists yet.
type Initializer interface {
	Initialize(ctx context.Context) (checkpoint.Weights, error)
}

// Update is one node's contribution to a round.
type Update struct {
	Contributor string
	Weights     checkpoint.Weights
	ReceivedAt  time.Time
}

// RoundSummary records what happened in one federation round.
type RoundSummary struct {
	RoundID       string        `json:"round_id"`
	ModelID       string        `json:"model_id"`
	Round         int           `json:"round"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Contributions int           `json:"contributions"`
	Aggregated    bool          `json:"aggregated"`
	Nodes         []NodeOutcome `json:"nodes"`
}

type NodeOutcome struct {
	Node    string `json:"node"`
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}
