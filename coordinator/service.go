package coordinator

import (
	"context"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/absmach/hubnspoke/pkg/transport"
)

const (
	StatusAlive = "alive"
	StatusDead  = "dead"

	replyModelReceived    = "model received"
	replyTrainingComplete = "training completed"
	replyStopping         = "stopping"
)

// Service drives one spoke through the round protocol.
//
// None of the stage operations return an error: the Result says how the
// stage ended and it is always safe to ignore it.
type Service interface {
	Node() Node

	// Probe asks the spoke for its status. Any failure reads as "dead".
	Probe(ctx context.Context) ProbeResult

	// Bootstrap sends the current global model, or a fresh one when no
	// checkpoint exists yet.
	Bootstrap(ctx context.Context, round int) Result

	// Train triggers local training.
	Train(ctx context.Context, round int) Result

	// Aggregate gathers the trained model, adds its weights to acc and merges
	// the reported metrics into the node's report.
	Aggregate(ctx context.Context, round int, acc *fl.Accumulator) Result

	// Test sends the global model for evaluation and stores the scores.
	Test(ctx context.Context, round int) Result

	// Stop tells the spoke the federation is over.
	Stop(ctx context.Context, round int) Result
}

type ProbeResult struct {
	Node   Node
	Status string
	Err    error
}

func (p ProbeResult) Alive() bool {
	return p.Status == StatusAlive
}

// Caller performs one unary call against a spoke.
type Caller interface {
	Call(ctx context.Context, address string, method transport.Method, payload []byte) ([]byte, error)
}

type CheckpointStore interface {
	Load(ctx context.Context) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, cpt checkpoint.Checkpoint) error
}

type ReportStore interface {
	Get(node string) (report.Report, error)
	Check(node string, rec report.Record) error
	AppendOrCreate(node string, rec report.Record) (report.Report, error)
	PatchTestResult(node string, scores any) (report.Report, error)
}

// Deps are shared by every coordinator of a federation.
type Deps struct {
	Caller      Caller
	Checkpoints CheckpointStore
	Reports     ReportStore
	Initializer fl.Initializer
	Notifier    Notifier
}

// CommitTo returns an accumulator commit hook writing the aggregated weights
// as the new global checkpoint.
func CommitTo(store CheckpointStore) fl.CommitFunc {
	return func(ctx context.Context, global checkpoint.Weights) error {
		return store.Save(ctx, checkpoint.Checkpoint{Weights: global})
	}
}
