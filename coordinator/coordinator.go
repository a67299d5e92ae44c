package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/payload"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/absmach/hubnspoke/pkg/transport"
)

const (
	keyEpoch      = "epoch"
	keyWeights    = "weights"
	keyValDice    = "val_mean_dice_scores"
	keyTrainLoss  = "train_loss_values"
	keyTestScores = report.TestDiceScoresKey
)

var (
	errNoCheckpoint = errors.New("no global checkpoint to test")
	errNoWeights    = errors.New("trained model carries no weights")
	errNoInit       = errors.New("no checkpoint and no model initializer")

	probeRequest   = map[string]string{"check": "check"}
	triggerRequest = map[string]string{"id": "server"}
	stopRequest    = map[string]string{"stop": "yes"}
)

var _ Service = (*coordinator)(nil)

type coordinator struct {
	modelID string
	node    Node
	deps    Deps
	logger  *slog.Logger
}

func New(modelID string, node Node, deps Deps, logger *slog.Logger) Service {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}

	return &coordinator{
		modelID: modelID,
		node:    node,
		deps:    deps,
		logger:  logger.With(slog.String("trust_name", node.Name)),
	}
}

func (c *coordinator) Node() Node {
	return c.node
}

func (c *coordinator) Probe(ctx context.Context) ProbeResult {
	res := ProbeResult{Node: c.node, Status: StatusDead}

	c.logger.DebugContext(ctx, "checking fl node status")
	resp, err := c.call(ctx, transport.NodeStatus, probeRequest)
	switch {
	case err != nil:
		res.Err = err
	case !resp.IsStatus():
		res.Err = fmt.Errorf("%w: status reply with fields %v", payload.ErrUnexpectedType, resp.Keys())
	default:
		res.Status = resp.Status()
	}

	if res.Err != nil {
		c.logger.InfoContext(ctx, "returned status: dead", slog.Any("error", res.Err))

		return res
	}
	c.logger.InfoContext(ctx, "returned status: "+res.Status)

	return res
}

func (c *coordinator) Bootstrap(ctx context.Context, round int) Result {
	return c.stage(ctx, round, StageInitStarted, StageInitCompleted, func(ctx context.Context, logger *slog.Logger) error {
		weights, err := c.globalWeights(ctx, logger)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "sending the current model", slog.Int("layers", len(weights)))
		resp, err := c.call(ctx, transport.ModelTransfer, weights)
		if err != nil {
			return err
		}

		return expectStatus(transport.ModelTransfer, resp, replyModelReceived)
	})
}

func (c *coordinator) Train(ctx context.Context, round int) Result {
	return c.stage(ctx, round, StageTrainStarted, StageTrainCompleted, func(ctx context.Context, logger *slog.Logger) error {
		logger.InfoContext(ctx, "sending the training request")
		resp, err := c.call(ctx, transport.MessageTransfer, triggerRequest)
		if err != nil {
			return err
		}

		return expectStatus(transport.MessageTransfer, resp, replyTrainingComplete)
	})
}

func (c *coordinator) Aggregate(ctx context.Context, round int, acc *fl.Accumulator) Result {
	return c.stage(ctx, round, StageAggregateStarted, StageAggregateComplete, func(ctx context.Context, logger *slog.Logger) error {
		logger.InfoContext(ctx, "sending the request for the trained model")
		resp, err := c.call(ctx, transport.TrainedModel, triggerRequest)
		if err != nil {
			return err
		}
		if resp.IsStatus() {
			return &NodeError{Method: transport.TrainedModel, Response: resp.Status()}
		}
		if !resp.Has(keyWeights) {
			return &NodeError{Method: transport.TrainedModel, Err: errNoWeights}
		}
		logger.InfoContext(ctx, "received the trained model")

		rec := report.Record{}
		var weights checkpoint.Weights
		for _, key := range resp.Keys() {
			switch key {
			case keyEpoch:
				var epoch any
				if err := resp.Field(key, &epoch); err != nil {
					return &NodeError{Method: transport.TrainedModel, Err: err}
				}
				logger.InfoContext(ctx, "local epochs", slog.Any(key, epoch))
			case keyWeights:
				if err := resp.Field(key, &weights); err != nil {
					return &NodeError{Method: transport.TrainedModel, Err: err}
				}
				if err := weights.Validate(); err != nil {
					return &NodeError{Method: transport.TrainedModel, Err: err}
				}
			case keyValDice, keyTrainLoss:
				var v any
				if err := resp.Field(key, &v); err != nil {
					return &NodeError{Method: transport.TrainedModel, Err: err}
				}
				logger.InfoContext(ctx, "training metrics received", slog.Any(key, v))
				rec[key] = v
			default:
				logger.WarnContext(ctx, "unknown data received from the node", slog.String("key", key))
			}
		}

		// A record the report would refuse must not reach the global model.
		if err := c.deps.Reports.Check(c.node.Name, rec); err != nil {
			return &localError{err: err}
		}

		logger.InfoContext(ctx, "adding weights to the accumulator", slog.Int("layers", len(weights)))
		out, err := acc.Add(ctx, c.node.Name, weights)
		if err != nil {
			return &localError{err: err}
		}
		if out.Aggregated {
			logger.InfoContext(ctx, "global model updated", slog.Int("contributions", out.Contributions))
		}

		logger.InfoContext(ctx, "writing training results", slog.Any("keys", rec.Keys()))
		if _, err := c.deps.Reports.AppendOrCreate(c.node.Name, rec); err != nil {
			return &localError{err: err}
		}

		return nil
	})
}

func (c *coordinator) Test(ctx context.Context, round int) Result {
	return c.stage(ctx, round, StageTestStarted, StageTestCompleted, func(ctx context.Context, logger *slog.Logger) error {
		// Scores can only be stored next to an existing training report.
		if _, err := c.deps.Reports.Get(c.node.Name); err != nil {
			return &localError{err: err}
		}
		cpt, err := c.deps.Checkpoints.Load(ctx)
		if err != nil {
			return &localError{err: err}
		}
		if cpt == nil {
			return &localError{err: errNoCheckpoint}
		}

		logger.InfoContext(ctx, "sending the test request")
		resp, err := c.call(ctx, transport.ReportTransfer, cpt.Weights)
		if err != nil {
			return err
		}
		if resp.IsStatus() {
			return &NodeError{Method: transport.ReportTransfer, Response: resp.Status()}
		}

		var scores any
		if err := resp.Field(keyTestScores, &scores); err != nil {
			return &NodeError{Method: transport.ReportTransfer, Err: err}
		}
		logger.InfoContext(ctx, "test results received", slog.Any(keyTestScores, scores))

		if _, err := c.deps.Reports.PatchTestResult(c.node.Name, scores); err != nil {
			return &localError{err: err}
		}

		return nil
	})
}

func (c *coordinator) Stop(ctx context.Context, round int) Result {
	return c.stage(ctx, round, StageFederationDone, "", func(ctx context.Context, logger *slog.Logger) error {
		logger.InfoContext(ctx, "sending the stop message")
		resp, err := c.call(ctx, transport.StopMessage, stopRequest)
		if err != nil {
			return err
		}

		return expectStatus(transport.StopMessage, resp, replyStopping)
	})
}

type stageFunc func(ctx context.Context, logger *slog.Logger) error

// stage gates fn on the liveness probe and turns its error into a Result.
// An empty completed label keeps the started one on success.
func (c *coordinator) stage(ctx context.Context, round int, started, completed Stage, fn stageFunc) Result {
	res := Result{Node: c.node, Stage: started}
	logger := c.stageLogger(round, started)

	probe := c.Probe(ctx)
	res.Status = probe.Status
	if !probe.Alive() {
		res.Outcome = OutcomeSkipped
		res.Err = probe.Err
		logger.InfoContext(ctx, "node is not alive, stage skipped", slog.String("node_status", probe.Status))

		return res
	}

	begin := time.Now()
	c.notify(ctx, round, res)

	err := fn(ctx, logger)
	res.Outcome = classify(err)
	res.Err = err
	if err != nil {
		logger.WarnContext(ctx, "stage failed",
			slog.String("outcome", res.Outcome.String()),
			slog.String("duration", time.Since(begin).String()),
			slog.Any("error", err),
		)
		c.notify(ctx, round, res)

		return res
	}

	if completed != "" {
		res.Stage = completed
		logger = c.stageLogger(round, completed)
	}
	logger.InfoContext(ctx, "stage completed", slog.String("duration", time.Since(begin).String()))
	c.notify(ctx, round, res)

	return res
}

func (c *coordinator) stageLogger(round int, stage Stage) *slog.Logger {
	return c.logger.With(
		slog.Int("round", round),
		slog.String("status", stage.String()),
	)
}

func (c *coordinator) call(ctx context.Context, method transport.Method, req any) (payload.Response, error) {
	body, err := payload.Encode(req)
	if err != nil {
		return payload.Response{}, &localError{err: err}
	}

	data, err := c.deps.Caller.Call(ctx, c.node.Address, method, body)
	if err != nil {
		if !transport.IsCallError(err) {
			err = &transport.CallError{Method: method, Address: c.node.Address, Err: err}
		}

		return payload.Response{}, err
	}

	resp, err := payload.DecodeResponse(data)
	if err != nil {
		return payload.Response{}, &NodeError{Method: method, Err: err}
	}

	return resp, nil
}

// globalWeights returns the stored checkpoint weights, initializing a new
// model when none has been saved yet.
func (c *coordinator) globalWeights(ctx context.Context, logger *slog.Logger) (checkpoint.Weights, error) {
	cpt, err := c.deps.Checkpoints.Load(ctx)
	if err != nil {
		return nil, &localError{err: err}
	}
	if cpt != nil {
		logger.InfoContext(ctx, "buffering the current model")

		return cpt.Weights, nil
	}

	if c.deps.Initializer == nil {
		return nil, &localError{err: errNoInit}
	}
	logger.InfoContext(ctx, "initial model does not exist, initializing a new one")
	weights, err := c.deps.Initializer.Initialize(ctx)
	if err != nil {
		return nil, &localError{err: fmt.Errorf("failed to initialize model: %w", err)}
	}

	return weights, nil
}

func (c *coordinator) notify(ctx context.Context, round int, res Result) {
	ev := Event{
		ModelID: c.modelID,
		Node:    c.node.Name,
		Round:   round,
		Stage:   res.Stage,
		Time:    time.Now().UTC(),
	}
	if res.Outcome != OutcomeSkipped {
		ev.Outcome = res.Outcome.String()
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if err := c.deps.Notifier.Notify(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "failed to publish stage event", slog.String("stage", res.Stage.String()), slog.Any("error", err))
	}
}

func expectStatus(method transport.Method, resp payload.Response, want string) error {
	if !resp.IsStatus() {
		return &NodeError{Method: method, Response: "{" + strings.Join(resp.Keys(), ",") + "}"}
	}
	if resp.Status() != want {
		return &NodeError{Method: method, Response: resp.Status()}
	}

	return nil
}
