package coordinator

import (
	"errors"
	"fmt"

	"github.com/absmach/hubnspoke/pkg/transport"
)

// Outcome classifies how a stage operation ended.
type Outcome int

const (
	// OutcomeSkipped means the probe did not report the node alive.
	OutcomeSkipped Outcome = iota
	OutcomeOK
	// OutcomeNodeError means the spoke answered, but not as expected.
	OutcomeNodeError
	// OutcomeTransportError means the call itself failed.
	OutcomeTransportError
	// OutcomeLocalError means hub-side persistence or aggregation failed.
	OutcomeLocalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeOK:
		return "ok"
	case OutcomeNodeError:
		return "node_error"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeLocalError:
		return "local_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what every stage operation hands back to its driver.
type Result struct {
	Node    Node
	Stage   Stage
	Outcome Outcome
	// Status is the liveness token observed before the call.
	Status string
	Err    error
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// NodeError reports an application-level failure of a spoke: it answered,
// but with something other than the expected reply.
type NodeError struct {
	Method   transport.Method
	Response string
	Err      error
}

func (e *NodeError) Error() string {
	switch {
	case e.Err != nil && e.Response != "":
		return fmt.Sprintf("node exception: %s replied %q: %v", e.Method, e.Response, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("node exception: %s: %v", e.Method, e.Err)
	default:
		return fmt.Sprintf("node exception: %s replied %q", e.Method, e.Response)
	}
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// localError marks hub-side failures.
type localError struct {
	err error
}

func (e *localError) Error() string {
	return e.err.Error()
}

func (e *localError) Unwrap() error {
	return e.err
}

func classify(err error) Outcome {
	var nodeErr *NodeError
	var local *localError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &local):
		return OutcomeLocalError
	case errors.As(err, &nodeErr):
		return OutcomeNodeError
	case transport.IsCallError(err):
		return OutcomeTransportError
	default:
		return OutcomeLocalError
	}
}
