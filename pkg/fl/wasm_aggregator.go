package fl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasmAggregator delegates aggregation to a WASI command module. The module
// reads the JSON array of updates on stdin and writes the JSON aggregated
// weights on stdout.
type WasmAggregator struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  wazero.CompiledModule
}

func LoadWasmAggregator(ctx context.Context, wasmPath string) (*WasmAggregator, error) {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("wasm aggregator file not found: %w", err)
	}

	return NewWasmAggregator(ctx, wasm)
}

func NewWasmAggregator(ctx context.Context, wasm []byte) (*WasmAggregator, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)

		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	module, err := r.CompileModule(ctx, wasm)
	if err != nil {
		r.Close(ctx)

		return nil, errors.Join(errors.New("failed to compile wasm aggregator"), err)
	}

	return &WasmAggregator{
		runtime: r,
		module:  module,
	}, nil
}

func (w *WasmAggregator) Aggregate(ctx context.Context, updates []checkpoint.Weights) (checkpoint.Weights, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}
	if err := Compatible(updates); err != nil {
		return nil, err
	}

	in, err := json.Marshal(updates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updates: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs("aggregator").
		WithStdin(bytes.NewReader(in)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.runtime.InstantiateModule(ctx, w.module, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("wasm aggregator execution failed: %w: %s", err, stderr.String())
		}
	}

	var global checkpoint.Weights
	if err := json.Unmarshal(stdout.Bytes(), &global); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aggregated weights: %w", err)
	}
	if err := Compatible([]checkpoint.Weights{updates[0], global}); err != nil {
		return nil, fmt.Errorf("wasm aggregator output: %w", err)
	}

	return global, nil
}

func (w *WasmAggregator) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
