package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/absmach/hubnspoke/cli"
	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/coordinator/api"
	"github.com/absmach/hubnspoke/coordinator/middleware"
	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/mqtt"
	"github.com/absmach/hubnspoke/pkg/prometheus"
	"github.com/absmach/hubnspoke/pkg/registry"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/absmach/hubnspoke/pkg/server"
	"github.com/absmach/hubnspoke/pkg/telemetry"
	"github.com/absmach/hubnspoke/pkg/transport"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	svcName     = "hub"
	defRounds   = 1
	roundsDir   = "rounds"
	metricsName = "coordinator"
)

type envConfig struct {
	LogLevel       string           `env:"HUB_LOG_LEVEL"       envDefault:"info"`
	LogFile        string           `env:"HUB_LOG_FILE"        envDefault:""`
	InstanceID     string           `env:"HUB_INSTANCE_ID"`
	ModelID        string           `env:"MODEL_ID"`
	WorkspaceDir   string           `env:"HUB_WORKSPACE_DIR"   envDefault:"save/models/hub"`
	ModelFile      string           `env:"HUB_MODEL_FILE"      envDefault:"monai-test.cbor"`
	FederationFile string           `env:"HUB_FEDERATION_FILE" envDefault:"federation.toml"`
	Rounds         int              `env:"HUB_ROUNDS"          envDefault:"0"`
	Quorum         int              `env:"HUB_QUORUM"          envDefault:"0"`
	Concurrency    int              `env:"HUB_CONCURRENCY"     envDefault:"0"`
	CallTimeout    time.Duration    `env:"HUB_CALL_TIMEOUT"    envDefault:"0s"`
	WasmAggregator string           `env:"HUB_WASM_AGGREGATOR" envDefault:""`
	MQTTAddress    string           `env:"HUB_MQTT_ADDRESS"    envDefault:""`
	MQTTQoS        uint8            `env:"HUB_MQTT_QOS"        envDefault:"1"`
	MQTTTimeout    time.Duration    `env:"HUB_MQTT_TIMEOUT"    envDefault:"30s"`
	MQTTUsername   string           `env:"HUB_MQTT_USERNAME"   envDefault:""`
	MQTTPassword   string           `env:"HUB_MQTT_PASSWORD"   envDefault:""`
	HTTP           server.Config    `envPrefix:"HUB_HTTP_"`
	Registry       registry.Config  `envPrefix:"HUB_REGISTRY_"`
	Telemetry      telemetry.Config `envPrefix:"HUB_"`
}

// closers run in reverse order once the command is done.
type closers []func(context.Context) error

func (c closers) close(ctx context.Context, logger *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			logger.Warn("failed to release resource", slog.Any("error", err))
		}
	}
}

func main() {
	var (
		federationFile string
		cleanup        closers
		logger         = slog.Default()
	)

	rootCmd := &cobra.Command{
		Use:   "hub",
		Short: "Federated learning hub",
		Long:  `Hub drives a federation of training nodes through bootstrap, training, aggregation and testing rounds.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := envConfig{}
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if federationFile != "" {
				cfg.FederationFile = federationFile
			}

			h, c, l, err := build(cmd.Context(), cfg)
			cleanup, logger = c, l
			if err != nil {
				return err
			}
			cli.SetHub(h)

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			cleanup.close(context.Background(), logger)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&federationFile, "federation", "f", "", "federation file, overrides HUB_FEDERATION_FILE")

	rootCmd.AddCommand(
		cli.NewRunCmd(),
		cli.NewProbeCmd(),
		cli.NewCheckpointCmd(),
		cli.NewReportCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		cleanup.close(context.Background(), logger)
		log.Fatal(err)
	}
}

func build(ctx context.Context, cfg envConfig) (*cli.Hub, closers, *slog.Logger, error) {
	var cleanup closers

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, cleanup, slog.Default(), err
	}
	cleanup = append(cleanup, closeLog)

	fed, err := cli.LoadFederation(cfg.FederationFile)
	if err != nil {
		return nil, cleanup, logger, err
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = fed.ModelID
	}
	logger = logger.With(slog.String("model_id", modelID))
	slog.SetDefault(logger)

	rounds := cfg.Rounds
	if rounds <= 0 {
		rounds = fed.Rounds
	}
	if rounds <= 0 {
		rounds = defRounds
	}

	tp, err := telemetry.NewProvider(ctx, svcName, cfg.Telemetry)
	if err != nil {
		return nil, cleanup, logger, err
	}
	cleanup = append(cleanup, tp.Shutdown)
	tracer := tp.Tracer(svcName)

	checkpoints := checkpoint.NewStore(filepath.Join(cfg.WorkspaceDir, cfg.ModelFile))
	reports := report.NewStore(cfg.WorkspaceDir)
	history, err := fl.NewHistory(filepath.Join(cfg.WorkspaceDir, roundsDir))
	if err != nil {
		return nil, cleanup, logger, err
	}

	var aggregator fl.Aggregator = fl.NewFedAvgAggregator()
	if cfg.WasmAggregator != "" {
		wasm, err := fl.LoadWasmAggregator(ctx, cfg.WasmAggregator)
		if err != nil {
			return nil, cleanup, logger, err
		}
		cleanup = append(cleanup, wasm.Close)
		aggregator = wasm
		logger.Info("using wasm aggregator", slog.String("path", cfg.WasmAggregator))
	}

	var notifier coordinator.Notifier = coordinator.NopNotifier{}
	if cfg.MQTTAddress != "" {
		pub, err := mqtt.NewPublisher(cfg.MQTTAddress, cfg.MQTTQoS, mqtt.ClientID(svcName, modelID, cfg.InstanceID), cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTTimeout, logger)
		if err != nil {
			return nil, cleanup, logger, fmt.Errorf("failed to initialize mqtt publisher: %w", err)
		}
		cleanup = append(cleanup, pub.Disconnect)
		notifier = coordinator.NewMQTTNotifier(pub, modelID)
	}

	var uploader coordinator.Uploader
	if cfg.Registry.Reference != "" {
		u, err := registry.NewRemoteUploader(cfg.Registry)
		if err != nil {
			return nil, cleanup, logger, err
		}
		uploader = u
	}

	policy := transport.DefaultPolicy()
	policy.CallTimeout = cfg.CallTimeout
	deps := coordinator.Deps{
		Caller:      transport.NewClient(policy),
		Checkpoints: checkpoints,
		Reports:     reports,
		Notifier:    notifier,
	}
	if len(fed.Model.Layers) > 0 {
		deps.Initializer = fl.NewLayerInitializer(fed.Model.Layers, fed.Seed)
	}

	counter, latency := prometheus.MakeMetrics(svcName, metricsName)
	services := make([]coordinator.Service, 0, len(fed.Nodes))
	for _, node := range fed.Nodes {
		svc := coordinator.New(modelID, node, deps, logger)
		svc = middleware.Logging(logger, svc)
		svc = middleware.Tracing(tracer, svc)
		svc = middleware.Metrics(counter, latency, svc)
		services = append(services, svc)
	}

	runner := coordinator.NewRunner(coordinator.RunnerConfig{
		ModelID:     modelID,
		Rounds:      rounds,
		Concurrency: cfg.Concurrency,
	}, services, coordinator.RunnerDeps{
		Accumulator: fl.NewAccumulator(aggregator, cfg.Quorum, coordinator.CommitTo(checkpoints)),
		History:     history,
		Uploader:    uploader,
		Checkpoints: checkpoints,
		Notifier:    notifier,
	}, logger)

	handler := api.MakeHandler(api.Sources{
		History:     history,
		Checkpoints: checkpoints,
		Reports:     reports,
	}, logger, cfg.InstanceID)

	logger.Info("hub configured",
		slog.Int("nodes", len(services)),
		slog.Int("rounds", rounds),
		slog.Int("quorum", cfg.Quorum),
		slog.String("workspace", cfg.WorkspaceDir),
	)

	return &cli.Hub{
		Runner:      runner,
		Checkpoints: checkpoints,
		Reports:     reports,
		Server:      server.New(svcName, cfg.HTTP, handler, logger),
		Logger:      logger,
	}, cleanup, logger, nil
}

// newLogger writes JSON records to stdout and, when configured, to a log
// file next to the model.
func newLogger(cfg envConfig) (*slog.Logger, func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nop, fmt.Errorf("failed to parse log level: %w", err)
	}

	var w io.Writer = os.Stdout
	closeFn := nop
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nop, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func(context.Context) error {
			return errors.Join(f.Sync(), f.Close())
		}
	}

	logHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(logHandler), closeFn, nil
}
