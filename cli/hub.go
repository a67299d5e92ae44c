package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/absmach/hubnspoke/pkg/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errNoCheckpoint = errors.New("no checkpoint has been saved yet")

// Hub is everything the commands operate on. It is built before a command
// runs.
type Hub struct {
	Runner      *coordinator.Runner
	Checkpoints *checkpoint.Store
	Reports     *report.Store
	// Server is started for the duration of a run when set.
	Server *server.Server
	Logger *slog.Logger
}

var hub *Hub

func SetHub(h *Hub) {
	hub = h
}

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the federation",
		Long:  `Run every configured round against all nodes, stop them and upload the final model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			summaries, err := runFederation(cmd.Context())
			if err != nil {
				logErrorCmd(*cmd, err)
			}
			logJSONCmd(*cmd, summaries)
		},
	}
}

func NewProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe all nodes",
		Long:  `Ask every node for its status.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			for _, res := range hub.Runner.ProbeAll(cmd.Context()) {
				logProbeCmd(*cmd, res.Node.Name, res.Node.Address, res.Status, res.Err)
			}
		},
	}
}

func NewCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Show the global checkpoint",
		Long:  `Summarize the layers of the stored global checkpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cpt, err := hub.Checkpoints.Load(cmd.Context())
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if cpt == nil {
				logErrorCmd(*cmd, errNoCheckpoint)

				return
			}
			logJSONCmd(*cmd, cpt.Summarize())
		},
	}
}

func NewReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <node>",
		Short: "Show a node report",
		Long:  `Print the training and test results collected from a node.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rep, err := hub.Reports.Get(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rep)
		},
	}
}

func runFederation(ctx context.Context) ([]fl.RoundSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if hub.Server == nil {
		return hub.Runner.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(hub.Server.Start)
	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, hub.Logger, "hub", hub.Server)
	})

	summaries, runErr := hub.Runner.Run(ctx)
	cancel()
	if err := g.Wait(); err != nil && hub.Logger != nil {
		hub.Logger.Warn("http server stopped with error", slog.Any("error", err))
	}

	return summaries, runErr
}
