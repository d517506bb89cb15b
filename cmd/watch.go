package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/progress"
)

var watchServer string

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a running job's progress on a remote server",
	Long:  "Subscribes to the server's WebSocket progress channel, falling back to polling the status endpoint when the push channel cannot be opened.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := progress.New(watchServer, args[0],
			progress.WithOpenTimeout(time.Duration(cfg.Progress.OpenTimeoutSecs)*time.Second),
			progress.WithPollInterval(time.Duration(cfg.Progress.PollIntervalSecs)*time.Second),
			progress.WithEventHandler(logEvent),
		)

		state, err := consumer.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "watch job")
		}

		zap.L().Info("job finished",
			zap.String("job_id", state.JobID),
			zap.String("status", string(state.Status)),
			zap.Int("succeeded", state.SuccessCount),
			zap.Int("failed", state.FailureCount),
		)
		if state.Status == model.JobStatusFailed {
			return eris.Errorf("job %s failed", state.JobID)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "base URL of the research server")
	rootCmd.AddCommand(watchCmd)
}
