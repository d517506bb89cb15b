package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/importer"
	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <contacts.csv|contacts.xlsx>",
	Short: "Research a contact list in-process and report results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := importer.Load(args[0])
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(list) > batchLimit {
			list = list[:batchLimit]
		}

		zap.L().Info("processing batch",
			zap.String("file", args[0]),
			zap.Int("contacts", len(list)),
		)

		orch := env.Orchestrator
		snap, err := orch.Submit(ctx, list)
		if err != nil {
			return eris.Wrap(err, "submit batch")
		}

		ch, cancel := orch.Emitter().Subscribe(snap.JobID)
		defer cancel()

		// The job may already be terminal by the time the subscription lands.
		if s, err := orch.Store().Snapshot(snap.JobID); err == nil && s.Status.Terminal() {
			return reportJob(s)
		}

		for {
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "batch interrupted")
			case ev := <-ch:
				logEvent(ev)
				if ev.Kind == jobs.EventJobComplete {
					s, err := orch.Store().Snapshot(snap.JobID)
					if err != nil {
						return err
					}
					return reportJob(s)
				}
			}
		}
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of contacts to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

func logEvent(ev jobs.Event) {
	switch ev.Kind {
	case jobs.EventContactStart:
		zap.L().Info("researching contact", zap.String("contact", ev.ContactName))
	case jobs.EventContactComplete:
		zap.L().Info("contact complete", zap.String("contact", ev.ContactName))
	case jobs.EventContactFailed:
		zap.L().Warn("contact failed",
			zap.String("contact", ev.ContactName),
			zap.String("error", ev.Error),
		)
	case jobs.EventProgress:
		if ev.Progress != nil {
			zap.L().Debug("progress",
				zap.Int("processed", ev.Progress.Completed+ev.Progress.Failed),
				zap.Int("total", ev.Progress.Total),
				zap.Int("percent", ev.Progress.PercentComplete),
			)
		}
	}
}

func reportJob(snap model.JobSnapshot) error {
	zap.L().Info("batch complete",
		zap.String("job_id", snap.JobID),
		zap.String("status", string(snap.Status)),
		zap.Int("succeeded", snap.SuccessCount),
		zap.Int("failed", snap.FailureCount),
	)
	if snap.Status == model.JobStatusFailed {
		return eris.Errorf("batch job %s failed", snap.JobID)
	}
	return nil
}
