// cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pixelpilot/internal/observability"
	"github.com/xkilldash9x/pixelpilot/pkg/agent"
	"github.com/xkilldash9x/pixelpilot/pkg/engine"
)

var runURL string

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run one goal-driven task against the browser surface",
	Long: `Boots the browser surface, hands the goal to the agent loop, and observes
its progress until the task completes, fails, or runs out of steps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := args[0]
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := engine.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		if runURL != "" {
			if err := eng.Navigate(ctx, runURL); err != nil {
				return err
			}
		}

		orch := eng.Orchestrator()
		if !orch.StartTask(ctx, goal) {
			return fmt.Errorf("a task is already active")
		}

		// Progress is observed, not awaited: poll the status surface until
		// the loop reaches a terminal state.
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		lastStatus := ""
		for {
			select {
			case <-ctx.Done():
				logger.Info("Interrupted, tearing down.")
				return ctx.Err()
			case <-ticker.C:
				status, processing := orch.Status()
				if status != lastStatus {
					logger.Info("Task progress", zap.String("status", status))
					lastStatus = status
				}
				if processing {
					continue
				}

				task := orch.Snapshot()
				switch task.Status {
				case agent.StatusCompleted:
					logger.Info("Goal achieved", zap.Int("steps", task.StepIndex+1))
					return nil
				case agent.StatusStepLimit:
					logger.Warn("Step budget exhausted before the goal was confirmed done")
					return nil
				default:
					return fmt.Errorf("task failed: %s", status)
				}
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "page to open before the task starts (defaults to browser.home_url)")
	rootCmd.AddCommand(runCmd)
}
