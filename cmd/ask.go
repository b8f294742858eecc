// cmd/ask.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pixelpilot/internal/observability"
	"github.com/xkilldash9x/pixelpilot/pkg/engine"
)

var askURL string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the model a one-shot question about the current screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := engine.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Shutdown()

		if askURL != "" {
			if err := eng.Navigate(ctx, askURL); err != nil {
				return err
			}
		}

		answer, err := eng.Ask(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askURL, "url", "", "page to open before asking (defaults to browser.home_url)")
	rootCmd.AddCommand(askCmd)
}
