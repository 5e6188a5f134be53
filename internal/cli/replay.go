package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"breakoutwatch/internal/app"
)

var (
	replaySymbol   string
	replayDryRun   bool
	replayCooldown time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a stock's snapshot bar by bar and list the alerts it would fire",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replaySymbol == "" {
			return fmt.Errorf("--symbol must be provided")
		}
		if replayCooldown < 0 {
			return fmt.Errorf("--cooldown cannot be negative")
		}

		opts := app.ReplayOptions{
			Symbol:   replaySymbol,
			DryRun:   replayDryRun,
			Cooldown: replayCooldown,
		}

		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replaySymbol, "symbol", "", "Stock code to replay")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Run without writing alerts to storage")
	replayCmd.Flags().DurationVar(&replayCooldown, "cooldown", 0, "Override alerting.cooldown for the replay")
}
