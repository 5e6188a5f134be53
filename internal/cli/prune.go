package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old alert records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan < 0 {
			return fmt.Errorf("--older-than cannot be negative")
		}
		return getApp().Prune(cmd.Context(), pruneOlderThan)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Delete alerts fired before now minus this duration (defaults to alerting.retention)")
}
