package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateSymbol string
	simulateClose  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic close through the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol must be provided")
		}
		if simulateClose <= 0 {
			return errors.New("--close must be greater than zero")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateSymbol, simulateClose)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Stock code")
	simulateCmd.Flags().Float64Var(&simulateClose, "close", 0, "Synthetic close price")
}
