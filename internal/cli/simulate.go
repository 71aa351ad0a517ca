package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"token-price-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send one synthetic alert for a price move",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.Previous == "" || simulateOpts.Current == "" {
			return errors.New("--previous and --current must be provided")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateOpts, cmd.OutOrStdout())
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Previous, "previous", "", "Stored price in USD")
	simulateCmd.Flags().StringVar(&simulateOpts.Current, "current", "", "Fetched price in USD")
	simulateCmd.Flags().StringVar(&simulateOpts.Asset, "asset", "", "Asset identifier (defaults to the first watched asset)")
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "", "Pair symbol shown in the message")
	simulateCmd.Flags().StringVar(&simulateOpts.Venue, "venue", "", "Venue shown in the message")
}
