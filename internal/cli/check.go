package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one alert cycle and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), cmd.OutOrStdout())
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Fetch every asset once and send the price digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Digest(cmd.Context(), cmd.OutOrStdout())
	},
}
