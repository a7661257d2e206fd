package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parkpulse",
	Short: "ParkPulse.ai park assistant and proposal service",
	Long: `ParkPulse.ai answers questions about city parks, estimates the impact of
removing them and walks authorized planners through submitting park
protection proposals to the Hedera ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
