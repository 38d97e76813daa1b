package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "metergate",
	Short: "Metergate — usage metering relay",
	Long:  "Metergate relays meter management, usage queries, usage cancellation, and event ingestion to an upstream metering platform, handling authentication, retries, and response decoding on behalf of its callers.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/metergate.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
