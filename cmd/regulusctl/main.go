package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	serverFlag string
	jsonFlag   bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "regulusctl",
	Short: "Operator CLI for the regulus conjunction service",
	Long: `regulusctl talks to a running regulus service, or screens a local
element-set file without one.

Examples:
  regulusctl detect 25544                     # Screen the ISS against the catalog
  regulusctl detect 25544 --with 44713,48274  # Screen against chosen objects only
  regulusctl events --min-tier HIGH           # Recorded events needing review
  regulusctl stats                            # Event totals per status and tier
  regulusctl screen --tle active.txt 25544    # Offline screening of a TLE file`,
	SilenceUsage: true,
}

func init() {
	server := os.Getenv("REGULUS_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", server, "regulus base URL (env REGULUS_SERVER)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print raw JSON instead of tables")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(screenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
