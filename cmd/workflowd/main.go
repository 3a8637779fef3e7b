package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/workflowd/pkg/client"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workflowd",
	Short: "workflowd - workflow process manager",
	Long: `workflowd schedules workflow processes: it queues them, starts them
under route run-locks, watches running processes for zombies and requeues
parked processes whose messages have arrived.

Executors receive start requests on the event stream and report back
through the HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut, Output: os.Stderr})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"workflowd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().String("server", "127.0.0.1:8080", "workflowd address or base URL")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(engineCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("workflowd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(client.Config{BaseURL: server, Timeout: timeout})
}
