package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type rootOptions struct {
	server string
	token  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "beepctl",
		Short:         "Control the beeper daemon",
		Long:          "beepctl turns the beep scheduler on and off, answers beeps and shows today's statistics.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("BEEPER_URL", "http://localhost:8080"), "daemon base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BEEPER_TOKEN"), "API bearer token")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newOnCmd(opts))
	cmd.AddCommand(newOffCmd(opts))
	cmd.AddCommand(newAnswerCmd(opts, "accept", "Accept the current beep", "/api/scheduler/beep/accept"))
	cmd.AddCommand(newAnswerCmd(opts, "decline", "Decline the current beep", "/api/scheduler/beep/decline"))
	cmd.AddCommand(newAnswerCmd(opts, "pause", "Decline the current beep and turn the scheduler off", "/api/scheduler/beep/pause"))
	cmd.AddCommand(newCallCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "beepctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
