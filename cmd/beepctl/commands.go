package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"beeper/backend/internal/config"
	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

type stateResponse struct {
	State service.SchedulerView `json:"state"`
}

type statsResponse struct {
	Stats service.SchedulerStats `json:"stats"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scheduler state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, opts, http.MethodGet, "/api/scheduler/state", nil)
		},
	}
}

func newOnCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "on",
		Short: "Turn the scheduler on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, opts, http.MethodPut, "/api/scheduler/status", map[string]string{"status": string(model.SchedulerActive)})
		},
	}
}

func newOffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Turn the scheduler off",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, opts, http.MethodPut, "/api/scheduler/status", map[string]string{"status": string(model.SchedulerInactive)})
		},
	}
}

func newAnswerCmd(opts *rootOptions, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, opts, http.MethodPost, path, nil)
		},
	}
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "call <idle|ringing|offhook>",
		Short:     "Report the phone call state",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"idle", "ringing", "offhook"},
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := model.ParseCallState(args[0])
			if err != nil {
				return err
			}
			return runState(cmd, opts, http.MethodPost, "/api/scheduler/call", map[string]string{"state": string(state)})
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(opts)
			if err != nil {
				return err
			}
			var resp statsResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/scheduler/stats", nil, &resp); err != nil {
				return err
			}
			writeStats(cmd.OutOrStdout(), resp.Stats)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token from API_SECRET",
		Long:  "Signs a bearer token locally with the API_SECRET the daemon uses. Run it on the daemon's host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			result, apiErr := service.NewAuthService(cfg.APISecret, ttl).IssueToken(subject)
			if apiErr != nil {
				return apiErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "beepctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default TOKEN_TTL_HOURS)")
	return cmd
}

func runState(cmd *cobra.Command, opts *rootOptions, method, path string, body interface{}) error {
	client, err := newAPIClient(opts)
	if err != nil {
		return err
	}
	var resp stateResponse
	if err := client.do(cmd.Context(), method, path, body, &resp); err != nil {
		return err
	}
	writeState(cmd.OutOrStdout(), resp.State)
	return nil
}

func writeState(w io.Writer, view service.SchedulerView) {
	fmt.Fprintf(w, "status:   %s\n", view.Status)
	if view.InCall {
		fmt.Fprintln(w, "phone:    in call")
	}
	if view.Uptime != nil {
		fmt.Fprintf(w, "active:   since %s\n", view.Uptime.Start.Local().Format("15:04:05"))
	}
	if beep := view.ScheduledBeep; beep != nil {
		fmt.Fprintf(w, "next beep: #%d at %s\n", beep.ID, beep.Timestamp.Local().Format("15:04:05"))
	} else {
		fmt.Fprintln(w, "next beep: none")
	}
}

func writeStats(w io.Writer, s service.SchedulerStats) {
	var b strings.Builder
	fmt.Fprintf(&b, "beeps today:  %d (%d accepted, %d declined)\n", s.TotalToday, s.AcceptedToday, s.DeclinedToday)
	fmt.Fprintf(&b, "active today: %s in %d sessions", time.Duration(s.UptimeTodaySeconds)*time.Second, s.UptimeCountToday)
	if s.UptimeCountToday > 0 {
		fmt.Fprintf(&b, " (avg %s)", time.Duration(s.UptimeAverageSeconds)*time.Second)
	}
	b.WriteString("\n")
	io.WriteString(w, b.String())
}
