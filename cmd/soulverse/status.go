package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"soulverse/internal/api"
	"soulverse/internal/config"
	"soulverse/internal/task/scheduler"
)

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		token   string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv(config.EnvAdminToken)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := fetchStatus(ctx, http.DefaultClient, addr, token)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			return printStatus(cmd.OutOrStdout(), st, time.Now())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "admin token (default $"+config.EnvAdminToken+")")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func fetchStatus(ctx context.Context, client *http.Client, addr, token string) (scheduler.Status, error) {
	var st scheduler.Status
	url := strings.TrimRight(addr, "/") + "/admin/scheduler/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return st, err
	}
	if resp.StatusCode != http.StatusOK {
		var p api.Problem
		if json.Unmarshal(body, &p) == nil && p.Detail != "" {
			return st, fmt.Errorf("%s: %s", resp.Status, p.Detail)
		}
		return st, errors.New(resp.Status)
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func printStatus(w io.Writer, st scheduler.Status, now time.Time) error {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(w, "scheduler: %s (tz %s)\n", state, st.Timezone)
	if len(st.Jobs) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSPEC\tNEXT\tLAST\t")
	for _, j := range st.Jobs {
		name := j.Name
		if j.InFlight {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", name, j.Spec, relTime(j.Next, now), relTime(j.Prev, now))
	}
	return tw.Flush()
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
