package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"soulverse/internal/app"
	"soulverse/internal/jobs"
)

var triggerJobs = []string{jobs.DailyVerses, jobs.MorningPrayer, jobs.EveningPrayer, jobs.CacheCleanup, jobs.ImageCleanup, jobs.DailyStats}

// newTriggerCmd runs one job in-process and prints its result. It does not
// start the scheduler or the admin API.
func newTriggerCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Run a job once and print the result",
		Long:      fmt.Sprintf("Run a job once and print the result as JSON.\n\nJobs: %v", triggerJobs),
		Args:      cobra.ExactArgs(1),
		ValidArgs: triggerJobs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(*cfgPath, app.Options{Version: Version})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := runJob(cmd.Context(), a.Jobs(), args[0])
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
}

// runJob accepts "daily-verses" as well as "daily_verses".
func runJob(ctx context.Context, j *jobs.Service, name string) (any, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "_") {
	case jobs.DailyVerses:
		return j.DailyVerses(ctx)
	case jobs.MorningPrayer:
		return j.MorningPrayer(ctx)
	case jobs.EveningPrayer:
		return j.EveningPrayer(ctx)
	case jobs.CacheCleanup:
		return j.CacheCleanup(ctx)
	case jobs.ImageCleanup:
		return j.ImageCleanup(ctx)
	case jobs.DailyStats:
		return j.DailyStats(ctx)
	default:
		return nil, fmt.Errorf("unknown job %q (want one of %v)", name, triggerJobs)
	}
}
