package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"soulverse/internal/occasion"
)

func newOccasionCmd() *cobra.Command {
	var (
		tz     string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "occasion [YYYY-MM-DD]",
		Short: "Show the liturgical occasion for a date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("invalid --tz: %w", err)
				}
				loc = l
			}
			day := time.Now().In(loc)
			if len(args) == 1 {
				d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(args[0]), loc)
				if err != nil {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
				}
				day = d
			}

			occ, ok := occasion.Resolve(day)
			out := cmd.OutOrStdout()
			if asJSON {
				resp := map[string]any{"date": day.Format(time.DateOnly), "found": ok}
				if ok {
					resp["occasion"] = occ
				}
				return printJSON(out, resp)
			}
			if !ok {
				fmt.Fprintf(out, "%s: ordinary day\n", day.Format(time.DateOnly))
				return nil
			}
			fmt.Fprintf(out, "%s: %s (priority %d)\n", day.Format(time.DateOnly), occ.Name, occ.Priority)
			fmt.Fprintf(out, "  %s\n", occ.Description)
			if len(occ.Themes) > 0 {
				fmt.Fprintf(out, "  themes: %s\n", strings.Join(occ.Themes, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for \"today\" (default local)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
