package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"soulverse/internal/config"
	"soulverse/internal/content"
	"soulverse/internal/recipients"
	"soulverse/internal/storage"
)

func newRecipientsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipients",
		Short: "Manage recipients",
	}
	cmd.AddCommand(newRecipientsAddCmd(cfgPath), newRecipientsListCmd(cfgPath), newRecipientsMoodCmd(cfgPath))
	return cmd
}

// openRecipients opens the recipients database named by the config.
func openRecipients(cfgPath string) (*recipients.SQLite, func() error, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.OpenDB(strings.TrimSpace(cfg.Recipients.Path), 0)
	if err != nil {
		return nil, nil, err
	}
	def := recipients.Defaults{Translation: strings.TrimSpace(cfg.Scripture.DefaultTranslation)}
	return recipients.NewSQLite(db, def), db.Close, nil
}

func newRecipientsAddCmd(cfgPath *string) *cobra.Command {
	var r recipients.Recipient
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(r.ID) == "" {
				r.ID = uuid.NewString()
			}
			r.Active = !inactive
			store, closeFn, err := openRecipients(*cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			if err := store.Upsert(ctx, r); err != nil {
				return err
			}
			saved, err := store.Get(ctx, r.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), saved)
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.ID, "id", "", "recipient id (default: random UUID)")
	f.StringVar(&r.PushToken, "token", "", "push token")
	f.StringVar(&r.PreferredTranslation, "translation", "", "preferred translation code")
	f.StringVar(&r.LastKnownMood, "mood", "", "last known mood")
	f.StringVar(&r.Timezone, "tz", "", "IANA timezone")
	f.BoolVar(&inactive, "inactive", false, "store the recipient as inactive")
	return cmd
}

func newRecipientsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active recipients with a push token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := openRecipients(*cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := store.ListActiveWithToken(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTRANSLATION\tMOOD\t")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", r.ID, r.PreferredTranslation, r.Mood())
			}
			return tw.Flush()
		},
	}
}

func newRecipientsMoodCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mood <id> <mood>",
		Short: "Record a recipient's mood",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openRecipients(*cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()
			return setMood(cmd.Context(), store, args[0], args[1])
		},
	}
}

func setMood(ctx context.Context, store *recipients.SQLite, id, raw string) error {
	return store.SetMood(ctx, id, content.ParseMood(raw))
}
