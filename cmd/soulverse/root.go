package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

const defaultConfigPath = "./soulverse.yaml"

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "soulverse",
		Short:         "Daily scripture, prayers and reflections for every recipient",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config (yaml or json)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newTriggerCmd(&cfgPath),
		newOccasionCmd(),
		newStatusCmd(),
		newRecipientsCmd(&cfgPath),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
