package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cdbot/internal/config"
	"cdbot/internal/cooldown"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a config file without starting the bot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := config.NewManager(path).Parse()
		if err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("%s is invalid:\n%w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d game bot(s), storage %q)\n", path, len(cfg.RPG.GameBotIDs), cfg.Storage.Driver)
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print the cooldowns a report would track (reads stdin without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		marker, _ := cmd.Flags().GetString("marker")
		now := time.Now()
		lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		records, skipped := cooldown.Extractor{Marker: marker}.Extract(lines, now)

		out := cmd.OutOrStdout()
		for _, r := range records {
			fmt.Fprintf(out, "%-20s in %s\n", r.Label, r.Expiry.Sub(now).Round(time.Second))
		}
		for _, le := range skipped {
			fmt.Fprintf(out, "skipped: %v\n", le)
		}
		fmt.Fprintf(out, "%d tracked, %d skipped\n", len(records), len(skipped))
		return nil
	},
}

func init() {
	extractCmd.Flags().String("marker", cooldown.DefaultMarker, "glyph of a running cooldown line")
	rootCmd.AddCommand(checkCmd, extractCmd)
}
