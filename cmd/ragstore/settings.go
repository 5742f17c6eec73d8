package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragstore/internal/metadata"
)

// tunable is a setting the ingestion pipeline reads on every document.
type tunable struct {
	label string
	floor int
}

var tunables = map[string]tunable{
	"chunk-size":    {label: metadata.SettingChunkSize, floor: 1},
	"chunk-overlap": {label: metadata.SettingChunkOverlap, floor: 0},
}

type settingResult struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func lookupTunable(name string) (tunable, error) {
	t, ok := tunables[name]
	if !ok {
		return tunable{}, fmt.Errorf("unknown setting %q (want chunk-size or chunk-overlap)", name)
	}
	return t, nil
}

func newSettingsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change chunking settings",
		Long: `Read or change the chunking settings stored in the metadata database.
They take precedence over the splitter section of the config file.

Examples:
  ragstore settings get chunk-size
  ragstore settings set chunk-overlap 50`,
	}
	cmd.AddCommand(newSettingsGetCmd(root), newSettingsSetCmd(root))
	return cmd
}

func newSettingsGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTunable(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			fallback := a.cfg.Splitter.ChunkSize
			if t.label == metadata.SettingChunkOverlap {
				fallback = a.cfg.Splitter.ChunkOverlap
			}
			raw, err := metadata.NewSettings(a.db).GetValueOrFallback(cmd.Context(), t.label, strconv.Itoa(fallback))
			if err != nil {
				return err
			}
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("stored %s is not a number: %q", args[0], raw)
			}
			return printJSON(cmd.OutOrStdout(), settingResult{Name: args[0], Value: v})
		},
	}
}

func newSettingsSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTunable(args[0])
			if err != nil {
				return err
			}
			v, err := strconv.Atoi(args[1])
			if err != nil || v < t.floor {
				return fmt.Errorf("%s must be an integer >= %d", args[0], t.floor)
			}
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := metadata.NewSettings(a.db).SetValue(cmd.Context(), t.label, strconv.Itoa(v)); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), settingResult{Name: args[0], Value: v})
		},
	}
}
