package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txwatch/txwatch"
)

func newExportCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Inspect session exports",
	}

	var showFlags struct {
		password string
		json     bool
	}
	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Decode a snapshot export and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("")
			if err != nil {
				return err
			}
			backend, err := txwatch.OpenStorage(cfg.Storage)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer backend.Close()

			snap, err := txwatch.ReadExport(cmd.Context(), backend, args[0], showFlags.password)
			if err != nil {
				return err
			}
			if showFlags.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSummary(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	show.Flags().StringVar(&showFlags.password, "password", "", "password of a sealed export")
	show.Flags().BoolVar(&showFlags.json, "json", false, "print the full snapshot as JSON")

	cmd.AddCommand(show)
	return cmd
}
