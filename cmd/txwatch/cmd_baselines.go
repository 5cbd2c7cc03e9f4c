package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/txwatch/txwatch"
)

func newBaselinesCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "Fit and inspect regular-day baselines",
	}
	cmd.AddCommand(newBaselinesFitCmd(g))
	cmd.AddCommand(newBaselinesShowCmd(g))
	return cmd
}

func newBaselinesFitCmd(g *globalOptions) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "fit <transaction-type> <day-id>...",
		Short: "Compute per-status mean and stddev from regular-day series",
		Long: `Reads every <day-id>.csv, pools the samples of each status and stores
the population mean and standard deviation under <transaction-type>.
Baselines of other transaction types are kept.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBaselinesFit(cmd, g, db, args[0], args[1:])
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "store baselines in this SQLite file instead of the baseline document")
	return cmd
}

func runBaselinesFit(cmd *cobra.Command, g *globalOptions, dbPath, txType string, dayIDs []string) error {
	cfg, err := g.loadConfig(txType)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Storage.BaselinesDB = dbPath
	}
	ctx := cmd.Context()

	backend, err := txwatch.OpenStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	days := make([]map[string]*txwatch.Series, 0, len(dayIDs))
	for _, id := range dayIDs {
		day, err := txwatch.LoadSeries(ctx, backend, id, cfg.Date())
		if err != nil {
			return err
		}
		days = append(days, day)
	}
	fitted, err := txwatch.FitBaselines(txType, days...)
	if err != nil {
		return err
	}

	var dest string
	if cfg.Storage.BaselinesDB != "" {
		db, err := txwatch.OpenSQLiteBaselineStore(cfg.Storage.BaselinesDB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Save(ctx, fitted); err != nil {
			return err
		}
		dest = db.Path()
	} else {
		merged := fitted
		existing, err := txwatch.LoadBaselines(ctx, backend, cfg.Storage.BaselinesKey)
		switch {
		case err == nil:
			merged = existing.Merge(fitted)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return err
		}
		if err := txwatch.SaveBaselines(ctx, backend, cfg.Storage.BaselinesKey, merged); err != nil {
			return err
		}
		dest = cfg.Storage.BaselinesKey
	}

	slog.Info("baselines fitted", "type", txType, "days", len(dayIDs), "statuses", fitted.Len(), "dest", dest)
	return printBaselines(cmd.OutOrStdout(), fitted, "")
}

func newBaselinesShowCmd(g *globalOptions) *cobra.Command {
	var txType string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List stored baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig("")
			if err != nil {
				return err
			}
			backend, err := txwatch.OpenStorage(cfg.Storage)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer backend.Close()

			store, err := loadBaselines(cmd.Context(), cfg, backend)
			if err != nil {
				return err
			}
			return printBaselines(cmd.OutOrStdout(), store, txType)
		},
	}
	cmd.Flags().StringVar(&txType, "type", "", "only show this transaction type")
	return cmd
}

func printBaselines(w io.Writer, store *txwatch.BaselineStore, txType string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATUS\tMEAN\tSTDDEV")
	entries := store.Entries()
	for _, k := range store.Keys() {
		if txType != "" && k.TransactionType != txType {
			continue
		}
		b := entries[k]
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\n", k.TransactionType, k.Status, b.Mean, b.Stddev)
	}
	return tw.Flush()
}
