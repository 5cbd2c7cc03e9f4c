package main

import (
	"context"
	"fmt"
	"io"

	"github.com/txwatch/txwatch"
)

// loadConfig builds the configuration of transactionType: defaults, then
// the --config file, then the persistent flags.
func (o *globalOptions) loadConfig(transactionType string) (txwatch.Config, error) {
	cfg := txwatch.DefaultConfig(transactionType)
	if o.configPath != "" {
		fileCfg, err := txwatch.LoadConfigFile(o.configPath)
		if err != nil {
			return txwatch.Config{}, err
		}
		cfg = fileCfg
		if transactionType != "" {
			cfg.TransactionType = transactionType
		}
	}
	if o.dataDir != "" {
		cfg.Storage.Dir = o.dataDir
	}
	if o.backend != "" {
		cfg.Storage.Backend = o.backend
	}
	return cfg, nil
}

// loadBaselines reads the baselines from the SQLite file when one is
// configured, from the baseline document otherwise.
func loadBaselines(ctx context.Context, cfg txwatch.Config, backend txwatch.StorageBackend) (*txwatch.BaselineStore, error) {
	if cfg.Storage.BaselinesDB != "" {
		db, err := txwatch.OpenSQLiteBaselineStore(cfg.Storage.BaselinesDB)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.Load(ctx)
	}
	store, err := txwatch.LoadBaselines(ctx, backend, cfg.Storage.BaselinesKey)
	if err != nil {
		return nil, fmt.Errorf("%w (fit them with 'txwatch baselines fit')", err)
	}
	return store, nil
}

// printSummary writes one line per status of snap.
func printSummary(w io.Writer, snap txwatch.SessionSnapshot) {
	fmt.Fprintf(w, "Type:    %s\n", snap.TransactionType)
	fmt.Fprintf(w, "State:   %s (%d/%d ticks)\n", snap.State, snap.Tick, snap.TotalTicks)
	fmt.Fprintf(w, "Z limit: %g\n", snap.Threshold)
	for _, st := range snap.Statuses {
		if st.Error != "" {
			fmt.Fprintf(w, "  %-10s disabled: %s\n", st.Status, st.Error)
			continue
		}
		fmt.Fprintf(w, "  %-10s %d samples, %d anomalies", st.Status, len(st.Plotted), len(st.AnomalyMarks))
		if st.Detail != "" {
			fmt.Fprintf(w, " (%s)", st.Detail)
		}
		fmt.Fprintln(w)
	}
}
