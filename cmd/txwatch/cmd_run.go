package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/txwatch/txwatch"
)

type runOptions struct {
	interval     time.Duration
	threshold    float64
	statuses     []string
	date         string
	httpAddr     string
	hold         bool
	remoteWrite  string
	export       bool
	exportKey    string
	exportFormat string
	password     string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <series-id>",
		Short: "Replay a series and flag anomalies tick by tick",
		Long: `Loads <series-id>.csv from the storage backend, scores every sample
against the baseline of the series' transaction type and logs each anomaly.
Statuses without a baseline are reported once and skipped; the run ends
once every series is exhausted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.DurationVar(&opts.interval, "interval", 200*time.Millisecond, "pause between ticks (0 replays at once)")
	f.Float64Var(&opts.threshold, "threshold", 3, "|z| above which a sample is anomalous")
	f.StringSliceVar(&opts.statuses, "statuses", nil, "statuses to replay (default denied,failed,reversed)")
	f.StringVar(&opts.date, "date", "", "session date YYYY-MM-DD (default today, UTC)")
	f.StringVar(&opts.httpAddr, "http", "", "serve the read API and WebSocket stream on this address")
	f.BoolVar(&opts.hold, "hold", false, "keep the HTTP API up after the run finishes, until interrupted")
	f.StringVar(&opts.remoteWrite, "remote-write", "", "Prometheus remote-write URL to push every frame to")
	f.BoolVar(&opts.export, "export", false, "write the final snapshot to the storage backend")
	f.StringVar(&opts.exportKey, "export-key", "", "export storage key (default exports/<series-id>.txw)")
	f.StringVar(&opts.exportFormat, "export-format", "", "export format (snapshot or csv)")
	f.StringVar(&opts.password, "password", "", "seal the snapshot export with this password")
	return cmd
}

// apply overlays the flags the user set on cfg.
func (o *runOptions) apply(flags interface{ Changed(string) bool }, cfg *txwatch.Config) error {
	if flags.Changed("interval") {
		cfg.TickInterval = o.interval
	}
	if flags.Changed("threshold") {
		cfg.Threshold = o.threshold
	}
	if flags.Changed("statuses") {
		cfg.Statuses = o.statuses
	}
	if o.date != "" {
		d, err := time.Parse(time.DateOnly, o.date)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		cfg.SessionDate = d
	}
	if o.httpAddr != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.remoteWrite != "" {
		rw := txwatch.RemoteWriteConfig{}
		if cfg.RemoteWrite != nil {
			rw = *cfg.RemoteWrite
		}
		rw.Enabled = true
		rw.URL = o.remoteWrite
		cfg.RemoteWrite = &rw
	}
	if o.export || o.exportKey != "" || o.exportFormat != "" || o.password != "" {
		ex := txwatch.ExportConfig{}
		if cfg.Export != nil {
			ex = *cfg.Export
		}
		ex.Enabled = true
		if o.exportKey != "" {
			ex.Key = o.exportKey
		}
		if o.exportFormat != "" {
			ex.Format = txwatch.ExportFormat(o.exportFormat)
		}
		if o.password != "" {
			ex.Password = o.password
		}
		cfg.Export = &ex
	}
	return cfg.Validate()
}

func runRun(cmd *cobra.Command, g *globalOptions, opts *runOptions, id string) error {
	cfg, err := g.loadConfig(id)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd.Flags(), &cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := txwatch.OpenStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	series, err := txwatch.LoadSeries(ctx, backend, id, cfg.Date())
	if err != nil {
		return err
	}
	baselines, err := loadBaselines(ctx, cfg, backend)
	if err != nil {
		return err
	}

	sinks := []txwatch.RenderSink{txwatch.LogSink{}}

	var hub *txwatch.StreamHub
	if cfg.HTTP.Enabled && cfg.Stream.Enabled {
		hub = txwatch.NewStreamHub(cfg.Stream, nil)
		defer hub.Close()
		sinks = append(sinks, hub)
	}

	if cfg.RemoteWrite != nil && cfg.RemoteWrite.Enabled {
		rw, err := txwatch.NewRemoteWriteSink(*cfg.RemoteWrite, cfg.TransactionType)
		if err != nil {
			return err
		}
		rw.Start()
		defer func() {
			if err := rw.Close(); err != nil {
				slog.Warn("remote write close failed", "err", err)
			}
			slog.Info("remote write stopped", "sent", rw.Sent(), "dropped", rw.Dropped())
		}()
		sinks = append(sinks, rw)
	}

	var exporter *txwatch.Exporter
	if cfg.Export != nil && cfg.Export.Enabled {
		exporter = txwatch.NewExporter(backend, *cfg.Export)
		sinks = append(sinks, exporter)
	}

	session, err := txwatch.NewSession(cfg, baselines, series, sinks...)
	if err != nil {
		return err
	}
	if hub != nil {
		hub.SetSource(session)
	}

	slog.Info("replaying series",
		"id", id,
		"type", cfg.TransactionType,
		"ticks", session.TotalTicks(),
		"interval", cfg.TickInterval,
		"threshold", cfg.Threshold)

	eg, egCtx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(egCtx)
	defer stopServer()

	if cfg.HTTP.Enabled {
		srv := txwatch.NewServer(cfg.HTTP.Addr, session, baselines, hub)
		eg.Go(func() error {
			return srv.Run(srvCtx)
		})
	}

	eg.Go(func() error {
		err := txwatch.NewClock(cfg.TickInterval).Run(egCtx, session)
		if !opts.hold {
			stopServer()
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			slog.Info("interrupted", "tick", session.Tick())
			return nil
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), session.Snapshot())
	if exporter != nil && session.State() == txwatch.SessionFinished {
		key := exporter.KeyFor(cfg.TransactionType)
		if ok, _ := backend.Exists(context.Background(), key); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Export:  %s\n", key)
		}
	}
	return nil
}
