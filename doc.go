// Package txwatch replays transaction-status time series against a
// regular-day baseline and flags statistically anomalous samples as they
// arrive.
//
// Each status (denied, failed, reversed by default) is an independent
// pipeline: a SeriesCursor yields one sample per tick, the sample is scored
// with a z-score against the status baseline, and the status RenderState is
// updated on a copy and committed in one piece. Render sinks receive every
// committed Frame.
//
// # Basic Usage
//
// Build a baseline store and a session, then drive it with a Clock:
//
//	baselines := txwatch.NewBaselineStore(map[txwatch.BaselineKey]txwatch.Baseline{
//	    {TransactionType: "pix", Status: "denied"}: {Mean: 5, Stddev: 1},
//	})
//
//	cfg := txwatch.NewConfigBuilder("pix").WithStatuses("denied").MustBuild()
//	session, err := txwatch.NewSession(cfg, baselines, series, txwatch.LogSink{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	clock := txwatch.NewClock(cfg.TickInterval)
//	if err := clock.Run(ctx, session); err != nil {
//	    log.Fatal(err)
//	}
//
// Replay drives the same session without pacing, which is what tests and
// batch jobs use.
//
// # Anomaly Rule
//
// A sample is anomalous when |(value - mean) / stddev| exceeds the session
// threshold (3 by default). A zero stddev scores an exact match as 0 and
// anything else as an infinite z-score.
//
// # Sources and Outputs
//
// Series are read from CSV files of {time, status, value} rows on a
// StorageBackend (file, memory or S3). Baselines come from a YAML document
// or a SQLite table. Committed frames can be served over HTTP and WebSocket
// (Server, StreamHub), pushed to a Prometheus remote-write endpoint
// (RemoteWriteSink), and the frozen session can be exported (Exporter).
package txwatch
