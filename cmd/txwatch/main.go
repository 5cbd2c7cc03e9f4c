// txwatch replays transaction-status series against regular-day baselines
// and reports anomalies as they are stepped.
//
// Usage:
//
//	txwatch run <series-id> [--interval=200ms] [--http=127.0.0.1:8087]
//	txwatch baselines fit <transaction-type> <day-id>... [--db=<path>]
//	txwatch baselines show [--type=<transaction-type>]
//	txwatch export show <key> [--password=<pw>] [--json]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
