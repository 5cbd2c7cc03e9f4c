package txwatch

import (
	"errors"
	"net/http"
)

// StateReader provides the committed session state.
// This interface allows HTTP handlers to be tested independently of a Session.
type StateReader interface {
	Snapshot() SessionSnapshot
	StatusState(status string) (RenderState, error)
}

var _ StateReader = (*Session)(nil)

// baselineEntry is the wire form of one baseline.
type baselineEntry struct {
	TransactionType string  `json:"transaction_type"`
	Status          string  `json:"status"`
	Mean            float64 `json:"mean"`
	Stddev          float64 `json:"stddev"`
}

// routes builds the read API:
//
//	GET /health
//	GET /api/v1/state
//	GET /api/v1/state/{status}
//	GET /api/v1/baselines
//	GET /ws                      (when a stream hub is configured)
func routes(state StateReader, baselines *BaselineStore, hub *StreamHub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap := state.Snapshot()
		writeJSONStatus(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"state":       snap.State,
			"tick":        snap.Tick,
			"total_ticks": snap.TotalTicks,
		})
	})

	mux.HandleFunc("GET /api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		jsonSuccess(w, state.Snapshot())
	})

	mux.HandleFunc("GET /api/v1/state/{status}", func(w http.ResponseWriter, r *http.Request) {
		st, err := state.StatusState(r.PathValue("status"))
		if errors.Is(err, ErrUnknownStatus) {
			jsonError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		jsonSuccess(w, st)
	})

	mux.HandleFunc("GET /api/v1/baselines", func(w http.ResponseWriter, r *http.Request) {
		entries := baselines.Entries()
		out := make([]baselineEntry, 0, len(entries))
		for _, k := range baselines.Keys() {
			if tt := r.URL.Query().Get("transaction_type"); tt != "" && tt != k.TransactionType {
				continue
			}
			b := entries[k]
			out = append(out, baselineEntry{
				TransactionType: k.TransactionType,
				Status:          k.Status,
				Mean:            b.Mean,
				Stddev:          b.Stddev,
			})
		}
		jsonSuccess(w, out)
	})

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.WebSocketHandler())
	}
	return mux
}
