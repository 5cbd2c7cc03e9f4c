package txwatch

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSONStatus encodes data as JSON with the given status code.
// Encoding errors are logged, the header is already sent by then.
func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
	}
}

// jsonSuccess writes {"status":"success","data":...}.
func jsonSuccess(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   data,
	})
}

// jsonError writes {"status":"error","errorType":...,"error":...}.
func jsonError(w http.ResponseWriter, status int, errorType, message string) {
	if status >= 500 {
		slog.Error("HTTP error", "status", status, "message", message)
	} else {
		slog.Debug("HTTP error", "status", status, "message", message)
	}
	writeJSONStatus(w, status, map[string]any{
		"status":    "error",
		"errorType": errorType,
		"error":     message,
	})
}
