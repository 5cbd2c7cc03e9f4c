package txwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type apiResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorType string          `json:"errorType"`
	Error     string          `json:"error"`
}

func apiSession(t *testing.T) (*Session, *BaselineStore) {
	t.Helper()
	baselines := testBaselines(t, "tx", map[string]Baseline{
		"denied": {Mean: 5, Stddev: 1},
		"failed": {Mean: 2, Stddev: 1},
	})
	s := newTestSession(t, []string{"denied", "failed"}, baselines, map[string]*Series{
		"denied": minuteSeries(t, "denied", 5, 30, 5),
		"failed": minuteSeries(t, "failed", 2, 2, 2),
	})
	return s, baselines
}

func getJSON(t *testing.T, h http.Handler, path string) (int, apiResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("GET %s: invalid JSON %q: %v", path, rec.Body.String(), err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("GET %s: content type %q", path, ct)
	}
	return rec.Code, resp
}

func TestHTTP_Health(t *testing.T) {
	s, baselines := apiSession(t)
	h := routes(s, baselines, nil)
	_, _ = s.Step()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "running" || body["tick"] != float64(1) || body["total_ticks"] != float64(3) {
		t.Errorf("health = %v", body)
	}
}

func TestHTTP_State(t *testing.T) {
	s, baselines := apiSession(t)
	h := routes(s, baselines, nil)
	if _, err := Replay(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	code, resp := getJSON(t, h, "/api/v1/state")
	if code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("state: %d %+v", code, resp)
	}
	var snap SessionSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != SessionFinished || len(snap.Statuses) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	code, resp = getJSON(t, h, "/api/v1/state/denied")
	if code != http.StatusOK {
		t.Fatalf("status state: %d %+v", code, resp)
	}
	var st RenderState
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Plotted) != 3 || !st.IsMarked(1) || !st.Frozen {
		t.Errorf("denied state = %+v", st)
	}
	if st.Detail != "Latest possible anomaly: 30 transactions denied at 10:01:00" {
		t.Errorf("detail = %q", st.Detail)
	}

	code, resp = getJSON(t, h, "/api/v1/state/chargeback")
	if code != http.StatusNotFound || resp.Status != "error" || resp.ErrorType != "not_found" {
		t.Errorf("unknown status: %d %+v", code, resp)
	}
}

func TestHTTP_Baselines(t *testing.T) {
	s, baselines := apiSession(t)
	h := routes(s, baselines, nil)

	_, resp := getJSON(t, h, "/api/v1/baselines")
	var entries []baselineEntry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Status != "denied" || entries[0].Mean != 5 {
		t.Errorf("baselines = %+v", entries)
	}

	_, resp = getJSON(t, h, "/api/v1/baselines?transaction_type=ted")
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("filtered baselines = %+v", entries)
	}
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	s, baselines := apiSession(t)
	rec := httptest.NewRecorder()
	routes(s, baselines, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestServer_StartClose(t *testing.T) {
	s, baselines := apiSession(t)
	hub := NewStreamHub(DefaultStreamConfig(), s)
	srv := NewServer("127.0.0.1:0", s, baselines, hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != MessageSnapshot {
		t.Fatalf("first message = %+v, %v", msg, err)
	}

	_ = hub.Close()
	if err := srv.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("websocket should be closed with the hub")
	}
	if _, err := http.Get("http://" + srv.Addr() + "/health"); err == nil {
		t.Error("server should be closed")
	}
}

func TestServer_Run(t *testing.T) {
	s, baselines := apiSession(t)
	srv := NewServer("127.0.0.1:0", s, baselines, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil && !strings.Contains(err.Error(), "closed") {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
