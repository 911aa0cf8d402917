package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"loopline/internal/config"
	"loopline/internal/engine"
	"loopline/internal/executor"
	"loopline/internal/store"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	st := store.New()
	reg := executor.NewRegistry(cfg.Executors.Default, executor.Simulated{})
	eng := engine.New(st, reg, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	eng.Rand = func() float64 { return 0 }
	handler, err := New(Config{Engine: eng, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: eng,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil || body["status"] != "ok" {
		t.Fatalf("body = %s err = %v", data, err)
	}
}

func TestSubmitAndGetProposal(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"title":      "scan the market",
		"proposer":   "cmo",
		"step_kinds": []string{"market_scan"},
		"context":    map[string]any{"confidence": 0.9},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var p ProposalResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != "completed" || !p.AutoApproved || p.MissionID == "" {
		t.Fatalf("unexpected proposal %+v", p)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/proposals/"+p.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d body = %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/"+p.MissionID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mission status = %d body = %s", res.StatusCode, data)
	}
	var m MissionResponse
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	if m.Status != "succeeded" || len(m.Steps) != 1 || m.Steps[0].Status != "succeeded" {
		t.Fatalf("unexpected mission %+v", m)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"title": "no kinds",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "bad_request" {
		t.Fatalf("body = %s err = %v", data, err)
	}
}

func TestGetProposalNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/proposals/prop_missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("body = %s err = %v", data, err)
	}
}

func TestApproveFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// strategic_decision is not auto-approvable.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"title":      "pivot the company",
		"step_kinds": []string{"strategic_decision"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var p ProposalResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != "awaiting_approval" {
		t.Fatalf("expected awaiting_approval, got %s", p.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals/"+p.ID+"/approve", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d body = %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != "completed" {
		t.Fatalf("expected completed, got %s", p.Status)
	}

	// A second approval hits the status guard.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals/"+p.ID+"/approve", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second approve status = %d body = %s", res.StatusCode, data)
	}
}

func TestStatusAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"title":      "scan",
		"step_kinds": []string{"market_scan"},
		"context":    map[string]any{"confidence": 0.9},
	})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/status", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.StatusCode, data)
	}
	var st StatusResponse
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.CompanyID == "" || st.ProposalsByStatus["completed"] != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Stats.MissionsCompleted != 1 {
		t.Fatalf("unexpected stats %+v", st.Stats)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=5", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d body = %s", res.StatusCode, data)
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) == 0 || events[0].ID < events[len(events)-1].ID {
		t.Fatalf("expected newest-first events, got %+v", events)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/triggers", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("triggers status = %d body = %s", res.StatusCode, data)
	}
	var triggers []TriggerResponse
	if err := json.Unmarshal(data, &triggers); err != nil || len(triggers) != 2 {
		t.Fatalf("triggers = %s err = %v", data, err)
	}
}
