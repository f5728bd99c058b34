package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/workflow"
)

func sampleSnapshot() workflow.Snapshot {
	return workflow.Snapshot{
		RunID:     "run-1",
		Goal:      "A. B.",
		State:     workflow.StateRunning,
		Iteration: 1,
		Checklist: "1. [x] A\n2. [ ] B",
		Optimizer: optimizer.Metrics{CompositeScore: 1, TotalTraces: 1, Scores: []float64{1}},
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(&StateHolder{}, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStateBeforeAndAfterUpdate(t *testing.T) {
	holder := &StateHolder{}
	srv := httptest.NewServer(NewServer(holder, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before update = %d", resp.StatusCode)
	}

	holder.Update(sampleSnapshot())

	resp, err = http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["run_id"] != "run-1" || body["state"] != "running" {
		t.Errorf("body = %v", body)
	}
	gepa, ok := body["gepa"].(map[string]any)
	if !ok || gepa["composite_score"] != 1.0 {
		t.Errorf("gepa = %v", body["gepa"])
	}
}

func TestChecklistPage(t *testing.T) {
	holder := &StateHolder{}
	holder.Update(sampleSnapshot())
	srv := httptest.NewServer(NewServer(holder, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "1. [x] A\n2. [ ] B") || !strings.Contains(string(data), "Goal: A. B.") {
		t.Errorf("page = %q", data)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&StateHolder{}, Options{}).Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
