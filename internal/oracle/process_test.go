package oracle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestRunPrompt(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		prompt     string
		wantOut    string
		wantErrSub string
	}{
		{name: "echoes stdin", script: "cat", prompt: "hello", wantOut: "hello"},
		{name: "reads last line", script: "tail -n 1", prompt: "system\nGoal: x", wantOut: "Goal: x"},
		{name: "stderr folded into error", script: "echo partial; echo broken >&2; exit 3", wantOut: "partial\n", wantErrSub: "broken"},
		{name: "exit without stderr", script: "exit 2", wantErrSub: "exit status 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCommand(context.Background(), "bash", "-c", tt.script)
			out, err := runPrompt(cmd, tt.prompt, nil)

			if tt.wantErrSub == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErrSub != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErrSub)) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErrSub)
			}
			if string(out) != tt.wantOut {
				t.Errorf("stdout = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

// A response larger than the pipe buffer must not stall the oracle.
func TestRunPromptLargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "bash", "-c", "for i in $(seq 1 20000); do echo line-$i-padding-padding; done")
	out, err := runPrompt(cmd, "", nil)
	if err != nil {
		t.Fatalf("runPrompt failed: %v", err)
	}
	if lines := strings.Count(string(out), "\n"); lines != 20000 {
		t.Errorf("got %d lines, want 20000", lines)
	}
}

// A grandchild holding the output pipe must not keep a cancelled call alive.
func TestRunPromptCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "bash", "-c", "sleep 30 & wait")
	done := make(chan error, 1)
	go func() {
		_, err := runPrompt(cmd, "", nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runPrompt did not return after cancellation")
	}
}

func TestProcessManagerTracksRunningOracle(t *testing.T) {
	pm := NewProcessManager()
	cmd := newCommand(context.Background(), "bash", "-c", "sleep 30")

	done := make(chan error, 1)
	go func() {
		_, err := runPrompt(cmd, "", pm)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Fatalf("tracked = %d, want 1", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll failed: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected killed oracle to report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("oracle did not exit after KillAll")
	}
	if pm.Count() != 0 {
		t.Errorf("tracked = %d after exit, want 0", pm.Count())
	}
}

func TestProcessManagerKillsProcessTree(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "bash", "-c", "sleep 30 & sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	parent := cmd.Process.Pid
	pm.Track(cmd)

	time.Sleep(200 * time.Millisecond)
	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll failed: %v", err)
	}
	cmd.Wait()
	pm.Untrack(cmd)

	// pgrep exits 1 when nothing matches.
	output, err := exec.Command("pgrep", "-P", fmt.Sprintf("%d", parent)).CombinedOutput()
	if err == nil && len(bytes.TrimSpace(output)) > 0 {
		t.Errorf("children still running after KillAll: %s", output)
	}
}

func TestNilProcessManager(t *testing.T) {
	var pm *ProcessManager
	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll on nil manager: %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("Count on nil manager = %d", pm.Count())
	}
}
