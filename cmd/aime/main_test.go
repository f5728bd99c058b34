package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/oracle"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/persistence"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/workflow"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Tools.Workspace = filepath.Join(dir, "ws")
	cfg.Optimizer.TracePath = filepath.Join(dir, ".aime", "trace.jsonl")
	cfg.Store.Path = filepath.Join(dir, ".aime", "runs.db")
	cfg.Logging.Level = "error"
	cfg.Logging.File = ""
	return cfg
}

func TestExecuteWritesReportAndLedger(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	report, err := execute(context.Background(), cfg, runOptions{}, "Write notes [path=notes.txt content=hi]. List files.", &out)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if report.State != workflow.StateComplete {
		t.Errorf("state = %s", report.State)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Tools.Workspace, "notes.txt"))
	if err != nil || string(data) != "hi" {
		t.Errorf("notes.txt = %q, %v", data, err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	for _, k := range []string{"goal", "history", "tasks", "rationale"} {
		if _, ok := decoded[k]; !ok {
			t.Errorf("report missing %q", k)
		}
	}

	store, err := persistence.NewSQLiteStore(context.Background(), cfg.Store.Path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var listing bytes.Buffer
	if err := listRuns(context.Background(), store, 10, &listing); err != nil {
		t.Fatalf("listRuns failed: %v", err)
	}
	if !strings.Contains(listing.String(), report.RunID) || !strings.Contains(listing.String(), "complete") {
		t.Errorf("listing = %q", listing.String())
	}
}

func TestExecuteWarmStartsFromTrace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false

	var out bytes.Buffer
	first, err := execute(context.Background(), cfg, runOptions{}, "Read absent.txt [path=absent.txt]", &out)
	if err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	if first.State != workflow.StatePartial {
		t.Fatalf("first state = %s", first.State)
	}

	out.Reset()
	second, err := execute(context.Background(), cfg, runOptions{}, "A.", &out)
	if err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	if !strings.Contains(second.Optimizer.BestPrompt, "Reminder: incorporate feedback -> Tool read_file failed") {
		t.Errorf("prompt not restored: %q", second.Optimizer.BestPrompt)
	}

	var summary bytes.Buffer
	if err := summariseTrace(cfg.Optimizer.TracePath, 5, &summary); err != nil {
		t.Fatalf("summariseTrace failed: %v", err)
	}
	if !strings.Contains(summary.String(), "Records:  2 (0 skipped)") || !strings.Contains(summary.String(), "Learned prompt:") {
		t.Errorf("summary = %q", summary.String())
	}
}

func TestRunOptionsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	runOptions{addr: "127.0.0.1:0", maxIterations: 3, noStore: true}.apply(cfg)
	if cfg.Dashboard.Addr != "127.0.0.1:0" || cfg.Workflow.MaxIterations != 3 || cfg.Store.Enabled {
		t.Errorf("cfg = %+v %+v %+v", cfg.Dashboard, cfg.Workflow, cfg.Store)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := loadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("AIME_TEST_FROM_DOTENV=yes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AIME_TEST_FROM_DOTENV", "")
	os.Unsetenv("AIME_TEST_FROM_DOTENV")
	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv failed: %v", err)
	}
	if got := os.Getenv("AIME_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("env = %q", got)
	}
}

func TestSummariseMissingTrace(t *testing.T) {
	var out bytes.Buffer
	if err := summariseTrace(filepath.Join(t.TempDir(), "none.jsonl"), 5, &out); err != nil {
		t.Fatalf("summariseTrace failed: %v", err)
	}
	if !strings.Contains(out.String(), "Records:  0") {
		t.Errorf("summary = %q", out.String())
	}
}

// TestProcessManagerKillAllOnShutdown verifies that ProcessManager.KillAll()
// terminates tracked oracle processes during shutdown.
func TestProcessManagerKillAllOnShutdown(t *testing.T) {
	pm := oracle.NewProcessManager()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)

	if count := pm.Count(); count != 1 {
		t.Errorf("Expected 1 tracked process, got %d", count)
	}
	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after KillAll()")
	}
	pm.Untrack(cmd)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "runs", "traces", "config"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".aime", "config.yaml")

	if err := initConfig(path, false); err != nil {
		t.Fatalf("initConfig failed: %v", err)
	}
	if err := initConfig(path, false); err == nil {
		t.Error("expected error for existing file")
	}
	if err := initConfig(path, true); err != nil {
		t.Errorf("initConfig with force failed: %v", err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	var out bytes.Buffer
	if err := showConfig(cfg, &out); err != nil {
		t.Fatalf("showConfig failed: %v", err)
	}
	if !strings.Contains(out.String(), "window_size: 5") {
		t.Errorf("config output missing window_size:\n%s", out.String())
	}
}
