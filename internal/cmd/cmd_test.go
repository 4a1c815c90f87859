package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/vimsaver/internal/config"
	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/session"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
	"github.com/Iron-Ham/vimsaver/internal/testutil/sessionsim"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so that values from an
// earlier Execute do not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// useWorld points the commands at a simulated session and isolates
// configuration and state in temporary directories.
func useWorld(t *testing.T, world *sessionsim.World) (stateDir string) {
	t.Helper()

	stateDir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", stateDir)
	t.Setenv("VIMSAVER_RECONCILE_INITIAL_BACKOFF", "1ms")
	t.Setenv("VIMSAVER_RECONCILE_MAX_BACKOFF", "2ms")
	t.Setenv("VIMSAVER_LOGGING_LEVEL", "error")

	setWorld(t, world)
	return filepath.Join(stateDir, "vimsaver")
}

func setWorld(t *testing.T, world *sessionsim.World) {
	t.Helper()
	original := hostEnvironment
	t.Cleanup(func() { hostEnvironment = original })

	hostEnvironment = func(cfg *config.Config, logger *logging.Logger) (*environment, error) {
		backends := mux.NewRegistry()
		backends.Register("screen", func(_ context.Context, opts mux.Options) (mux.Multiplexer, error) {
			if opts.Session != world.Session() {
				return nil, verrors.ErrSessionNotFound
			}
			return world, nil
		})
		return &environment{
			Runner:    world,
			Backends:  backends,
			Processes: world,
			WaitForExit: func(context.Context, int, time.Duration) bool {
				return true
			},
		}, nil
	}
}

func items(paths ...string) []snapshot.WorkspaceItem {
	out := make([]snapshot.WorkspaceItem, 0, len(paths))
	for i, p := range paths {
		out = append(out, snapshot.WorkspaceItem{
			Index: i + 1, Status: "a", Modified: snapshot.ModifiedNo, Path: snapshot.PathOf(p), Line: 1,
		})
	}
	return out
}

func populatedWorld() *sessionsim.World {
	world := sessionsim.New("work")
	world.AddWindow(1, "bash", "/src/one")
	world.StartVim(1, "ONE", items("/src/one/a.go", "/src/one/b.go"), false)
	world.AddWindow(3, "bash", "/src/three")
	world.StartVim(3, "THREE", items("/src/three/main.go"), true)
	return world
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "vimsaver" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "vimsaver")
	}

	expectedCmds := []string{"save", "load", "quit", "show", "history"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestSaveShowLoad(t *testing.T) {
	useWorld(t, populatedWorld())
	path := filepath.Join(t.TempDir(), "snap.json")

	output, err := executeCommand(rootCmd, "-s", "work", "save", "-o", path)
	if err != nil {
		t.Fatalf("save failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "2 windows, 2 instances, 3 items") {
		t.Errorf("save output = %q, want summary", output)
	}

	snap, err := snapshot.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if snap[3] == nil || snap[3].WorkDir != "/src/three" || snap[3].Title != "THREE" {
		t.Errorf("window 3 = %+v", snap[3])
	}

	output, err = executeCommand(rootCmd, "-s", "work", "show", "-i", path, "--format", "json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(output), &shown); err != nil {
		t.Fatalf("show --format json output is not JSON: %v\n%s", err, output)
	}
	if len(shown) != 2 {
		t.Errorf("show listed %d windows, want 2", len(shown))
	}

	output, err = executeCommand(rootCmd, "-s", "work", "show", "-i", path, "--format", "text")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	for _, want := range []string{"window 1", "ONE", "/src/one/b.go", "window 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("show output missing %q:\n%s", want, output)
		}
	}

	fresh := sessionsim.New("work")
	setWorld(t, fresh)
	output, err = executeCommand(rootCmd, "-s", "work", "load", "-i", path)
	if err != nil {
		t.Fatalf("load failed: %v\n%s", err, output)
	}
	if got := fresh.Servers(); len(got) != 2 {
		t.Errorf("servers after load = %v, want ONE and THREE", got)
	}
	if _, ok := fresh.Windows()[3]; !ok {
		t.Error("load should create window 3")
	}
	if !strings.Contains(output, "2 launched") {
		t.Errorf("load output = %q", output)
	}

	// A second load finds everything running.
	output, err = executeCommand(rootCmd, "-s", "work", "load", "-i", path)
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if !strings.Contains(output, "0 launched, 2 already running") {
		t.Errorf("second load output = %q", output)
	}
}

func TestShow_UnknownFormat(t *testing.T) {
	useWorld(t, sessionsim.New("work"))
	_, err := executeCommand(rootCmd, "show", "-i", "x.json", "--format", "toml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("show --format toml error = %v", err)
	}
}

func TestSave_SessionMissing(t *testing.T) {
	useWorld(t, sessionsim.New("work"))
	path := filepath.Join(t.TempDir(), "snap.json")

	_, err := executeCommand(rootCmd, "-s", "other", "save", "-o", path)
	if !errors.Is(err, verrors.ErrSessionNotFound) {
		t.Errorf("save error = %v, want ErrSessionNotFound", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no snapshot should be written when the session is missing")
	}
}

func TestSave_Locked(t *testing.T) {
	stateDir := useWorld(t, populatedWorld())

	held, err := session.AcquireLock(stateDir, "work", "load", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer func() { _ = held.Release() }()

	_, err = executeCommand(rootCmd, "-s", "work", "save", "-o", filepath.Join(t.TempDir(), "s.json"))
	if !errors.Is(err, verrors.ErrSessionLocked) {
		t.Errorf("save error = %v, want ErrSessionLocked", err)
	}
}

func TestHistory(t *testing.T) {
	useWorld(t, populatedWorld())
	t.Setenv("VIMSAVER_HISTORY_ENABLED", "true")
	path := filepath.Join(t.TempDir(), "snap.json")

	output, err := executeCommand(rootCmd, "-s", "work", "save", "-o", path)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.Contains(output, "history id") {
		t.Errorf("save output should name the history id: %q", output)
	}

	output, err = executeCommand(rootCmd, "-s", "work", "history", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(output, "sim") || !strings.Contains(output, "BACKEND") {
		t.Errorf("history list output = %q", output)
	}

	fresh := sessionsim.New("work")
	setWorld(t, fresh)
	if _, err := executeCommand(rootCmd, "-s", "work", "load", "--from-history", "latest"); err != nil {
		t.Fatalf("load --from-history failed: %v", err)
	}
	if got := fresh.Servers(); len(got) != 2 {
		t.Errorf("servers after load = %v, want 2", got)
	}
}

func TestQuit(t *testing.T) {
	world := populatedWorld()
	useWorld(t, world)

	output, err := executeCommand(rootCmd, "-s", "work", "quit")
	if err != nil {
		t.Fatalf("quit failed: %v\n%s", err, output)
	}
	if got := world.Servers(); len(got) != 0 {
		t.Errorf("servers after quit = %v, want none", got)
	}
	if !strings.Contains(output, "Quit 2 instances") {
		t.Errorf("quit output = %q", output)
	}
}

func TestMetricsFile(t *testing.T) {
	useWorld(t, populatedWorld())
	metricsPath := filepath.Join(t.TempDir(), "vimsaver.prom")

	_, err := executeCommand(rootCmd, "-s", "work", "--metrics-file", metricsPath,
		"save", "-o", filepath.Join(t.TempDir(), "s.json"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "vimsaver_last_run_success") {
		t.Errorf("metrics file missing vimsaver_last_run_success:\n%s", data)
	}
}
