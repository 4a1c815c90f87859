package reconcile

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
	"github.com/Iron-Ham/vimsaver/internal/testutil/sessionsim"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func item(idx int, stat, insert, path string, line int) snapshot.WorkspaceItem {
	return snapshot.WorkspaceItem{Index: idx, Status: stat, Modified: insert, Path: snapshot.PathOf(path), Line: line}
}

func newEngine(t *testing.T, world *sessionsim.World, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Recognizers:    []appstate.Recognizer{appstate.NewVim(appstate.VimOptions{Runner: world})},
		MaxPasses:      10,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		WaitForExit:    func(context.Context, int, time.Duration) bool { return true },
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(world, world, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestSave_ForegroundInstances(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(0, "bash", "/home/alice")
	world.AddWindow(1, "bash", "/srv/api")
	world.StartVim(1, "API", []snapshot.WorkspaceItem{
		item(1, "%a", "+", "/srv/api/main.go", 12),
		{Index: 2, Status: "a", Modified: "-", Path: nil, Line: 1},
	}, false)
	world.StartJob(0, []string{"top"}, false)

	e := newEngine(t, world, nil)
	snap, report, err := e.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := snapshot.Snapshot{
		1: {
			WorkDir: "/srv/api",
			App:     "vim",
			Title:   "API",
			Buffers: map[string][]snapshot.WorkspaceItem{
				"API": {
					item(1, "%a", "+", "/srv/api/main.go", 12),
					{Index: 2, Status: "a", Modified: "-", Path: nil, Line: 1},
				},
			},
		},
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("Save() =\n%+v\nwant\n%+v", snap[1], want[1])
	}
	if report.Passes != 1 || report.Restarts != 0 {
		t.Errorf("report = %+v, want one pass without restarts", report)
	}
	if len(report.Instances) != 1 || report.Instances[0].Server != "API" {
		t.Errorf("report.Instances = %+v", report.Instances)
	}
}

// Window 3 holds a suspended vim behind bash with one visible and one hidden
// buffer. The first pass only sends fg; the second extracts the visible buffer.
func TestSave_ResumesSuspendedInstance(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(3, "bash", "/home/alice/notes")
	world.StartVim(3, "NOTES", []snapshot.WorkspaceItem{
		item(1, "a", "-", "/a/b.txt", 10),
		item(2, "h", "-", "/c/d.txt", 1),
	}, true)

	var extractionsAtResume = -1
	world.OnSend = func(s sessionsim.Sent) {
		if len(s.Argv) > 0 && s.Argv[0] == "fg" {
			extractionsAtResume = world.Extractions("NOTES")
		}
	}

	m := metrics.New()
	e := newEngine(t, world, func(o *Options) { o.Metrics = m })
	snap, report, err := e.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got := world.SentCount("fg"); got != 1 {
		t.Errorf("fg sent %d times, want 1", got)
	}
	if extractionsAtResume != 0 {
		t.Errorf("extractions before resume = %d, want 0", extractionsAtResume)
	}
	if got := world.Extractions("NOTES"); got != 1 {
		t.Errorf("extractions = %d, want 1", got)
	}
	if report.Passes != 2 || report.Restarts != 1 {
		t.Errorf("report = %+v, want 2 passes and 1 restart", report)
	}

	items := snap[3].Buffers["NOTES"]
	want := []snapshot.WorkspaceItem{item(1, "a", "-", "/a/b.txt", 10)}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("items = %+v, want %+v", items, want)
	}
	if snap[3].Title != "NOTES" || snap[3].WorkDir != "/home/alice/notes" {
		t.Errorf("window 3 = %+v", snap[3])
	}

	const wantResumes = `
# HELP vimsaver_reconcile_resume_requests_total Number of resume commands sent to a shell.
# TYPE vimsaver_reconcile_resume_requests_total counter
vimsaver_reconcile_resume_requests_total 1
`
	if err := promtest.GatherAndCompare(m.Registry(), strings.NewReader(wantResumes),
		"vimsaver_reconcile_resume_requests_total"); err != nil {
		t.Errorf("resume metric: %v", err)
	}
}

func TestSave_DiscardsAbortedPass(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.AddWindow(2, "bash", "/two")
	world.AddWindow(3, "bash", "/three")
	world.StartVim(1, "ONE", []snapshot.WorkspaceItem{item(1, "a", "-", "/one/a", 1)}, false)
	world.StartVim(2, "TWO", []snapshot.WorkspaceItem{item(1, "a", "-", "/two/a", 1)}, false)
	world.StartVim(3, "THREE", []snapshot.WorkspaceItem{item(1, "a", "-", "/three/a", 1)}, true)

	// TWO exits between the passes.
	world.OnSend = func(s sessionsim.Sent) {
		if len(s.Argv) > 0 && s.Argv[0] == "fg" {
			_, _ = world.Run(context.Background(), "vim", "--servername", "TWO", "--remote-send", ":qa<CR>")
		}
	}

	snap, report, err := newEngine(t, world, nil).Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got := world.Extractions("ONE"); got != 2 {
		t.Errorf("ONE extracted %d times, want once per pass (2)", got)
	}
	if _, ok := snap[2]; ok {
		t.Error("window 2 from the aborted pass leaked into the result")
	}
	if got := snap.Indices(); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("windows = %v, want [1 3]", got)
	}
	if len(report.Instances) != 2 {
		t.Errorf("report.Instances = %+v, want the final pass only", report.Instances)
	}
}

func TestSave_SkipsInstanceBehindForeignProgram(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.AddWindow(2, "bash", "/two")
	world.StartVim(1, "STUCK", []snapshot.WorkspaceItem{item(1, "a", "-", "/x", 1)}, true)
	world.StartJob(1, []string{"less", "README"}, false)
	world.StartVim(2, "OK", []snapshot.WorkspaceItem{item(1, "a", "-", "/y", 1)}, false)

	m := metrics.New()
	snap, report, err := newEngine(t, world, func(o *Options) { o.Metrics = m }).Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, ok := snap[1]; ok {
		t.Error("window 1 should be skipped")
	}
	if _, ok := snap[2]; !ok {
		t.Error("window 2 should be saved")
	}
	if world.SentCount("fg") != 0 {
		t.Error("fg must not be typed into a foreign program")
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != metrics.ReasonForeignProcess {
		t.Errorf("report.Skipped = %+v", report.Skipped)
	}
}

func TestSave_SkipsFailedExtraction(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.AddWindow(2, "bash", "/two")
	world.StartVim(1, "BROKEN", nil, false)
	world.StartVim(2, "OK", []snapshot.WorkspaceItem{item(1, "a", "-", "/y", 1)}, false)
	world.FailExtract["BROKEN"] = true

	snap, report, err := newEngine(t, world, nil).Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(snap) != 1 || snap[2] == nil {
		t.Errorf("snapshot = %+v, want only window 2", snap)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != metrics.ReasonActionFailed {
		t.Errorf("report.Skipped = %+v", report.Skipped)
	}
}

func TestSave_MergesInstancesInOneWindow(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.StartVim(1, "FIRST", []snapshot.WorkspaceItem{item(1, "a", "-", "/a", 1)}, false)
	world.StartVim(1, "SECOND", []snapshot.WorkspaceItem{item(1, "a", "-", "/b", 1)}, false)

	snap, _, err := newEngine(t, world, nil).Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	w := snap[1]
	if w == nil || !reflect.DeepEqual(w.Servers(), []string{"FIRST", "SECOND"}) {
		t.Fatalf("window 1 = %+v, want both servers", w)
	}
	if w.Title != "FIRST" {
		t.Errorf("Title = %q, want the first instance observed", w.Title)
	}
}

func TestSave_RetriesExhausted(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.StartVim(1, "SLEEPY", nil, true)
	world.IgnoreResume = true

	m := metrics.New()
	_, report, err := newEngine(t, world, func(o *Options) {
		o.MaxPasses = 3
		o.Metrics = m
	}).Save(context.Background())

	if !errors.Is(err, verrors.ErrRetriesExhausted) {
		t.Fatalf("Save() error = %v, want ErrRetriesExhausted", err)
	}
	if !verrors.IsFatal(err) {
		t.Error("an exhausted pass budget should be fatal")
	}
	if report.Passes != 3 {
		t.Errorf("passes = %d, want 3", report.Passes)
	}
	if got := world.SentCount("fg"); got != 3 {
		t.Errorf("fg sent %d times, want 3", got)
	}
}

func TestSave_ContextCanceled(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.StartVim(1, "SLEEPY", nil, true)
	world.IgnoreResume = true

	ctx, cancel := context.WithCancel(context.Background())
	world.OnSend = func(sessionsim.Sent) { cancel() }

	_, _, err := newEngine(t, world, func(o *Options) { o.MaxPasses = 0 }).Save(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) ListTerminals(context.Context) ([]psjobs.Pseudoterminal, error) {
	return nil, f.err
}

func (f failingSource) ListProcesses(context.Context, string) ([]psjobs.ProcessRecord, error) {
	return nil, f.err
}

func TestSave_EnvironmentFailure(t *testing.T) {
	world := sessionsim.New("vimsaver")
	missing := verrors.NewEnvironmentError("w", "list terminals", verrors.ErrToolMissing)

	e, err := New(world, failingSource{err: missing}, Options{MaxPasses: 5})
	if err != nil {
		t.Fatal(err)
	}
	_, report, err := e.Save(context.Background())
	if !verrors.IsEnvironment(err) {
		t.Errorf("Save() error = %v, want an environment error", err)
	}
	if report.Passes != 1 {
		t.Errorf("passes = %d, want 1 (environment errors are not retried)", report.Passes)
	}
}

func TestQuit(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.AddWindow(2, "bash", "/two")
	world.StartVim(1, "ONE", nil, false)
	world.StartVim(2, "TWO", nil, true)

	report, err := newEngine(t, world, func(o *Options) { o.CloseShell = true }).Quit(context.Background())
	if err != nil {
		t.Fatalf("Quit() error = %v", err)
	}
	if got := world.Servers(); len(got) != 0 {
		t.Errorf("servers still running: %v", got)
	}
	if got := world.SentCount("exit"); got != 2 {
		t.Errorf("exit sent %d times, want 2", got)
	}
	if len(world.Windows()) != 0 {
		t.Errorf("windows left open: %v", world.Windows())
	}
	if report.Restarts != 1 {
		t.Errorf("restarts = %d, want 1 for the suspended instance", report.Restarts)
	}
	want := []InstanceRef{
		{Window: 1, App: "vim", Server: "ONE"},
		{Window: 2, App: "vim", Server: "TWO"},
	}
	if !reflect.DeepEqual(report.Instances, want) {
		t.Errorf("report.Instances = %+v, want %+v", report.Instances, want)
	}
}

func TestQuit_LeavesShellWhenInstanceLingers(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.StartVim(1, "ONE", nil, false)

	_, err := newEngine(t, world, func(o *Options) {
		o.CloseShell = true
		o.WaitForExit = func(context.Context, int, time.Duration) bool { return false }
	}).Quit(context.Background())
	if err != nil {
		t.Fatalf("Quit() error = %v", err)
	}
	if world.SentCount("exit") != 0 {
		t.Error("exit must not be sent while the instance may still be running")
	}
}

func TestQuit_WithoutCloseShell(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/one")
	world.StartVim(1, "ONE", nil, false)

	if _, err := newEngine(t, world, nil).Quit(context.Background()); err != nil {
		t.Fatalf("Quit() error = %v", err)
	}
	if world.SentCount("exit") != 0 {
		t.Error("exit sent with CloseShell disabled")
	}
	if len(world.Windows()) != 1 {
		t.Error("window should stay open")
	}
}

func TestStep_String(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{StepDone, "done"},
		{StepSkipped, "skipped"},
		{StepRestartPass, "restart"},
		{Step(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.step.String(); got != tt.want {
			t.Errorf("Step(%d).String() = %q, want %q", tt.step, got, tt.want)
		}
	}
}
