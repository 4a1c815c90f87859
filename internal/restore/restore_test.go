package restore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	"github.com/Iron-Ham/vimsaver/internal/reconcile"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
	"github.com/Iron-Ham/vimsaver/internal/testutil/sessionsim"
)

func item(idx int, path string) snapshot.WorkspaceItem {
	return snapshot.WorkspaceItem{Index: idx, Status: "a", Modified: "-", Path: snapshot.PathOf(path), Line: 1}
}

func savedSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		3: {
			WorkDir: "/home/alice/notes",
			App:     "vim",
			Title:   "NOTES",
			Buffers: map[string][]snapshot.WorkspaceItem{
				"NOTES": {
					item(1, "/a/b.txt"),
					{Index: 2, Status: "a", Modified: "-", Path: nil, Line: 1},
					item(3, "/c/my notes.txt"),
				},
			},
		},
		1: {
			WorkDir: "/srv",
			App:     "vim",
			Title:   "SRV",
			Buffers: map[string][]snapshot.WorkspaceItem{
				"SRV": {item(1, "/srv/main.go")},
			},
		},
	}
}

func newRestore(world *sessionsim.World) *Engine {
	vim := appstate.NewVim(appstate.VimOptions{Runner: world, ProbeTimeout: time.Second})
	return New(world, appstate.NewRegistry(vim), Options{})
}

func TestRestore_CreatesWindowsAndLaunches(t *testing.T) {
	world := sessionsim.New("vimsaver")
	world.AddWindow(1, "bash", "/")

	report, err := newRestore(world).Restore(context.Background(), savedSnapshot())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if !reflect.DeepEqual(report.WindowsCreated, []int{3}) {
		t.Errorf("WindowsCreated = %v, want [3]", report.WindowsCreated)
	}
	if !reflect.DeepEqual(report.Launched, []string{"SRV", "NOTES"}) {
		t.Errorf("Launched = %v, want windows in index order", report.Launched)
	}

	wantSent := []sessionsim.Sent{
		{Window: 1, Argv: []string{"cd", "/srv"}},
		{Window: 1, Argv: []string{"vim", "--servername", "SRV", "-p", "/srv/main.go"}},
		{Window: 3, Argv: []string{"cd", "/home/alice/notes"}},
		{Window: 3, Argv: []string{"vim", "--servername", "NOTES", "-p", "/a/b.txt", "/c/my notes.txt"}},
	}
	if got := world.Sent(); !reflect.DeepEqual(got, wantSent) {
		t.Errorf("sent =\n%+v\nwant\n%+v", got, wantSent)
	}

	windows := world.Windows()
	if windows[1].Title != "SRV" || windows[3].Title != "NOTES" {
		t.Errorf("titles = %q, %q", windows[1].Title, windows[3].Title)
	}
}

func TestRestore_Idempotent(t *testing.T) {
	world := sessionsim.New("vimsaver")
	e := newRestore(world)

	if _, err := e.Restore(context.Background(), savedSnapshot()); err != nil {
		t.Fatalf("first Restore() error = %v", err)
	}
	sentAfterFirst := len(world.Sent())

	report, err := e.Restore(context.Background(), savedSnapshot())
	if err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if len(report.Launched) != 0 {
		t.Errorf("second restore launched %v", report.Launched)
	}
	if !reflect.DeepEqual(report.AlreadyRunning, []string{"SRV", "NOTES"}) {
		t.Errorf("AlreadyRunning = %v", report.AlreadyRunning)
	}
	if len(report.WindowsCreated) != 0 {
		t.Errorf("second restore created windows %v", report.WindowsCreated)
	}
	if got := len(world.Sent()); got != sentAfterFirst {
		t.Errorf("second restore typed %d more lines", got-sentAfterFirst)
	}
	if got := world.Servers(); !reflect.DeepEqual(got, []string{"NOTES", "SRV"}) {
		t.Errorf("servers = %v, want one instance each", got)
	}
}

func TestRestore_UnknownApp(t *testing.T) {
	world := sessionsim.New("vimsaver")
	snap := snapshot.Snapshot{
		2: {WorkDir: "/", App: "emacs", Title: "EMACS", Buffers: map[string][]snapshot.WorkspaceItem{"E": nil}},
	}

	report, err := newRestore(world).Restore(context.Background(), snap)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !reflect.DeepEqual(report.UnknownApps, []int{2}) {
		t.Errorf("UnknownApps = %v, want [2]", report.UnknownApps)
	}
	if len(world.Sent()) != 0 {
		t.Errorf("nothing should be typed for an unknown app, got %v", world.Sent())
	}
	if world.Windows()[2].Title != "EMACS" {
		t.Error("the window should still be created and titled")
	}
}

// Saving a restored session yields the snapshot that was restored, modulo
// item details the relaunch cannot reproduce.
func TestRoundTrip(t *testing.T) {
	world := sessionsim.New("vimsaver")
	want := savedSnapshot()

	if _, err := newRestore(world).Restore(context.Background(), want); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	vim := appstate.NewVim(appstate.VimOptions{Runner: world})
	saver, err := reconcile.New(world, world, reconcile.Options{
		Recognizers:    []appstate.Recognizer{vim},
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := saver.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !reflect.DeepEqual(got.Indices(), want.Indices()) {
		t.Fatalf("windows = %v, want %v", got.Indices(), want.Indices())
	}
	for _, idx := range want.Indices() {
		g, w := got[idx], want[idx]
		if g.Title != w.Title || g.App != w.App || g.WorkDir != w.WorkDir {
			t.Errorf("window %d = %+v, want %+v", idx, g, w)
		}
		if !reflect.DeepEqual(g.Servers(), w.Servers()) {
			t.Errorf("window %d servers = %v, want %v", idx, g.Servers(), w.Servers())
		}
		for _, server := range w.Servers() {
			if !reflect.DeepEqual(g.Paths(server), w.Paths(server)) {
				t.Errorf("window %d %s paths = %v, want %v", idx, server, g.Paths(server), w.Paths(server))
			}
		}
	}
}
