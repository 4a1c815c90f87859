package appstate

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
	"github.com/Iron-Ham/vimsaver/internal/testutil"
)

func TestVim_Matches(t *testing.T) {
	v := NewVim(VimOptions{Runner: testutil.NewFakeRunner()})

	tests := []struct {
		name string
		cli  []string
		want bool
	}{
		{"named vim", []string{"vim", "--servername", "NOTES"}, true},
		{"full path with files", []string{"/usr/bin/gvim", "--servername", "NOTES", "a.txt"}, true},
		{"flag later", []string{"vim", "-p", "--servername", "X", "a.txt"}, true},
		{"unnamed vim", []string{"vim", "a.txt"}, false},
		{"flag without value", []string{"vim", "--servername"}, false},
		{"not vim", []string{"less", "--servername", "X"}, false},
		{"vim in an argument only", []string{"cat", "vimrc", "--servername", "X"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Matches(psjobs.ProcessRecord{CLI: tt.cli}); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.cli, got, tt.want)
			}
		})
	}
}

func TestVim_Attach(t *testing.T) {
	v := NewVim(VimOptions{Runner: testutil.NewFakeRunner()})

	inst, err := v.Attach(psjobs.ProcessRecord{PID: 7, CLI: []string{"vim", "--servername", "NOTES"}})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if inst.Identity() != "NOTES" {
		t.Errorf("Identity() = %q, want %q", inst.Identity(), "NOTES")
	}

	if _, err := v.Attach(psjobs.ProcessRecord{PID: 8, CLI: []string{"vim"}}); err == nil {
		t.Error("Attach() of an unnamed vim should fail")
	}
}

func TestParseBufferList(t *testing.T) {
	out := `
  1 %a   "/a/b.txt"                     line 10
  2 #h   "/c/d.txt"                     line 1
  3  a + "/e/f g.txt"                   line 42
  4  h + "/hidden.txt"                  line 3
  5 %a   "[No Name]"                    line 1
garbage
  6 a "unterminated line 5
`
	got := ParseBufferList(out)
	want := []snapshot.WorkspaceItem{
		{Index: 1, Status: "%a", Modified: "-", Path: snapshot.PathOf("/a/b.txt"), Line: 10},
		{Index: 3, Status: "a", Modified: "+", Path: snapshot.PathOf("/e/f g.txt"), Line: 42},
		{Index: 5, Status: "%a", Modified: "-", Path: nil, Line: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseBufferList() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestVimInstance_ExtractItems(t *testing.T) {
	fake := testutil.NewFakeRunner().
		Stub("vim --servername NOTES --remote-expr MyBuffers()",
			"  1 %a   \"/a/b.txt\"  line 10\n  2 h    \"/c/d.txt\"  line 1\n")
	v := NewVim(VimOptions{Runner: fake, BufferListFunc: "MyBuffers"})

	items, err := v.Lookup("NOTES").ExtractItems(context.Background())
	if err != nil {
		t.Fatalf("ExtractItems() error = %v", err)
	}
	if len(items) != 1 || *items[0].Path != "/a/b.txt" {
		t.Errorf("ExtractItems() = %+v, want only /a/b.txt", items)
	}
}

func TestVimInstance_ExtractItems_Failure(t *testing.T) {
	fake := testutil.NewFakeRunner().
		StubError("vim --servername GONE --remote-expr BufferList()", testutil.ExitError("vim", 1))
	v := NewVim(VimOptions{Runner: fake})

	_, err := v.Lookup("GONE").ExtractItems(context.Background())
	if !verrors.IsEnvironment(err) {
		t.Errorf("ExtractItems() error = %v, want an environment error", err)
	}
}

func TestVimInstance_IsReachable(t *testing.T) {
	tests := []struct {
		name string
		resp testutil.Response
		want bool
	}{
		{"listed", testutil.Response{Output: "OTHER\nNOTES\n"}, true},
		{"listed in another case", testutil.Response{Output: "notes\n"}, true},
		{"not listed", testutil.Response{Output: "OTHER\n"}, false},
		{"probe failed", testutil.Response{Err: testutil.ExitError("vim --serverlist", 1)}, false},
		{"probe timed out", testutil.Response{Err: context.DeadlineExceeded}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeRunner().StubResponse("vim --serverlist", tt.resp)
			v := NewVim(VimOptions{Runner: fake, ProbeTimeout: time.Second})
			if got := v.Lookup("NOTES").IsReachable(context.Background()); got != tt.want {
				t.Errorf("IsReachable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVimInstance_RequestQuit(t *testing.T) {
	fake := testutil.NewFakeRunner().
		Stub(`vim --servername NOTES --remote-send <C-\><C-N>:wqa<CR>`, "")
	v := NewVim(VimOptions{Runner: fake})

	if err := v.Lookup("NOTES").RequestQuit(context.Background()); err != nil {
		t.Errorf("RequestQuit() error = %v", err)
	}
	if fake.Count(`vim --servername NOTES --remote-send <C-\><C-N>:wqa<CR>`) != 1 {
		t.Errorf("quit keys sent %v", fake.Calls())
	}
}

func TestVimInstance_LaunchCommand(t *testing.T) {
	v := NewVim(VimOptions{Binary: "nvim", Runner: testutil.NewFakeRunner()})
	got := v.Lookup("NOTES").LaunchCommand([]string{"/a/b.txt", "/c/d.txt"})
	want := []string{"nvim", "--servername", "NOTES", "-p", "/a/b.txt", "/c/d.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LaunchCommand() = %v, want %v", got, want)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewVim(VimOptions{Runner: testutil.NewFakeRunner()}))

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"vim"}) {
		t.Errorf("Names() = %v, want [vim]", got)
	}
	recs, err := reg.Select([]string{"vim"})
	if err != nil || len(recs) != 1 {
		t.Fatalf("Select(vim) = %v, %v", recs, err)
	}
	if _, err := reg.Select([]string{"vim", "emacs"}); !errors.Is(err, verrors.ErrUnknownRecognizer) {
		t.Errorf("Select(emacs) error = %v, want ErrUnknownRecognizer", err)
	}

	rec, ok := Match(recs, psjobs.ProcessRecord{CLI: []string{"vim", "--servername", "X"}})
	if !ok || rec.Name() != "vim" {
		t.Errorf("Match() = %v, %v; want vim", rec, ok)
	}
	if _, ok := Match(recs, psjobs.ProcessRecord{CLI: []string{"bash"}}); ok {
		t.Error("Match(bash) should not match")
	}
}
