package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/vimsaver/internal/history"
	"github.com/Iron-Ham/vimsaver/internal/reconcile"
	"github.com/Iron-Ham/vimsaver/internal/restore"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
	"github.com/Iron-Ham/vimsaver/internal/util"
)

var (
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	windowStyle  = lipgloss.NewStyle().Bold(true).Foreground(secondaryColor)
	serverStyle  = lipgloss.NewStyle().Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	modifiedMark = lipgloss.NewStyle().Bold(true).Foreground(warningColor)
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 100

// printer writes command output, styled when it goes to a terminal.
type printer struct {
	w      io.Writer
	styled bool
	width  int
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.styled = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

// snapshotText renders snap as an indented tree, one line per item.
func (p *printer) snapshotText(snap snapshot.Snapshot) {
	if len(snap) == 0 {
		p.printf("%s\n", p.style(mutedStyle, "(empty snapshot)"))
		return
	}
	for _, idx := range snap.Indices() {
		win := snap[idx]
		header := fmt.Sprintf("window %d  %s ", idx, win.App)
		room := p.width - lipgloss.Width(header)
		p.printf("%s%s\n",
			p.style(windowStyle, header),
			p.style(mutedStyle, util.TruncatePath(win.WorkDir, room)))
		for _, server := range win.Servers() {
			p.printf("  %s\n", p.style(serverStyle, server))
			for _, item := range win.Buffers[server] {
				p.itemLine(item)
			}
		}
	}
}

func (p *printer) itemLine(item snapshot.WorkspaceItem) {
	mark := " "
	if item.IsModified() {
		mark = p.style(modifiedMark, "+")
	}
	path := "[No Name]"
	if item.Path != nil {
		path = *item.Path
	}
	prefix := fmt.Sprintf("    %3d %s ", item.Index, mark)
	suffix := fmt.Sprintf(":%d", item.Line)
	room := p.width - lipgloss.Width(prefix) - len(suffix)
	p.printf("%s%s%s\n", prefix, util.TruncatePath(path, room), p.style(mutedStyle, suffix))
}

func (p *printer) saveSummary(path string, snap snapshot.Snapshot, report *reconcile.Report, entry *history.Entry) {
	sum := snap.Summarize()
	p.printf("%s %s\n", p.style(titleStyle, "Saved"), path)
	p.printf("  %d windows, %d instances, %d items (%s)\n",
		sum.Windows, sum.Instances, sum.Items, passes(report))
	if entry != nil {
		p.printf("  history id %s\n", entry.ID)
	}
	p.skipped(report)
}

func (p *printer) quitSummary(report *reconcile.Report) {
	p.printf("%s %d instances (%s)\n", p.style(titleStyle, "Quit"), len(report.Instances), passes(report))
	p.skipped(report)
}

func (p *printer) restoreSummary(source string, report *restore.Report) {
	p.printf("%s %s\n", p.style(titleStyle, "Restored"), source)
	p.printf("  %d launched, %d already running, %d windows created\n",
		len(report.Launched), len(report.AlreadyRunning), len(report.WindowsCreated))
	if len(report.AlreadyRunning) > 0 {
		p.printf("  %s %s\n", p.style(warningStyle, "already running:"), strings.Join(report.AlreadyRunning, ", "))
	}
	for _, idx := range report.UnknownApps {
		p.printf("  %s window %d\n", p.style(warningStyle, "unknown application in"), idx)
	}
}

func (p *printer) skipped(report *reconcile.Report) {
	for _, s := range report.Skipped {
		line := fmt.Sprintf("  %s window %d pid %d %s: %s",
			p.style(warningStyle, "skipped"), s.Window, s.PID, s.Program, s.Reason)
		p.printf("%s\n", util.TruncateANSI(line, p.width))
	}
}

func passes(report *reconcile.Report) string {
	if report.Passes == 1 {
		return "1 pass"
	}
	return fmt.Sprintf("%d passes", report.Passes)
}

func (p *printer) historyTable(entries []history.Entry) {
	if len(entries) == 0 {
		p.printf("%s\n", p.style(mutedStyle, "No snapshots recorded."))
		return
	}
	header := fmt.Sprintf("%-8s  %-19s  %-7s  %7s  %9s  %5s", "ID", "CREATED", "BACKEND", "WINDOWS", "INSTANCES", "ITEMS")
	p.printf("%s\n", p.style(titleStyle, header))
	for _, e := range entries {
		p.printf("%-8s  %-19s  %-7s  %7d  %9d  %5d\n",
			shortID(e.ID),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Backend, e.Windows, e.Instances, e.Items)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
