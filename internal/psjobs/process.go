package psjobs

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Pseudoterminal is one terminal device from the `w -s` listing.
type Pseudoterminal struct {
	// Name is the device relative to /dev, e.g. "pts/3".
	Name string
	// Parent is the FROM column: for screen ":pts/1:S.3", for tmux "tmux(1234).%5".
	Parent string
	// Command is what the terminal is running according to w.
	Command string
}

// Device returns the absolute device path of the terminal.
func (p Pseudoterminal) Device() string {
	return "/dev/" + p.Name
}

// ProcessRecord is one process attached to a terminal.
type ProcessRecord struct {
	PID  int
	TTY  string
	Stat string
	CLI  []string
	// WorkDir is empty when it could not be resolved.
	WorkDir string
}

// Program returns argv[0], or "" for an empty command line.
func (p ProcessRecord) Program() string {
	if len(p.CLI) == 0 {
		return ""
	}
	return p.CLI[0]
}

// ProgramBase returns the base name of argv[0] with a login-shell "-" prefix removed.
func (p ProcessRecord) ProgramBase() string {
	return strings.TrimPrefix(filepath.Base(p.Program()), "-")
}

// IsSuspended reports whether the process is stopped by job control.
func (p ProcessRecord) IsSuspended() bool {
	return strings.HasPrefix(p.Stat, "T")
}

// IsForeground reports whether the process is in the terminal's foreground process group.
func (p ProcessRecord) IsForeground() bool {
	return strings.Contains(p.Stat, "+")
}

// Foreground returns the first foreground process among records.
func Foreground(records []ProcessRecord) (ProcessRecord, bool) {
	for _, rec := range records {
		if rec.IsForeground() {
			return rec, true
		}
	}
	return ProcessRecord{}, false
}

var (
	// USER TTY FROM IDLE WHAT
	terminalLine = regexp.MustCompile(`^\S+\s+(pts/[0-9]+)\s+(\S+)\s+\S+\s+(.*)$`)
	// PID TT STAT COMMAND
	processLine = regexp.MustCompile(`^\s*([0-9]+)\s+([a-zA-Z0-9/]+)\s+(\S+)\s+(\S.*)$`)
)

// ParseTerminals parses `w -s` output. Lines that do not match are skipped.
func ParseTerminals(out string) []Pseudoterminal {
	var terms []Pseudoterminal
	for _, line := range strings.Split(out, "\n") {
		m := terminalLine.FindStringSubmatch(strings.TrimRight(line, "\r "))
		if m == nil {
			continue
		}
		terms = append(terms, Pseudoterminal{
			Name:    m[1],
			Parent:  m[2],
			Command: strings.TrimSpace(m[3]),
		})
	}
	return terms
}

// ParseProcesses parses `ps -o pid,tty,stat,args` output. Work directories are
// left empty. Lines that do not match are skipped.
func ParseProcesses(out string) []ProcessRecord {
	var records []ProcessRecord
	for _, line := range strings.Split(out, "\n") {
		m := processLine.FindStringSubmatch(strings.TrimRight(line, "\r "))
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		records = append(records, ProcessRecord{
			PID:  pid,
			TTY:  m[2],
			Stat: m[3],
			CLI:  strings.Fields(m[4]),
		})
	}
	return records
}
