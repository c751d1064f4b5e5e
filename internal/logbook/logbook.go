// Package logbook keeps the project journal: one timestamped, leveled line per
// generate or submit event, appended to .gridlaunch/logs/gridlaunch.log.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{LevelInfo: 0, LevelWarn: 1, LevelError: 2}

// ParseLevel accepts a level name in any case.
func ParseLevel(value string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("logbook: unknown level %q", value)
	}
	return level, nil
}

// Entry is one decoded journal line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Logbook appends entries to a text file. A nil *Logbook discards everything
// so callers never need to guard it.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Multi-line messages are folded onto one line.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	message = strings.Join(strings.Fields(message), " ")
	line := fmt.Sprintf("%s %-5s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		message,
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries and the total number
// of lines in the journal.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	lines := l.readAll()
	total := len(lines)
	if maxLines <= 0 || total == 0 {
		return nil, total
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Entries decodes the journal, keeping entries at or above min. Lines that do
// not parse are skipped.
func (l *Logbook) Entries(min Level) []Entry {
	var out []Entry
	for _, line := range l.readAll() {
		entry, ok := ParseLine(line)
		if !ok || levelRank[entry.Level] < levelRank[min] {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// ParseLine decodes a line written by Append.
func ParseLine(line string) (Entry, bool) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	rest := strings.TrimLeft(fields[1], " ")
	levelText, message, _ := strings.Cut(rest, " ")
	level, err := ParseLevel(levelText)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Time: ts, Level: level, Message: strings.TrimLeft(message, " ")}, true
}

func (l *Logbook) readAll() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
