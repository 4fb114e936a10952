// Package monitor samples the logs of running jobs and surfaces the single
// most recently updated line across all of them.
//
// Only one line is surfaced per sample. When several jobs write in the same
// tick, the job whose log was modified last wins and the other jobs' cursors
// still advance, so their intermediate lines are skipped rather than queued.
// The live feed is a progress indicator, not a log archive.
package monitor

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dkoosis/fanout/internal/job"
)

const readChunk = 64 * 1024

// Cursor tracks how much of a job's log has been observed. Offset is the
// number of bytes already read; each sample only reads what was appended.
type Cursor struct {
	Job       string
	LinesSeen int
	Offset    int64
}

// Emission is a line surfaced by Sample.
type Emission struct {
	Job        string
	Line       string
	LineNumber int
	ModTime    time.Time
}

type token struct {
	job  string
	line int
}

// Monitor holds the per-job cursors and the last emitted token.
// It is not safe for concurrent use.
type Monitor struct {
	cursors map[string]*logState
	last    token
	emitted bool
}

// New returns a monitor with no observed lines.
func New() *Monitor {
	return &Monitor{cursors: make(map[string]*logState)}
}

// Cursor returns the cursor for a job, if it has been observed.
func (m *Monitor) Cursor(jobName string) (Cursor, bool) {
	st, ok := m.cursors[jobName]
	if !ok {
		return Cursor{}, false
	}
	return st.cursor, true
}

// Sample inspects every job's log once and returns at most one new line.
func (m *Monitor) Sample(jobs []job.Spec) (Emission, bool) {
	var best Emission
	found := false

	for _, spec := range jobs {
		info, err := os.Stat(spec.LogPath)
		if err != nil {
			continue
		}
		st := m.state(spec.Name)
		if err := st.readFrom(spec.LogPath, info.Size()); err != nil {
			continue
		}

		count := st.lines()
		if count == st.cursor.LinesSeen {
			continue
		}
		st.cursor.LinesSeen = count

		line := strings.TrimSpace(string(st.lastLine()))
		if line == "" {
			continue
		}
		// >= lets later declarations win ties on modification time.
		if !found || !info.ModTime().Before(best.ModTime) {
			best = Emission{Job: spec.Name, Line: line, LineNumber: count, ModTime: info.ModTime()}
			found = true
		}
	}

	if !found {
		return Emission{}, false
	}
	tok := token{job: best.Job, line: best.LineNumber}
	if m.emitted && tok == m.last {
		return Emission{}, false
	}
	m.last = tok
	m.emitted = true
	return best, true
}

func (m *Monitor) state(name string) *logState {
	st, ok := m.cursors[name]
	if !ok {
		st = &logState{cursor: Cursor{Job: name}}
		m.cursors[name] = st
	}
	return st
}

// logState follows one log incrementally. It remembers the newline count,
// the last complete line and the unterminated remainder, each line capped at
// job.MaxLineBytes.
type logState struct {
	cursor   Cursor
	newlines int
	last     []byte
	partial  []byte
	buf      []byte
}

// lines counts a final line without a trailing newline as a line.
func (st *logState) lines() int {
	if len(st.partial) > 0 {
		return st.newlines + 1
	}
	return st.newlines
}

func (st *logState) lastLine() []byte {
	if len(st.partial) > 0 {
		return st.partial
	}
	return st.last
}

// readFrom reads the bytes appended to path since the previous call. A log
// that shrank was truncated and is read again from the start.
func (st *logState) readFrom(path string, size int64) error {
	if size < st.cursor.Offset {
		*st = logState{cursor: Cursor{Job: st.cursor.Job}, buf: st.buf}
	}
	if size == st.cursor.Offset {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.Seek(st.cursor.Offset, io.SeekStart); err != nil {
		return err
	}

	if st.buf == nil {
		st.buf = make([]byte, readChunk)
	}
	for {
		n, err := f.Read(st.buf)
		if n > 0 {
			st.feed(st.buf[:n])
			st.cursor.Offset += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (st *logState) feed(chunk []byte) {
	end := bytes.LastIndexByte(chunk, '\n')
	if end < 0 {
		st.partial = appendCapped(st.partial, chunk)
		return
	}
	n := bytes.Count(chunk[:end], []byte{'\n'}) + 1
	st.newlines += n
	if n == 1 {
		st.partial = appendCapped(st.partial, chunk[:end])
		st.last = append(st.last[:0], st.partial...)
	} else {
		start := bytes.LastIndexByte(chunk[:end], '\n') + 1
		st.last = appendCapped(st.last[:0], chunk[start:end])
	}
	st.partial = appendCapped(st.partial[:0], chunk[end+1:])
}

func appendCapped(dst, b []byte) []byte {
	room := job.MaxLineBytes - len(dst)
	if room <= 0 {
		return dst
	}
	return append(dst, b[:min(room, len(b))]...)
}
