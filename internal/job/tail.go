package job

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
)

// MaxLineBytes caps how much of a single log line is kept. Longer lines are
// cut short; the rest of the line is skipped.
const MaxLineBytes = 1024 * 1024

type tailBuffer struct {
	max    int
	values []string
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.values = append(t.values, line)
	if len(t.values) > t.max {
		drop := len(t.values) - t.max
		t.values = t.values[drop:]
	}
}

func (t *tailBuffer) lines() []string {
	return append([]string(nil), t.values...)
}

// Tail returns the last n lines of the log at path. A missing log yields no
// lines and no error. Lines longer than MaxLineBytes are cut short.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	tail := newTailBuffer(n)
	r := bufio.NewReaderSize(f, 64*1024)
	var line []byte
	for {
		frag, more, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return tail.lines(), nil
			}
			return tail.lines(), err
		}
		if room := MaxLineBytes - len(line); room > 0 {
			line = append(line, frag[:min(room, len(frag))]...)
		}
		if more {
			continue
		}
		tail.add(string(line))
		line = line[:0]
	}
}
