// Package workspace owns the temporary working tree of one run: a directory
// per job for its output, a log file per job, and the directory the
// prerequisite job collects reference ids into.
//
//	<base>/fanout-<run id>/
//	    out/<job>/
//	    logs/<job>.log
//	    ids/
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/dkoosis/fanout/internal/logging"
)

const (
	dirPrefix = "fanout-"
	outDir    = "out"
	logDir    = "logs"
	idsDir    = "ids"
)

// Workspace is the on-disk tree for one run.
type Workspace struct {
	RunID string
	Root  string

	idDir  string
	logger *log.Logger
	closed bool
}

// Option configures New.
type Option func(*settings)

type settings struct {
	runID  string
	idDir  string
	logger *log.Logger
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}

// WithIDDir points the id directory at an existing location outside the tree.
func WithIDDir(dir string) Option {
	return func(s *settings) { s.idDir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.New().String()
}

// Plan computes the layout New would create, without touching the disk.
func Plan(base string, opts ...Option) *Workspace {
	st := settings{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&st)
	}
	if st.runID == "" {
		st.runID = NewRunID()
	}
	if base == "" {
		base = os.TempDir()
	}
	root := filepath.Join(base, dirPrefix+st.runID)
	ws := &Workspace{RunID: st.runID, Root: root, idDir: st.idDir, logger: st.logger}
	if ws.idDir == "" {
		ws.idDir = filepath.Join(root, idsDir)
	}
	return ws
}

// New creates the working tree under base. An empty base uses the system
// temporary directory.
func New(base string, opts ...Option) (*Workspace, error) {
	ws := Plan(base, opts...)
	if _, err := os.Stat(ws.Root); err == nil {
		return nil, fmt.Errorf("workspace %s already exists", ws.Root)
	}
	dirs := []string{ws.Root, filepath.Join(ws.Root, outDir), filepath.Join(ws.Root, logDir)}
	if ws.idDir == filepath.Join(ws.Root, idsDir) {
		dirs = append(dirs, ws.idDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	ws.logger.Debug().Str("run_id", ws.RunID).Str("root", ws.Root).Msg("workspace created")
	return ws, nil
}

// IDDir is where reference ids are collected and read back from.
func (w *Workspace) IDDir() string { return w.idDir }

// OutputDir returns the output directory assigned to a job.
func (w *Workspace) OutputDir(name string) string {
	return filepath.Join(w.Root, outDir, name)
}

// LogPath returns the log file assigned to a job.
func (w *Workspace) LogPath(name string) string {
	return filepath.Join(w.Root, logDir, name+".log")
}

// AddJob creates the output directory of a job and truncates its log.
func (w *Workspace) AddJob(name string) error {
	if err := os.MkdirAll(w.OutputDir(name), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", name, err)
	}
	f, err := os.OpenFile(w.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create log for %s: %w", name, err)
	}
	return f.Close()
}

// Close removes the tree unless keep is set. It is safe to call more than once.
func (w *Workspace) Close(keep bool) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if keep {
		w.logger.Info().Str("root", w.Root).Msg("keeping workspace")
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove workspace: %w", err)
	}
	w.logger.Debug().Str("root", w.Root).Msg("workspace removed")
	return nil
}
