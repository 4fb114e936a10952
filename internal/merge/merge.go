// Package merge reconciles the flat output files of finished jobs into one
// destination directory.
//
// Job outputs are visited in the order given and each directory's files in
// lexical order. A file whose name is new is copied; an identical file is
// skipped. A differing file is either a reference table, in which case the
// first copy placed wins and the later one is dropped with a warning, or a
// conflict. Conflicts do not stop the walk: every one is collected and
// returned together in a *ConflictError.
//
// Merge is not transactional. When it returns a ConflictError the files it
// already copied stay in the destination so the run can be inspected.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phuslu/log"

	"github.com/dkoosis/fanout/internal/logging"
)

// DefaultPattern selects the files managed by the reconciler.
const DefaultPattern = "*.csv"

// Action is the outcome of merging one candidate file.
type Action int

const (
	Copied Action = iota
	SkippedIdentical
	ReferenceConflictIgnored
	Conflict
)

func (a Action) String() string {
	switch a {
	case Copied:
		return "copied"
	case SkippedIdentical:
		return "skipped-identical"
	case ReferenceConflictIgnored:
		return "reference-conflict-ignored"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Output is a finished job's output directory.
type Output struct {
	Job string
	Dir string
}

// ReferenceConflict records a reference table dropped in favour of the copy
// already in place.
type ReferenceConflict struct {
	File      string
	KeptFrom  string
	Discarded string
}

// Report summarises a successful merge.
type Report struct {
	Copied                   int
	SkippedIdentical         int
	ReferenceConflictIgnored int
	ReferenceConflicts       []ReferenceConflict
	// Owners maps each destination file to the job whose copy is in place.
	Owners map[string]string
}

// Files returns the merged file names in lexical order.
func (r Report) Files() []string {
	names := make([]string, 0, len(r.Owners))
	for name := range r.Owners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConflictEntry is one non-reference file that differs between jobs.
type ConflictEntry struct {
	File  string
	Job   string
	Owner string
}

// ConflictError lists every conflict found during a merge.
type ConflictError struct {
	Conflicts []ConflictEntry
	// Report holds what was merged before and around the conflicts.
	Report Report
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s vs %s)", c.File, c.Owner, c.Job))
	}
	return fmt.Sprintf("merge conflict in %d file(s): %s", len(e.Conflicts), strings.Join(parts, ", "))
}

// Files returns the distinct conflicting file names in the order found.
func (e *ConflictError) Files() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range e.Conflicts {
		if _, ok := seen[c.File]; ok {
			continue
		}
		seen[c.File] = struct{}{}
		out = append(out, c.File)
	}
	return out
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPattern sets the glob selecting managed files.
func WithPattern(pattern string) Option {
	return func(r *Reconciler) {
		if pattern != "" {
			r.pattern = pattern
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// Reconciler merges job outputs under the reference-table and conflict rules.
type Reconciler struct {
	references map[string]struct{}
	pattern    string
	logger     *log.Logger
}

// New returns a reconciler that treats referenceFiles as shared tables.
func New(referenceFiles []string, opts ...Option) *Reconciler {
	r := &Reconciler{
		references: make(map[string]struct{}, len(referenceFiles)),
		pattern:    DefaultPattern,
		logger:     logging.Discard(),
	}
	for _, name := range referenceFiles {
		r.references[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsReference reports whether name is one of the shared reference tables.
func (r *Reconciler) IsReference(name string) bool {
	_, ok := r.references[name]
	return ok
}

// Prepare creates dest if needed and deletes every managed file in its top
// level. Other files and subdirectories are left alone.
func (r *Reconciler) Prepare(dest string) (int, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		return 0, fmt.Errorf("read destination: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !r.managed(e) {
			continue
		}
		if err := os.Remove(filepath.Join(dest, e.Name())); err != nil {
			return removed, fmt.Errorf("clear %s: %w", e.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info().Str("dest", dest).Int("removed", removed).Msg("cleared previous outputs")
	}
	return removed, nil
}

// Merge copies the outputs into dest. It returns a *ConflictError if any
// non-reference file collided, or a plain error on I/O failure.
func (r *Reconciler) Merge(dest string, outputs []Output) (Report, error) {
	rep := Report{Owners: make(map[string]string)}
	var conflicts []ConflictEntry

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return rep, fmt.Errorf("create destination: %w", err)
	}

	for _, out := range outputs {
		entries, err := os.ReadDir(out.Dir)
		if err != nil {
			return rep, fmt.Errorf("read output of %s: %w", out.Job, err)
		}
		for _, e := range entries {
			if !r.managed(e) {
				continue
			}
			action, err := r.mergeFile(dest, out, e.Name(), &rep)
			if err != nil {
				return rep, err
			}
			if action == Conflict {
				entry := ConflictEntry{File: e.Name(), Job: out.Job, Owner: ownerOf(rep, e.Name())}
				conflicts = append(conflicts, entry)
				r.logger.Error().Str("file", entry.File).Str("job", entry.Job).Str("owner", entry.Owner).Msg("merge conflict")
			}
		}
	}

	if len(conflicts) > 0 {
		return rep, &ConflictError{Conflicts: conflicts, Report: rep}
	}
	return rep, nil
}

func (r *Reconciler) mergeFile(dest string, out Output, name string, rep *Report) (Action, error) {
	src := filepath.Join(out.Dir, name)
	dst := filepath.Join(dest, name)

	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		if err := copyFile(src, dst); err != nil {
			return Copied, fmt.Errorf("copy %s from %s: %w", name, out.Job, err)
		}
		rep.Copied++
		rep.Owners[name] = out.Job
		return Copied, nil
	} else if err != nil {
		return Copied, fmt.Errorf("stat %s: %w", dst, err)
	}

	same, err := sameContent(src, dst)
	if err != nil {
		return SkippedIdentical, fmt.Errorf("compare %s from %s: %w", name, out.Job, err)
	}
	if same {
		if _, ok := rep.Owners[name]; !ok {
			rep.Owners[name] = out.Job
		}
		rep.SkippedIdentical++
		return SkippedIdentical, nil
	}

	if r.IsReference(name) {
		rc := ReferenceConflict{File: name, KeptFrom: ownerOf(*rep, name), Discarded: out.Job}
		rep.ReferenceConflictIgnored++
		rep.ReferenceConflicts = append(rep.ReferenceConflicts, rc)
		r.logger.Warn().Str("file", name).Str("kept", rc.KeptFrom).Str("discarded", rc.Discarded).
			Msg("reference table differs between jobs; keeping first copy")
		return ReferenceConflictIgnored, nil
	}
	return Conflict, nil
}

// existingOwner names a destination file that no job placed during this merge.
const existingOwner = "(existing)"

func ownerOf(rep Report, name string) string {
	if o, ok := rep.Owners[name]; ok {
		return o
	}
	return existingOwner
}

func (r *Reconciler) managed(e os.DirEntry) bool {
	if !e.Type().IsRegular() {
		return false
	}
	ok, err := filepath.Match(r.pattern, e.Name())
	return err == nil && ok
}

// copyFile writes src to a temporary name beside dst and renames it into
// place, preserving the source mode and modification time.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	if err = os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

const compareChunk = 64 * 1024

// sameContent reports whether two files hold identical bytes.
func sameContent(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, compareChunk)
	bufB := make([]byte, compareChunk)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		endA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		endB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if errA != nil && !endA {
			return false, errA
		}
		if errB != nil && !endB {
			return false, errB
		}
		if endA || endB {
			return endA && endB, nil
		}
	}
}
