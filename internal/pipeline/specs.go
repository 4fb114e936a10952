package pipeline

import (
	"strconv"

	"github.com/dkoosis/fanout/internal/config"
	"github.com/dkoosis/fanout/internal/job"
)

// Layout resolves where each job writes its output and its log.
type Layout interface {
	OutputDir(name string) string
	LogPath(name string) string
	IDDir() string
}

// BaseArgs returns the arguments every worker invocation starts with.
func BaseArgs(w config.Worker, idDir string) []string {
	var args []string
	if w.Source != "" {
		args = append(args, "--source", w.Source)
	}
	if w.Schema != "" {
		args = append(args, "--schema", w.Schema)
	}
	args = append(args, "--reference-dir", idDir)
	if w.MaxRecords > 0 {
		args = append(args, "--max-records", strconv.Itoa(w.MaxRecords))
	}
	if w.MaxFiles > 0 {
		args = append(args, "--max-files", strconv.Itoa(w.MaxFiles))
	}
	if w.UpdatedSince != "" {
		args = append(args, "--updated-since", w.UpdatedSince)
	}
	if w.UpdatedUntil != "" {
		args = append(args, "--updated-until", w.UpdatedUntil)
	}
	return append(args, w.ExtraArgs...)
}

// BuildSpecs derives the prerequisite spec and the parallel job specs, in
// configured order, from the worker template.
func BuildSpecs(cfg *config.Config, layout Layout) (job.Spec, []job.Spec) {
	idDir := layout.IDDir()

	prereqArgs := append(BaseArgs(cfg.Worker, idDir), "--collect-ids", "--output", idDir)
	prereq := job.Spec{
		Name:      cfg.Prerequisite,
		OutputDir: idDir,
		LogPath:   layout.LogPath(cfg.Prerequisite),
		Args:      prereqArgs,
	}

	specs := make([]job.Spec, 0, len(cfg.Jobs))
	for _, name := range cfg.Jobs {
		out := layout.OutputDir(name)
		args := append(BaseArgs(cfg.Worker, idDir), "--entity", name, "--output", out)
		specs = append(specs, job.Spec{
			Name:      name,
			OutputDir: out,
			LogPath:   layout.LogPath(name),
			Args:      args,
		})
	}
	return prereq, specs
}
