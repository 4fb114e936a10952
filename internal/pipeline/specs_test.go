package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dkoosis/fanout/internal/config"
	"github.com/dkoosis/fanout/internal/job"
)

type staticLayout string

func (l staticLayout) OutputDir(name string) string { return filepath.Join(string(l), "out", name) }
func (l staticLayout) LogPath(name string) string   { return filepath.Join(string(l), "logs", name+".log") }
func (l staticLayout) IDDir() string                { return filepath.Join(string(l), "ids") }

func TestBuildSpecs(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs = []string{"authors", "works"}
	cfg.Worker = config.Worker{
		Command:      []string{"parser"},
		Source:       "/src",
		Schema:       "/schema.sql",
		MaxRecords:   10,
		UpdatedSince: "2024-01-01",
		ExtraArgs:    []string{"--verbose"},
	}

	prereq, specs := BuildSpecs(cfg, staticLayout("/w"))

	base := []string{
		"--source", "/src", "--schema", "/schema.sql", "--reference-dir", "/w/ids",
		"--max-records", "10", "--updated-since", "2024-01-01", "--verbose",
	}
	wantPrereq := job.Spec{
		Name:      "collect-ids",
		OutputDir: "/w/ids",
		LogPath:   "/w/logs/collect-ids.log",
		Args:      append(append([]string{}, base...), "--collect-ids", "--output", "/w/ids"),
	}
	if diff := cmp.Diff(wantPrereq, prereq); diff != "" {
		t.Errorf("prerequisite mismatch (-want +got):\n%s", diff)
	}

	want := []job.Spec{
		{
			Name:      "authors",
			OutputDir: "/w/out/authors",
			LogPath:   "/w/logs/authors.log",
			Args:      append(append([]string{}, base...), "--entity", "authors", "--output", "/w/out/authors"),
		},
		{
			Name:      "works",
			OutputDir: "/w/out/works",
			LogPath:   "/w/logs/works.log",
			Args:      append(append([]string{}, base...), "--entity", "works", "--output", "/w/out/works"),
		},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("specs mismatch (-want +got):\n%s", diff)
	}
}

func TestBaseArgsMinimal(t *testing.T) {
	got := BaseArgs(config.Worker{Command: []string{"parser"}}, "ids")
	if diff := cmp.Diff([]string{"--reference-dir", "ids"}, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}
