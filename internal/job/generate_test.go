package job

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csub-dev/csub/internal/config"
	"github.com/csub-dev/csub/internal/render"
)

func testConfig(workdir string, chunkSize int) *config.Config {
	return &config.Config{
		Project:  "genomics",
		Queue:    "normal",
		CPUs:     chunkSize,
		Walltime: "01:00:00",
		Mem:      "4gb",
		Workdir:  workdir,
		Script:   "echo hi\n",
		Overload: 1,
		Submit:   "qsub",
	}
}

func mustParse(t *testing.T, text string) *render.Template {
	t.Helper()
	tpl, err := render.Parse("job", text)
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	return tpl
}

type captureRecorder struct {
	ordinals []int
	chunks   []string
	jobs     []string
}

func (c *captureRecorder) RecordJob(ordinal int, chunkPath, jobPath string) error {
	c.ordinals = append(c.ordinals, ordinal)
	c.chunks = append(c.chunks, chunkPath)
	c.jobs = append(c.jobs, jobPath)
	return nil
}

func inputLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "sample-%d\n", i)
	}
	return b.String()
}

func TestGenerateSevenLinesChunkThree(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rec := &captureRecorder{}
	gen := &Generator{
		Config:   testConfig(dir, 3),
		Template: mustParse(t, "queue={{.queue}} chunk={{.chunk}}"),
		Name:     "demo",
		Out:      &out,
		Recorder: rec,
	}
	jobs, err := gen.Run(strings.NewReader(inputLines(7)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	for i, j := range jobs {
		if j.Ordinal != i {
			t.Errorf("job %d has ordinal %d", i, j.Ordinal)
		}
		wantChunk := filepath.Join(dir, "cs_chunks", "demo", fmt.Sprintf("%03d", i))
		if j.ChunkPath != wantChunk {
			t.Errorf("job %d chunk path %q, want %q", i, j.ChunkPath, wantChunk)
		}
		wantJob := filepath.Join(dir, "cs_jobs", "demo", fmt.Sprintf("%03d.job", i))
		if j.JobPath != wantJob {
			t.Errorf("job %d path %q, want %q", i, j.JobPath, wantJob)
		}
		b, err := os.ReadFile(j.JobPath)
		if err != nil {
			t.Fatalf("read job %d: %v", i, err)
		}
		want := fmt.Sprintf("queue=normal chunk=%s\n", wantChunk)
		if string(b) != want {
			t.Errorf("job %d content %q, want %q", i, b, want)
		}
	}

	wantOut := fmt.Sprintf("qsub '%s'\nqsub '%s'\nqsub '%s'\n",
		jobs[0].JobPath, jobs[1].JobPath, jobs[2].JobPath)
	if out.String() != wantOut {
		t.Errorf("submit lines %q, want %q", out.String(), wantOut)
	}

	if len(rec.ordinals) != 3 || rec.ordinals[2] != 2 {
		t.Errorf("recorder saw ordinals %v", rec.ordinals)
	}
	if rec.chunks[1] != jobs[1].ChunkPath || rec.jobs[1] != jobs[1].JobPath {
		t.Errorf("recorder paths disagree with jobs")
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	gen := &Generator{
		Config:   testConfig(dir, 3),
		Template: mustParse(t, "{{.chunk}}"),
		Name:     "demo",
		Out:      &out,
	}
	jobs, err := gen.Run(strings.NewReader(""))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(jobs) != 0 || out.Len() != 0 {
		t.Errorf("expected no jobs and no output, got %d jobs, %q", len(jobs), out.String())
	}
	entries, err := os.ReadDir(filepath.Join(dir, "cs_jobs", "demo"))
	if err != nil {
		t.Fatalf("read job dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty job directory, found %d entries", len(entries))
	}
}

func TestGenerateRenderFailureAborts(t *testing.T) {
	dir := t.TempDir()
	gen := &Generator{
		Config:   testConfig(dir, 2),
		Template: mustParse(t, "{{.not_a_key}}"),
		Name:     "demo",
	}
	jobs, err := gen.Run(strings.NewReader(inputLines(4)))
	if !errors.Is(err, ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no completed jobs, got %d", len(jobs))
	}
	// The failed chunk itself stays on disk; no rollback.
	if _, err := os.Stat(filepath.Join(dir, "cs_chunks", "demo", "000")); err != nil {
		t.Errorf("expected chunk 000 left on disk: %v", err)
	}
}

func TestGenerateScriptBodyFlowsThrough(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 1)
	cfg.Script = "#!/bin/bash\nparallel < \"$CHUNK\"\n"
	gen := &Generator{
		Config:   cfg,
		Template: mustParse(t, "{{.script}}CHUNK={{.chunk}}"),
		Name:     "demo",
	}
	jobs, err := gen.Run(strings.NewReader("one\n"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := os.ReadFile(jobs[0].JobPath)
	if err != nil {
		t.Fatalf("read job: %v", err)
	}
	if !strings.HasPrefix(string(b), cfg.Script) {
		t.Errorf("script body missing from rendered job: %q", b)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Errorf("job file missing trailing newline")
	}
}

func TestGenerateOrdinalCorrelation(t *testing.T) {
	dir := t.TempDir()
	gen := &Generator{
		Config:   testConfig(dir, 1),
		Template: mustParse(t, "{{.chunk}}"),
		Name:     "demo",
	}
	jobs, err := gen.Run(strings.NewReader(inputLines(5)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, j := range jobs {
		b, _ := os.ReadFile(j.JobPath)
		if strings.TrimSuffix(string(b), "\n") != j.ChunkPath {
			t.Errorf("job %d chunk reference %q does not match %q", i, b, j.ChunkPath)
		}
		if filepath.Base(j.ChunkPath) != fmt.Sprintf("%03d", i) {
			t.Errorf("job %d references chunk %s", i, filepath.Base(j.ChunkPath))
		}
	}
}
