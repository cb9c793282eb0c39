package job

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/csub-dev/csub/internal/chunk"
	"github.com/csub-dev/csub/internal/config"
	"github.com/csub-dev/csub/internal/render"
	"github.com/csub-dev/csub/pkg/api"
)

// Fatal generation errors.
var (
	ErrRender = errors.New("job render failure")
	ErrWrite  = errors.New("job write failure")
)

// Recorder receives each generated job for bookkeeping. Implementations
// must tolerate being called once per job in ordinal order.
type Recorder interface {
	RecordJob(ordinal int, chunkPath, jobPath string) error
}

// Generator turns a line stream into chunk files and one rendered job
// file per chunk, printing the submit command for each. The same
// template and config are used for every job; only the chunk reference
// varies.
type Generator struct {
	Config   *config.Config
	Template *render.Template
	Name     string    // job name, scopes the chunk and job directories
	Out      io.Writer // submit command lines, one per job
	Recorder Recorder  // optional
}

// Run drains input, producing cs_chunks/<name>/NNN and
// cs_jobs/<name>/NNN.job under the configured working directory. The
// first failure aborts remaining generation; files already written stay
// on disk.
func (g *Generator) Run(input io.Reader) ([]api.Job, error) {
	chunkDir := filepath.Join(g.Config.Workdir, "cs_chunks", g.Name)
	jobDir := filepath.Join(g.Config.Workdir, "cs_jobs", g.Name)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir %s: %v", ErrWrite, jobDir, err)
	}

	splitter, err := chunk.NewSplitter(input, g.Config.ChunkSize(), chunkDir)
	if err != nil {
		return nil, err
	}

	base := g.Config.Context()
	var jobs []api.Job
	for i := 0; ; i++ {
		chunkPath, err := splitter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return jobs, err
		}

		ctx := make(map[string]string, len(base)+2)
		for k, v := range base {
			ctx[k] = v
		}
		ctx["chunk"] = chunkPath
		ctx["name"] = g.Name

		text, err := g.Template.Render(ctx)
		if err != nil {
			return jobs, fmt.Errorf("%w: chunk %s: %v", ErrRender, chunkPath, err)
		}

		jobPath := filepath.Join(jobDir, chunk.Ordinal(i)+".job")
		if err := os.WriteFile(jobPath, []byte(text+"\n"), 0o644); err != nil {
			return jobs, fmt.Errorf("%w: %s: %v", ErrWrite, jobPath, err)
		}
		log.Debug().Str("job", jobPath).Str("chunk", chunkPath).Msg("job written")

		j := api.Job{
			Ordinal:   i,
			ChunkPath: chunkPath,
			JobPath:   jobPath,
			SubmitCmd: fmt.Sprintf("%s '%s'", g.Config.Submit, jobPath),
		}
		if g.Out != nil {
			fmt.Fprintln(g.Out, j.SubmitCmd)
		}
		if g.Recorder != nil {
			if err := g.Recorder.RecordJob(i, chunkPath, jobPath); err != nil {
				log.Warn().Err(err).Int("ordinal", i).Msg("manifest record failed")
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
