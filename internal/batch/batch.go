// Package batch runs the pipeline over a directory of configuration
// files. Runs are independent pipeline instances executing concurrently;
// the criteria cache is the only shared resource and serializes itself.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"confsentry/internal/pipeline"
)

// Outcome pairs one input file with its run result. Err is set when the
// run failed; Result still carries whatever stages completed.
type Outcome struct {
	Path   string
	Result *pipeline.PipelineResult
	Err    error
}

// Runner fans configuration files out over a bounded number of workers.
type Runner struct {
	pipe        *pipeline.Pipeline
	concurrency int
	log         *zap.Logger
}

// NewRunner creates a Runner. concurrency below 1 means sequential.
func NewRunner(pipe *pipeline.Pipeline, concurrency int, log *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{pipe: pipe, concurrency: concurrency, log: log}
}

// Run assesses every regular file in dir (non-recursive) and returns one
// Outcome per file, ordered by path. Individual run failures do not stop
// the batch; only a cancelled context does.
func (r *Runner) Run(ctx context.Context, dir string) ([]Outcome, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: read dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("batch: no configuration files in %s", dir)
	}

	outcomes := make([]Outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				outcomes[i] = Outcome{Path: path, Err: fmt.Errorf("batch: read %s: %w", path, err)}
				return nil
			}

			res, err := r.pipe.Run(gctx, string(data))
			outcomes[i] = Outcome{Path: path, Result: res, Err: err}
			if err != nil {
				r.log.Warn("batch run failed", zap.String("path", path), zap.Error(err))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
