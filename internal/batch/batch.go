// Package batch fans file processing out over a fixed worker pool. Files are
// independent; one file failing never stops the rest of the run.
package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cloakstyle/cloak/internal/fileproc"
)

// Item pairs a file's processing outcome with its path. Exactly one of
// Result and Err is set.
type Item struct {
	Path   string
	Result *fileproc.FileResult
	Err    error
}

// Runner processes file batches concurrently.
type Runner struct {
	proc    *fileproc.Processor
	workers int
	logger  *zap.Logger
}

func NewRunner(proc *fileproc.Processor, workers int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{proc: proc, workers: workers, logger: logger}
}

// Run processes every path and returns one Item per input, in input order.
// Cancelling ctx stops workers from picking up further files; files already
// in flight finish.
func (r *Runner) Run(ctx context.Context, paths []string) []Item {
	items := make([]Item, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = r.process(ctx, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Files never handed to a worker report the cancellation.
	if err := ctx.Err(); err != nil {
		for i := range items {
			if items[i].Path == "" {
				items[i] = Item{Path: paths[i], Err: err}
			}
		}
	}
	return items
}

func (r *Runner) process(ctx context.Context, path string) Item {
	res, err := r.proc.ProcessFile(ctx, path)
	if err != nil {
		r.logger.Error("file processing failed",
			zap.String("file", path),
			zap.Error(err),
		)
		return Item{Path: path, Err: err}
	}
	return Item{Path: path, Result: res}
}
