// Package job defines the worker's only dependency on "what a task
// actually does" (the external job interface). Cascade's dispatch
// engine never interprets a task's articles or feed results; it
// forwards them verbatim between the Executor and the coordinator.
package job

import (
	"context"

	"github.com/cuemby/cascade/pkg/types"
)

// Executor runs one task package and returns the articles it
// gathered plus a per-feed result summary. Real scraping/rendering is
// out of scope; operators supply their own Executor. ctx carries
// the per-allocation wall-clock budget the worker derives from the
// per-feed timeout (120s/feed); an Executor that respects ctx
// cancellation can mark the feeds it hasn't reached yet failed instead
// of blocking indefinitely.
type Executor interface {
	Execute(ctx context.Context, pkg *types.TaskPackage) ([]types.Article, []types.FeedResult, error)
}

// NoopExecutor returns zero articles and a success FeedResult per feed
// in the package, so the worker binary links and runs end-to-end
// without a real scraping backend.
type NoopExecutor struct{}

// Execute implements Executor.
func (NoopExecutor) Execute(ctx context.Context, pkg *types.TaskPackage) ([]types.Article, []types.FeedResult, error) {
	results := make([]types.FeedResult, 0, len(pkg.Feeds))
	for _, f := range pkg.Feeds {
		results = append(results, types.FeedResult{
			MPID:         f.FakerID,
			MPName:       f.MPName,
			Status:       "success",
			ArticleCount: 0,
		})
	}
	return nil, results, nil
}
