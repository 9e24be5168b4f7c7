package job

import (
	"context"
	"testing"

	"github.com/cuemby/cascade/pkg/types"
)

func TestNoopExecutorReturnsSuccessPerFeed(t *testing.T) {
	pkg := &types.TaskPackage{
		Feeds: []types.Feed{
			{ID: "f1", FakerID: "mp1", MPName: "Feed One"},
			{ID: "f2", FakerID: "mp2", MPName: "Feed Two"},
		},
	}

	articles, results, err := NoopExecutor{}.Execute(context.Background(), pkg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected no articles, got %d", len(articles))
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != "success" {
			t.Fatalf("expected success status, got %s", r.Status)
		}
	}
}
