package queue

import (
	"context"

	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

// logPartitionStats reports the partition's node, edge, and community counts
// after a job completes. Failing to read them never fails the job.
func logPartitionStats(ctx context.Context, storage store.GraphStorage, partition string) {
	stats, err := storage.GetStats(ctx, partition)
	if err != nil {
		logger.Warn("[Queue] Could not read graph statistics", "partition", partition, "err", err)
		return
	}
	logger.Info("[Queue] Graph statistics",
		"partition", partition,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"communities", stats.Communities,
	)
}
