package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/leaselock"
	graphstore "github.com/knitgraph/loom/pkg/store/pgx"
	"github.com/knitgraph/loom/pkg/summarize"
)

// ProcessSummarizeMessage summarizes the partition's hierarchy bottom-up
// under the partition lease.
func ProcessSummarizeMessage(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(SummarizeJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Partition == "" {
		return fmt.Errorf("summarize job missing partition")
	}

	storage := graphstore.NewGraphDBStorage(conn)
	summarizer := summarize.NewSummarizer(storage, aiClient, summarize.DefaultOptions())

	lockClient := leaselock.New(conn)
	return lockClient.WithLease(ctx, leaselock.PartitionKey(data.Partition), leaselock.Options{
		TTL:         30 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("summarize/%s/", data.Partition),
	}, func(ctx context.Context) error {
		if _, err := summarizer.Summarize(ctx, data.Partition); err != nil {
			return err
		}
		logPartitionStats(ctx, storage, data.Partition)
		return nil
	})
}
