package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"

	"github.com/knitgraph/loom/pkg/cluster"
	"github.com/knitgraph/loom/pkg/leaselock"
	"github.com/knitgraph/loom/pkg/logger"
	graphstore "github.com/knitgraph/loom/pkg/store/pgx"
)

// ProcessDetectMessage recomputes the partition's community hierarchy under
// the partition lease and optionally chains a summarization job.
func ProcessDetectMessage(
	ctx context.Context,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(DetectJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Partition == "" {
		return fmt.Errorf("detect job missing partition")
	}

	opts := cluster.DefaultOptions()
	if data.Resolution > 0 {
		opts.Resolution = data.Resolution
	}
	storage := graphstore.NewGraphDBStorage(conn)
	detector := cluster.NewDetector(storage, opts)

	lockClient := leaselock.New(conn)
	err := lockClient.WithLease(ctx, leaselock.PartitionKey(data.Partition), leaselock.Options{
		TTL:         15 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("detect/%s/", data.Partition),
	}, func(ctx context.Context) error {
		if _, err := detector.Detect(ctx, data.Partition); err != nil {
			return err
		}
		logPartitionStats(ctx, storage, data.Partition)
		return nil
	})
	if err != nil {
		return err
	}

	if data.Summarize {
		if err := EnqueueSummarize(ch, SummarizeJobMsg{Partition: data.Partition}); err != nil {
			logger.Error("[Queue] Failed to chain summarization job",
				"partition", data.Partition, "err", err)
			return err
		}
	}
	return nil
}
