package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knitgraph/loom/pkg/leaselock"
	"github.com/knitgraph/loom/pkg/logger"
	graphstore "github.com/knitgraph/loom/pkg/store/pgx"
)

// ProcessDeleteMessage drops all graph data for a partition under the
// partition lease.
func ProcessDeleteMessage(
	ctx context.Context,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(DeleteJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Partition == "" {
		return fmt.Errorf("delete job missing partition")
	}

	storage := graphstore.NewGraphDBStorage(conn)

	lockClient := leaselock.New(conn)
	return lockClient.WithLease(ctx, leaselock.PartitionKey(data.Partition), leaselock.Options{
		TTL:         10 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("delete/%s/", data.Partition),
	}, func(ctx context.Context) error {
		if err := storage.DeletePartition(ctx, data.Partition); err != nil {
			return err
		}
		logger.Info("[Queue] Partition deleted", "partition", data.Partition)
		return nil
	})
}
