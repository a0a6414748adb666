package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/leaselock"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/resolve"
	graphstore "github.com/knitgraph/loom/pkg/store/pgx"
)

// defaultEntityTypes is the extraction schema used when a job does not bring
// its own.
var defaultEntityTypes = []string{"Person", "Organization", "Location", "Event", "Concept"}

// ProcessIngestMessage extracts one document and resolves its entities,
// relationships, and events into the partition's graph. Extraction runs
// outside the partition lease; only the resolution writes are serialized
// against other partition jobs.
func ProcessIngestMessage(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(IngestJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Partition == "" || data.DocumentID == "" {
		return fmt.Errorf("ingest job missing partition or document id")
	}

	entityTypes := data.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = defaultEntityTypes
	}

	logger.Info("[Queue] Extracting document",
		"partition", data.Partition, "document", data.DocumentID)
	extraction, err := ai.ExtractGraph(ctx, aiClient, data.Text, data.DocumentName, entityTypes)
	if err != nil {
		return fmt.Errorf("extracting document %s: %w", data.DocumentID, err)
	}
	logger.Debug("[Queue] Extraction finished",
		"document", data.DocumentID,
		"entities", len(extraction.Entities),
		"relationships", len(extraction.Relationships),
		"events", len(extraction.Events),
	)

	storage := graphstore.NewGraphDBStorage(conn)
	resolver := resolve.NewResolver(storage, aiClient, resolve.DefaultOptions())

	lockClient := leaselock.New(conn)
	return lockClient.WithLease(ctx, leaselock.PartitionKey(data.Partition), leaselock.Options{
		TTL:         10 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("ingest/%s/", data.Partition),
	}, func(ctx context.Context) error {
		report, err := resolver.ResolveAndStore(ctx, data.Partition, data.DocumentID, extraction)
		if err != nil {
			return fmt.Errorf("resolving document %s: %w", data.DocumentID, err)
		}
		logger.Info("[Queue] Document ingested",
			"partition", data.Partition,
			"document", data.DocumentID,
			"merged", report.Merged,
			"linked", report.Linked,
			"created", report.Created,
			"failed", report.Failed,
		)
		logPartitionStats(ctx, storage, data.Partition)
		return nil
	})
}
