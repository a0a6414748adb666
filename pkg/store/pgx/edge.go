package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

const edgeChunk = 500

const upsertEdgeSQL = `
INSERT INTO edges (id, partition, source_id, target_id, type, description, weight, confidence, source_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (partition, source_id, target_id, type) DO UPDATE SET
	description = EXCLUDED.description,
	weight = (edges.weight + EXCLUDED.weight) / 2,
	confidence = EXCLUDED.confidence,
	source_ids = (
		SELECT COALESCE(array_agg(DISTINCT sid), '{}')
		FROM unnest(edges.source_ids || EXCLUDED.source_ids) AS sid
	)`

// SaveEdges bulk-upserts edges in chunks. Re-saving an existing connection
// averages its weight with the incoming one and unions the source ids.
func (s *GraphDBStorage) SaveEdges(ctx context.Context, edges []common.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	return store.ChunkRange(len(edges), edgeChunk, func(start, end int) error {
		part := edges[start:end]
		logger.Debug("[Store][SaveEdges] Saving chunk", "edges", len(part))

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		batch := &pgxv5.Batch{}
		for _, e := range part {
			if e.ID == "" {
				return fmt.Errorf("edge id is empty")
			}
			batch.Queue(upsertEdgeSQL,
				e.ID, e.Partition, e.SourceID, e.TargetID, e.Type,
				e.Description, e.Weight, e.Confidence, e.SourceIDs,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// ListEdges returns a stable id-ordered page of the partition's edges.
func (s *GraphDBStorage) ListEdges(ctx context.Context, partition string, limit int, offset int) ([]common.Edge, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx, `
SELECT id, partition, source_id, target_id, type, description, weight, confidence, source_ids
FROM edges
WHERE partition = $1
ORDER BY id
LIMIT $2 OFFSET $3`,
		partition, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Edge, 0)
	for rows.Next() {
		var e common.Edge
		if err := rows.Scan(
			&e.ID, &e.Partition, &e.SourceID, &e.TargetID, &e.Type,
			&e.Description, &e.Weight, &e.Confidence, &e.SourceIDs,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
