package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

const nodeChunk = 250

const upsertNodeSQL = `
INSERT INTO nodes (id, partition, name, type, description, embedding, confidence, source_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	type = EXCLUDED.type,
	description = EXCLUDED.description,
	embedding = EXCLUDED.embedding,
	confidence = EXCLUDED.confidence,
	source_ids = EXCLUDED.source_ids`

const selectNodeSQL = `
SELECT id, partition, name, type, description, embedding, confidence, source_ids
FROM nodes`

// SaveNodes bulk-upserts nodes in chunks inside one transaction per chunk.
func (s *GraphDBStorage) SaveNodes(ctx context.Context, nodes []common.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	return store.ChunkRange(len(nodes), nodeChunk, func(start, end int) error {
		part := nodes[start:end]
		logger.Debug("[Store][SaveNodes] Saving chunk", "nodes", len(part))

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		batch := &pgxv5.Batch{}
		for _, n := range part {
			if n.ID == "" {
				return fmt.Errorf("node id is empty")
			}
			batch.Queue(upsertNodeSQL,
				n.ID, n.Partition, n.Name, n.Type, n.Description,
				nullableVector(n.Embedding), n.Confidence, n.SourceIDs,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// GetNode returns the node with the given id, or nil when absent.
func (s *GraphDBStorage) GetNode(ctx context.Context, id string) (*common.Node, error) {
	row := s.conn.QueryRow(ctx, selectNodeSQL+" WHERE id = $1", id)
	return scanOptionalNode(row)
}

// GetNodeByName returns the partition's node with an exact case-insensitive
// name match, or nil when absent. Ties resolve to the lowest id.
func (s *GraphDBStorage) GetNodeByName(ctx context.Context, partition string, name string) (*common.Node, error) {
	row := s.conn.QueryRow(ctx,
		selectNodeSQL+" WHERE partition = $1 AND lower(name) = lower($2) ORDER BY id LIMIT 1",
		partition, name,
	)
	return scanOptionalNode(row)
}

// ListNodes returns a stable id-ordered page of the partition's nodes.
func (s *GraphDBStorage) ListNodes(ctx context.Context, partition string, limit int, offset int) ([]common.Node, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx,
		selectNodeSQL+" WHERE partition = $1 ORDER BY id LIMIT $2 OFFSET $3",
		partition, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNodes(rows)
}

// FindSimilarNodes returns up to limit nodes whose cosine similarity to the
// query embedding is at least floor, most similar first with id tie-break.
func (s *GraphDBStorage) FindSimilarNodes(
	ctx context.Context,
	partition string,
	embedding []float32,
	limit int,
	floor float64,
) ([]common.Candidate, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, partition, name, type, description, embedding, confidence, source_ids,
	1 - (embedding <=> $2::vector) AS similarity
FROM nodes
WHERE partition = $1
	AND embedding IS NOT NULL
	AND 1 - (embedding <=> $2::vector) >= $3
ORDER BY similarity DESC, id
LIMIT $4`,
		partition, pgvector.NewVector(embedding), floor, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Candidate, 0, limit)
	for rows.Next() {
		var c common.Candidate
		var embed *pgvector.Vector
		if err := rows.Scan(
			&c.Node.ID, &c.Node.Partition, &c.Node.Name, &c.Node.Type, &c.Node.Description,
			&embed, &c.Node.Confidence, &c.Node.SourceIDs, &c.Similarity,
		); err != nil {
			return nil, err
		}
		if embed != nil {
			c.Node.Embedding = embed.Slice()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MergeNodes folds the duplicate node into the survivor inside a single
// transaction: descriptions and source ids combine, edges retarget with
// self-loops dropped, events move, and the duplicate row is deleted.
func (s *GraphDBStorage) MergeNodes(ctx context.Context, survivorID string, duplicateID string, canonicalName string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE nodes AS survivor SET
	name = CASE WHEN $3 <> '' THEN $3 ELSE survivor.name END,
	description = CASE
		WHEN dupe.description = '' OR position(dupe.description IN survivor.description) > 0 THEN survivor.description
		WHEN survivor.description = '' THEN dupe.description
		ELSE survivor.description || E'\n' || dupe.description
	END,
	source_ids = (
		SELECT COALESCE(array_agg(DISTINCT sid), '{}')
		FROM unnest(survivor.source_ids || dupe.source_ids) AS sid
	)
FROM nodes AS dupe
WHERE survivor.id = $1 AND dupe.id = $2`,
		survivorID, duplicateID, canonicalName,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merge nodes: survivor %s or duplicate %s not found", survivorID, duplicateID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM edges WHERE (source_id = $2 AND target_id = $1) OR (source_id = $1 AND target_id = $2)`,
		survivorID, duplicateID,
	); err != nil {
		return err
	}
	// Drop duplicate edges that would collide with the survivor's after the
	// retarget (same endpoints and type).
	if _, err := tx.Exec(ctx, `
DELETE FROM edges e USING edges k
WHERE e.source_id = $2 AND k.source_id = $1
	AND e.target_id = k.target_id AND e.type = k.type AND e.partition = k.partition`,
		survivorID, duplicateID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM edges e USING edges k
WHERE e.target_id = $2 AND k.target_id = $1
	AND e.source_id = k.source_id AND e.type = k.type AND e.partition = k.partition`,
		survivorID, duplicateID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE edges SET source_id = $1 WHERE source_id = $2`, survivorID, duplicateID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE edges SET target_id = $1 WHERE target_id = $2`, survivorID, duplicateID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE events SET node_id = $1 WHERE node_id = $2`, survivorID, duplicateID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, duplicateID); err != nil {
		return err
	}

	logger.Debug("[Store][MergeNodes] Merged", "survivor", survivorID, "duplicate", duplicateID)
	return tx.Commit(ctx)
}

// DeletePartition removes all graph data for the partition. Edges, events,
// memberships, and hierarchy links go via cascading foreign keys.
func (s *GraphDBStorage) DeletePartition(ctx context.Context, partition string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM communities WHERE partition = $1`, partition); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE partition = $1`, partition); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

func scanOptionalNode(row pgxv5.Row) (*common.Node, error) {
	var n common.Node
	var embed *pgvector.Vector
	err := row.Scan(&n.ID, &n.Partition, &n.Name, &n.Type, &n.Description, &embed, &n.Confidence, &n.SourceIDs)
	if err == pgxv5.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if embed != nil {
		n.Embedding = embed.Slice()
	}
	return &n, nil
}

func scanNodes(rows pgxv5.Rows) ([]common.Node, error) {
	out := make([]common.Node, 0)
	for rows.Next() {
		var n common.Node
		var embed *pgvector.Vector
		if err := rows.Scan(&n.ID, &n.Partition, &n.Name, &n.Type, &n.Description, &embed, &n.Confidence, &n.SourceIDs); err != nil {
			return nil, err
		}
		if embed != nil {
			n.Embedding = embed.Slice()
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
