package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/store"
)

const eventChunk = 500

// SaveEvents inserts temporal events. Duplicate ids are ignored so replays
// are harmless.
func (s *GraphDBStorage) SaveEvents(ctx context.Context, events []common.Event) error {
	if len(events) == 0 {
		return nil
	}

	return store.ChunkRange(len(events), eventChunk, func(start, end int) error {
		part := events[start:end]

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		batch := &pgxv5.Batch{}
		for _, ev := range part {
			if ev.ID == "" {
				return fmt.Errorf("event id is empty")
			}
			batch.Queue(`
INSERT INTO events (id, node_id, description, ts, raw_time)
VALUES ($1, $2, $3, NULLIF($4, '')::date, $5)
ON CONFLICT (id) DO NOTHING`,
				ev.ID, ev.NodeID, ev.Description, ev.Timestamp, ev.RawTime,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// GetNodeEvents returns the node's events ordered by timestamp, undated last.
func (s *GraphDBStorage) GetNodeEvents(ctx context.Context, nodeID string) ([]common.Event, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, node_id, description, COALESCE(ts::text, ''), raw_time
FROM events
WHERE node_id = $1
ORDER BY ts NULLS LAST, id`,
		nodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Event, 0)
	for rows.Next() {
		var ev common.Event
		if err := rows.Scan(&ev.ID, &ev.NodeID, &ev.Description, &ev.Timestamp, &ev.RawTime); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
