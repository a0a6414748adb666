package pgx

import (
	"context"

	"github.com/knitgraph/loom/pkg/common"
)

// GetStats returns per-partition node, edge, and community counts.
func (s *GraphDBStorage) GetStats(ctx context.Context, partition string) (*common.GraphStats, error) {
	stats := &common.GraphStats{}
	err := s.conn.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM nodes WHERE partition = $1),
	(SELECT COUNT(*) FROM edges WHERE partition = $1),
	(SELECT COUNT(*) FROM communities WHERE partition = $1)`,
		partition,
	).Scan(&stats.Nodes, &stats.Edges, &stats.Communities)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
