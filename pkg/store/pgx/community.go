package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
)

// ReplaceHierarchy atomically swaps the partition's community hierarchy.
// The old communities are deleted and the new ones inserted inside one
// transaction, so concurrent readers see either the full old hierarchy or
// the full new one. New communities start with the pending summary sentinel.
func (s *GraphDBStorage) ReplaceHierarchy(ctx context.Context, hierarchy common.Hierarchy) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM communities WHERE partition = $1`, hierarchy.Partition); err != nil {
		return err
	}

	batch := &pgxv5.Batch{}
	for _, c := range hierarchy.Communities {
		if c.ID == "" {
			return fmt.Errorf("community id is empty")
		}
		summary := c.Summary
		if summary == "" {
			summary = common.SummaryPending
		}
		batch.Queue(`
INSERT INTO communities (id, partition, level, title, summary, full_report, summary_embedding, member_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, hierarchy.Partition, c.Level, c.Title, summary, c.FullReport,
			nullableVector(c.SummaryEmbedding), c.MemberCount,
		)
	}
	for _, m := range hierarchy.Memberships {
		batch.Queue(`
INSERT INTO community_membership (community_id, node_id, rank)
VALUES ($1, $2, $3)`,
			m.CommunityID, m.NodeID, m.Rank,
		)
	}
	for _, l := range hierarchy.Links {
		batch.Queue(`
INSERT INTO community_hierarchy (child_id, parent_id)
VALUES ($1, $2)`,
			l.ChildID, l.ParentID,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	logger.Debug("[Store][ReplaceHierarchy] Swapped hierarchy",
		"partition", hierarchy.Partition,
		"communities", len(hierarchy.Communities),
		"memberships", len(hierarchy.Memberships),
	)
	return tx.Commit(ctx)
}

// MaxCommunityLevel returns the highest level present, or -1 when the
// partition has no hierarchy.
func (s *GraphDBStorage) MaxCommunityLevel(ctx context.Context, partition string) (int, error) {
	var maxLevel int
	err := s.conn.QueryRow(ctx,
		`SELECT COALESCE(MAX(level), -1) FROM communities WHERE partition = $1`,
		partition,
	).Scan(&maxLevel)
	return maxLevel, err
}

// GetCommunitiesAtLevel returns the partition's communities at one level,
// id-ordered.
func (s *GraphDBStorage) GetCommunitiesAtLevel(ctx context.Context, partition string, level int) ([]common.Community, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, partition, level, title, summary, full_report, summary_embedding, member_count
FROM communities
WHERE partition = $1 AND level = $2
ORDER BY id`,
		partition, level,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCommunities(rows)
}

// GetCommunityMembers returns member nodes ordered by membership rank.
func (s *GraphDBStorage) GetCommunityMembers(ctx context.Context, communityID string) ([]common.Node, error) {
	rows, err := s.conn.Query(ctx, `
SELECT n.id, n.partition, n.name, n.type, n.description, n.embedding, n.confidence, n.source_ids
FROM community_membership m
JOIN nodes n ON n.id = m.node_id
WHERE m.community_id = $1
ORDER BY m.rank, n.id`,
		communityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNodes(rows)
}

// GetCommunityChildren returns the direct children of a community, id-ordered.
func (s *GraphDBStorage) GetCommunityChildren(ctx context.Context, communityID string) ([]common.Community, error) {
	rows, err := s.conn.Query(ctx, `
SELECT c.id, c.partition, c.level, c.title, c.summary, c.full_report, c.summary_embedding, c.member_count
FROM community_hierarchy h
JOIN communities c ON c.id = h.child_id
WHERE h.parent_id = $1
ORDER BY c.id`,
		communityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCommunities(rows)
}

// UpdateCommunitySummary stores the community's generated report fields.
func (s *GraphDBStorage) UpdateCommunitySummary(ctx context.Context, community common.Community) error {
	tag, err := s.conn.Exec(ctx, `
UPDATE communities SET
	title = $2,
	summary = $3,
	full_report = $4,
	summary_embedding = $5
WHERE id = $1`,
		community.ID, community.Title, community.Summary, community.FullReport,
		nullableVector(community.SummaryEmbedding),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("community not found: %s", community.ID)
	}
	return nil
}

// FindSimilarCommunities returns summarized communities most similar to the
// query embedding, most similar first. Pending communities never surface.
func (s *GraphDBStorage) FindSimilarCommunities(
	ctx context.Context,
	partition string,
	embedding []float32,
	limit int,
) ([]common.Community, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, partition, level, title, summary, full_report, summary_embedding, member_count
FROM communities
WHERE partition = $1
	AND summary_embedding IS NOT NULL
	AND summary <> $3
ORDER BY summary_embedding <=> $2::vector, id
LIMIT $4`,
		partition, pgvector.NewVector(embedding), common.SummaryPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCommunities(rows)
}

func scanCommunities(rows pgxv5.Rows) ([]common.Community, error) {
	out := make([]common.Community, 0)
	for rows.Next() {
		var c common.Community
		var embed *pgvector.Vector
		if err := rows.Scan(
			&c.ID, &c.Partition, &c.Level, &c.Title, &c.Summary,
			&c.FullReport, &embed, &c.MemberCount,
		); err != nil {
			return nil, err
		}
		if embed != nil {
			c.SummaryEmbedding = embed.Slice()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
