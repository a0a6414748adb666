package store

import (
	"context"

	"github.com/knitgraph/loom/pkg/common"
)

// GraphStorage defines the interface for persisting and querying the
// consolidated knowledge graph: nodes, edges, events, and the community
// hierarchy built on top of them. All reads and writes are scoped to a
// partition so multiple graphs can share one database.
type GraphStorage interface {
	// Nodes
	SaveNodes(ctx context.Context, nodes []common.Node) error
	GetNode(ctx context.Context, id string) (*common.Node, error)
	GetNodeByName(ctx context.Context, partition string, name string) (*common.Node, error)
	ListNodes(ctx context.Context, partition string, limit int, offset int) ([]common.Node, error)
	FindSimilarNodes(
		ctx context.Context,
		partition string,
		embedding []float32,
		limit int,
		floor float64,
	) ([]common.Candidate, error)
	// MergeNodes folds the duplicate node into the surviving one inside a
	// single transaction: source ids transfer, edges retarget, events move,
	// and the duplicate is deleted. The survivor takes canonicalName.
	MergeNodes(ctx context.Context, survivorID string, duplicateID string, canonicalName string) error
	DeletePartition(ctx context.Context, partition string) error

	// Edges
	SaveEdges(ctx context.Context, edges []common.Edge) error
	ListEdges(ctx context.Context, partition string, limit int, offset int) ([]common.Edge, error)

	// Events
	SaveEvents(ctx context.Context, events []common.Event) error
	GetNodeEvents(ctx context.Context, nodeID string) ([]common.Event, error)

	// Communities. ReplaceHierarchy swaps the partition's entire hierarchy
	// atomically; readers never observe a mix of old and new communities.
	ReplaceHierarchy(ctx context.Context, hierarchy common.Hierarchy) error
	MaxCommunityLevel(ctx context.Context, partition string) (int, error)
	GetCommunitiesAtLevel(ctx context.Context, partition string, level int) ([]common.Community, error)
	GetCommunityMembers(ctx context.Context, communityID string) ([]common.Node, error)
	GetCommunityChildren(ctx context.Context, communityID string) ([]common.Community, error)
	UpdateCommunitySummary(ctx context.Context, community common.Community) error
	FindSimilarCommunities(
		ctx context.Context,
		partition string,
		embedding []float32,
		limit int,
	) ([]common.Community, error)

	GetStats(ctx context.Context, partition string) (*common.GraphStats, error)
}
