// Package storage defines the interface for the secondary index.
package storage

import (
	"context"
	"errors"

	"github.com/untoldecay/LoreVault/internal/types"
)

// ErrDBNotInitialized is returned when a store method is called before
// the database has been opened.
var ErrDBNotInitialized = errors.New("database not initialized")

// Store is the secondary index over the vault: note metadata,
// full-text rows, tags, wikilink edges, health counters, conversation
// trees, and threads. All tables are keyed by tenant; no method ever
// returns rows belonging to another tenant.
//
// Writes use a single transaction per logical operation, so concurrent
// mutations serialise at the database rather than interleaving
// half-applied row sets.
type Store interface {
	Close() error

	// Indexer
	Index(ctx context.Context, tenant string, note *types.Note) (int64, error)
	DeleteIndex(ctx context.Context, tenant, path string) error
	GetVersion(ctx context.Context, tenant, path string) (int64, error)
	ClearTenant(ctx context.Context, tenant string) error
	MarkFullRebuild(ctx context.Context, tenant string) error

	// Query engine
	Search(ctx context.Context, tenant, query string, limit int) ([]types.SearchResult, error)
	Backlinks(ctx context.Context, tenant, targetPath string) ([]types.Backlink, error)
	Tags(ctx context.Context, tenant string) ([]types.TagCount, error)
	Graph(ctx context.Context, tenant string) (*types.Graph, error)
	Health(ctx context.Context, tenant string) (*types.IndexHealth, error)

	// Context trees
	CreateTree(ctx context.Context, tenant, project, label string, maxNodes int) (*types.ConversationTree, error)
	GetTrees(ctx context.Context, tenant, project string) ([]types.ConversationTree, error)
	GetTree(ctx context.Context, tenant, rootID string) (*types.ConversationTree, error)
	DeleteTree(ctx context.Context, tenant, rootID string) error
	GetNode(ctx context.Context, tenant, nodeID string) (*types.ConversationNode, error)
	CreateNode(ctx context.Context, tenant string, node *types.ConversationNode) (*types.ConversationNode, error)
	UpdateNode(ctx context.Context, tenant, nodeID string, label *string, isCheckpoint *bool) error
	Checkout(ctx context.Context, tenant, rootID, nodeID string) error
	PathToHead(ctx context.Context, tenant, rootID string) ([]string, error)
	PruneTree(ctx context.Context, tenant, rootID string) (removed, remaining int, err error)
	GetActiveTreeID(ctx context.Context, tenant, project string) (string, error)
	SetActiveTree(ctx context.Context, tenant, rootID string) error

	// Threads
	ThreadPush(ctx context.Context, tenant, project, name, role, content string) (*types.ThreadEntry, error)
	ThreadRead(ctx context.Context, tenant, project, name string, limit int) ([]types.ThreadEntry, error)
	ThreadSeek(ctx context.Context, tenant, project, query string, limit int) ([]types.ThreadEntry, error)
	ThreadList(ctx context.Context, tenant, project string) ([]types.Thread, error)
}
