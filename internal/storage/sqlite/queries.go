package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/untoldecay/LoreVault/internal/types"
)

// Backlinks returns the distinct notes linking to targetPath, most
// recently updated first.
func (s *Store) Backlinks(ctx context.Context, tenant, targetPath string) ([]types.Backlink, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT l.source_path, m.title
		FROM note_links l
		JOIN note_metadata m ON m.tenant = l.tenant AND m.path = l.source_path
		WHERE l.tenant = ? AND l.target_path = ?
		ORDER BY m.updated DESC, l.source_path ASC`,
		tenant, targetPath)
	if err != nil {
		return nil, internalErr(err, "failed to query backlinks")
	}
	defer func() { _ = rows.Close() }()

	var out []types.Backlink
	for rows.Next() {
		var b types.Backlink
		if err := rows.Scan(&b.Path, &b.Title); err != nil {
			return nil, internalErr(err, "failed to scan backlink")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to query backlinks")
	}
	return out, nil
}

// Tags returns the tenant's tags with distinct-note counts, sorted by
// count descending then tag ascending.
func (s *Store) Tags(ctx context.Context, tenant string) ([]types.TagCount, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(DISTINCT path) AS n
		FROM note_tags
		WHERE tenant = ?
		GROUP BY tag
		ORDER BY n DESC, tag ASC`, tenant)
	if err != nil {
		return nil, internalErr(err, "failed to query tags")
	}
	defer func() { _ = rows.Close() }()

	var out []types.TagCount
	for rows.Next() {
		var t types.TagCount
		if err := rows.Scan(&t.Tag, &t.Count); err != nil {
			return nil, internalErr(err, "failed to scan tag")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to query tags")
	}
	return out, nil
}

// Graph derives the tenant's note graph: one node per indexed note
// (grouped by first path segment) and one edge per resolved wikilink.
func (s *Store) Graph(ctx context.Context, tenant string) (*types.Graph, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	g := &types.Graph{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, title FROM note_metadata WHERE tenant = ? ORDER BY path`, tenant)
	if err != nil {
		return nil, internalErr(err, "failed to query graph nodes")
	}
	for rows.Next() {
		var n types.GraphNode
		if err := rows.Scan(&n.ID, &n.Title); err != nil {
			_ = rows.Close()
			return nil, internalErr(err, "failed to scan graph node")
		}
		n.Group = pathGroup(n.ID)
		g.Nodes = append(g.Nodes, n)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to query graph nodes")
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT source_path, target_path FROM note_links
		WHERE tenant = ? AND is_resolved = 1
		ORDER BY source_path, target_path`, tenant)
	if err != nil {
		return nil, internalErr(err, "failed to query graph edges")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var e types.GraphEdge
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return nil, internalErr(err, "failed to scan graph edge")
		}
		g.Edges = append(g.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to query graph edges")
	}
	return g, nil
}

// Health returns the tenant's index counters. A tenant with no index
// activity yet reports zeroes rather than not_found.
func (s *Store) Health(ctx context.Context, tenant string) (*types.IndexHealth, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	h := &types.IndexHealth{Tenant: tenant}
	var rebuild, incr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT note_count, last_full_rebuild, last_incremental_update
		FROM index_health WHERE tenant = ?`, tenant).
		Scan(&h.NoteCount, &rebuild, &incr)
	if err == sql.ErrNoRows {
		return h, nil
	}
	if err != nil {
		return nil, internalErr(err, "failed to query health")
	}
	h.LastFullRebuild = parseNullTime(rebuild)
	h.LastIncrementalUpdate = parseNullTime(incr)
	return h, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func pathGroup(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return "root"
}
