package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/LoreVault/internal/types"
)

// CreateTree atomically inserts a tree row and its root node. HEAD
// starts at the root.
func (s *Store) CreateTree(ctx context.Context, tenant, project, label string, maxNodes int) (*types.ConversationTree, error) {
	if maxNodes <= 0 {
		maxNodes = types.DefaultMaxNodes
	}
	now := time.Now().UTC()
	rootID := uuid.NewString()
	tree := &types.ConversationTree{
		RootID:        rootID,
		Tenant:        tenant,
		Project:       project,
		CurrentNodeID: rootID,
		CreatedAt:     now,
		LastActivity:  now,
		NodeCount:     1,
		MaxNodes:      maxNodes,
		Label:         label,
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_trees (root_id, tenant, project, current_node_id, created_at, last_activity, node_count, max_nodes, label)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			rootID, tenant, project, rootID,
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), maxNodes, label)
		if err != nil {
			return fmt.Errorf("failed to insert tree: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO context_nodes (id, root_id, parent_id, tenant, project, created_at, is_root)
			VALUES (?, ?, NULL, ?, ?, ?, 1)`,
			rootID, rootID, tenant, project, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert root node: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internalErr(err, "failed to create conversation tree")
	}
	return tree, nil
}

// GetTrees lists the tenant's trees for a project, most recently
// active first.
func (s *Store) GetTrees(ctx context.Context, tenant, project string) ([]types.ConversationTree, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT root_id, tenant, project, current_node_id, created_at, last_activity, node_count, max_nodes, label
		FROM context_trees
		WHERE tenant = ? AND project = ?
		ORDER BY last_activity DESC`, tenant, project)
	if err != nil {
		return nil, internalErr(err, "failed to query trees")
	}
	defer func() { _ = rows.Close() }()

	var out []types.ConversationTree
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, internalErr(err, "failed to scan tree")
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to query trees")
	}
	return out, nil
}

// GetTree loads one tree by root id.
func (s *Store) GetTree(ctx context.Context, tenant, rootID string) (*types.ConversationTree, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT root_id, tenant, project, current_node_id, created_at, last_activity, node_count, max_nodes, label
		FROM context_trees
		WHERE tenant = ? AND root_id = ?`, tenant, rootID)
	t, err := scanTree(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.KindNotFound, "conversation tree not found: %s", rootID)
	}
	if err != nil {
		return nil, internalErr(err, "failed to load tree")
	}
	return t, nil
}

// DeleteTree removes the tree; nodes cascade.
func (s *Store) DeleteTree(ctx context.Context, tenant, rootID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM context_trees WHERE tenant = ? AND root_id = ?`, tenant, rootID)
		if err != nil {
			return fmt.Errorf("failed to delete tree: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.NewError(types.KindNotFound, "conversation tree not found: %s", rootID)
		}
		return nil
	})
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return err
		}
		return internalErr(err, "failed to delete tree %s", rootID)
	}
	return nil
}

// GetNode loads one node by id.
func (s *Store) GetNode(ctx context.Context, tenant, nodeID string) (*types.ConversationNode, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root_id, parent_id, tenant, project, created_at, question, answer, tool_calls, tokens_used, model_used, label, is_checkpoint, is_root
		FROM context_nodes
		WHERE tenant = ? AND id = ?`, tenant, nodeID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.KindNotFound, "conversation node not found: %s", nodeID)
	}
	if err != nil {
		return nil, internalErr(err, "failed to load node")
	}
	return n, nil
}

// CreateNode appends a node under the given parent (default: HEAD),
// moves HEAD to it, and bumps counters, all in one transaction.
func (s *Store) CreateNode(ctx context.Context, tenant string, node *types.ConversationNode) (*types.ConversationNode, error) {
	if node.RootID == "" {
		return nil, types.NewError(types.KindValidation, "node requires a root_id")
	}
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	node.Tenant = tenant

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var head, project string
		err := tx.QueryRowContext(ctx,
			`SELECT current_node_id, project FROM context_trees WHERE tenant = ? AND root_id = ?`,
			tenant, node.RootID).Scan(&head, &project)
		if err == sql.ErrNoRows {
			return types.NewError(types.KindNotFound, "conversation tree not found: %s", node.RootID)
		}
		if err != nil {
			return fmt.Errorf("failed to load tree head: %w", err)
		}
		if node.ParentID == "" {
			node.ParentID = head
		}
		if node.Project == "" {
			node.Project = project
		}

		toolCalls, err := json.Marshal(node.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to serialise tool calls: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO context_nodes (id, root_id, parent_id, tenant, project, created_at, question, answer, tool_calls, tokens_used, model_used, label, is_checkpoint, is_root)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			node.ID, node.RootID, node.ParentID, tenant, node.Project,
			node.CreatedAt.Format(time.RFC3339Nano), node.Question, node.Answer,
			string(toolCalls), node.TokensUsed, node.ModelUsed, node.Label,
			boolInt(node.IsCheckpoint))
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE context_trees
			SET current_node_id = ?, node_count = node_count + 1, last_activity = ?
			WHERE tenant = ? AND root_id = ?`,
			node.ID, time.Now().UTC().Format(time.RFC3339Nano), tenant, node.RootID)
		if err != nil {
			return fmt.Errorf("failed to move head: %w", err)
		}
		return nil
	})
	if err != nil {
		if types.IsKind(err, types.KindNotFound) || types.IsKind(err, types.KindValidation) {
			return nil, err
		}
		return nil, internalErr(err, "failed to create conversation node")
	}
	return node, nil
}

// UpdateNode sets label and/or checkpoint flag on a node.
func (s *Store) UpdateNode(ctx context.Context, tenant, nodeID string, label *string, isCheckpoint *bool) error {
	if label == nil && isCheckpoint == nil {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		set := ""
		args := []any{}
		if label != nil {
			set = "label = ?"
			args = append(args, *label)
		}
		if isCheckpoint != nil {
			if set != "" {
				set += ", "
			}
			set += "is_checkpoint = ?"
			args = append(args, boolInt(*isCheckpoint))
		}
		args = append(args, tenant, nodeID)
		res, err := tx.ExecContext(ctx,
			"UPDATE context_nodes SET "+set+" WHERE tenant = ? AND id = ?", args...)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.NewError(types.KindNotFound, "conversation node not found: %s", nodeID)
		}
		return nil
	})
	if err != nil && !types.IsKind(err, types.KindNotFound) {
		return internalErr(err, "failed to update node %s", nodeID)
	}
	return err
}

// Checkout moves HEAD to an existing node in the same tree. Parent
// links are untouched.
func (s *Store) Checkout(ctx context.Context, tenant, rootID, nodeID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM context_nodes WHERE tenant = ? AND root_id = ? AND id = ?`,
			tenant, rootID, nodeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check node: %w", err)
		}
		if exists == 0 {
			return types.NewError(types.KindNotFound, "conversation node not found: %s", nodeID)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE context_trees SET current_node_id = ?, last_activity = ?
			WHERE tenant = ? AND root_id = ?`,
			nodeID, time.Now().UTC().Format(time.RFC3339Nano), tenant, rootID)
		if err != nil {
			return fmt.Errorf("failed to move head: %w", err)
		}
		return nil
	})
	if err != nil && !types.IsKind(err, types.KindNotFound) {
		return internalErr(err, "failed to checkout %s", nodeID)
	}
	return err
}

// PathToHead walks parent links from HEAD to the root and returns the
// node ids root-first. A cycle aborts the walk; trees are built
// append-only so one indicates corruption.
func (s *Store) PathToHead(ctx context.Context, tenant, rootID string) ([]string, error) {
	tree, err := s.GetTree(ctx, tenant, rootID)
	if err != nil {
		return nil, err
	}
	visited := make(map[string]bool)
	var reversed []string
	current := tree.CurrentNodeID
	for current != "" {
		if visited[current] {
			return nil, internalErr(nil, "cycle detected in conversation tree %s at node %s", rootID, current)
		}
		visited[current] = true
		reversed = append(reversed, current)

		var parent sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT parent_id FROM context_nodes WHERE tenant = ? AND id = ?`,
			tenant, current).Scan(&parent)
		if err == sql.ErrNoRows {
			return nil, internalErr(nil, "dangling head in conversation tree %s", rootID)
		}
		if err != nil {
			return nil, internalErr(err, "failed to walk tree %s", rootID)
		}
		if !parent.Valid {
			break
		}
		current = parent.String
	}
	out := make([]string, len(reversed))
	for i, id := range reversed {
		out[len(reversed)-1-i] = id
	}
	return out, nil
}

// PruneTree deletes every non-checkpoint, non-root node that is not on
// the path from HEAD to root, then recounts.
func (s *Store) PruneTree(ctx context.Context, tenant, rootID string) (int, int, error) {
	keep, err := s.PathToHead(ctx, tenant, rootID)
	if err != nil {
		return 0, 0, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	var removed, remaining int
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM context_nodes
			WHERE tenant = ? AND root_id = ? AND is_checkpoint = 0 AND is_root = 0`,
			tenant, rootID)
		if err != nil {
			return fmt.Errorf("failed to list prunable nodes: %w", err)
		}
		var victims []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			if !keepSet[id] {
				victims = append(victims, id)
			}
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range victims {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM context_nodes WHERE tenant = ? AND id = ?`, tenant, id); err != nil {
				return fmt.Errorf("failed to prune node %s: %w", id, err)
			}
		}
		removed = len(victims)

		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM context_nodes WHERE tenant = ? AND root_id = ?`,
			tenant, rootID).Scan(&remaining)
		if err != nil {
			return fmt.Errorf("failed to recount nodes: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE context_trees SET node_count = ? WHERE tenant = ? AND root_id = ?`,
			remaining, tenant, rootID)
		if err != nil {
			return fmt.Errorf("failed to store node count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, internalErr(err, "failed to prune tree %s", rootID)
	}
	return removed, remaining, nil
}

// GetActiveTreeID returns the most recently active tree for a
// tenant+project, "" when none exists.
func (s *Store) GetActiveTreeID(ctx context.Context, tenant, project string) (string, error) {
	if s.db == nil {
		return "", internalErr(nil, "database not initialized")
	}
	var rootID string
	err := s.db.QueryRowContext(ctx, `
		SELECT root_id FROM context_trees
		WHERE tenant = ? AND project = ?
		ORDER BY last_activity DESC LIMIT 1`, tenant, project).Scan(&rootID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", internalErr(err, "failed to find active tree")
	}
	return rootID, nil
}

// SetActiveTree makes the tree the project's active one by stamping
// last_activity, the column GetActiveTreeID orders by.
func (s *Store) SetActiveTree(ctx context.Context, tenant, rootID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE context_trees SET last_activity = ?
			WHERE tenant = ? AND root_id = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), tenant, rootID)
		if err != nil {
			return fmt.Errorf("failed to touch tree: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.NewError(types.KindNotFound, "conversation tree not found: %s", rootID)
		}
		return nil
	})
	if err != nil && !types.IsKind(err, types.KindNotFound) {
		return internalErr(err, "failed to activate tree %s", rootID)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTree(row rowScanner) (*types.ConversationTree, error) {
	var t types.ConversationTree
	var created, activity string
	err := row.Scan(&t.RootID, &t.Tenant, &t.Project, &t.CurrentNodeID,
		&created, &activity, &t.NodeCount, &t.MaxNodes, &t.Label)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTimeOrZero(created)
	t.LastActivity = parseTimeOrZero(activity)
	return &t, nil
}

func scanNode(row rowScanner) (*types.ConversationNode, error) {
	var n types.ConversationNode
	var parent sql.NullString
	var created, toolCalls string
	var isCheckpoint, isRoot int
	err := row.Scan(&n.ID, &n.RootID, &parent, &n.Tenant, &n.Project, &created,
		&n.Question, &n.Answer, &toolCalls, &n.TokensUsed, &n.ModelUsed,
		&n.Label, &isCheckpoint, &isRoot)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = parent.String
	}
	n.CreatedAt = parseTimeOrZero(created)
	n.IsCheckpoint = isCheckpoint != 0
	n.IsRoot = isRoot != 0
	if toolCalls != "" && toolCalls != "[]" {
		_ = json.Unmarshal([]byte(toolCalls), &n.ToolCalls)
	}
	return &n, nil
}

func parseTimeOrZero(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
