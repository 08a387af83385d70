package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/LoreVault/internal/types"
)

// ThreadPush appends a turn to the named project thread, creating the
// thread on first use and assigning the next sequence id.
func (s *Store) ThreadPush(ctx context.Context, tenant, project, name, role, content string) (*types.ThreadEntry, error) {
	if name == "" {
		name = "main"
	}
	now := time.Now().UTC()
	entry := &types.ThreadEntry{Role: role, Content: content, CreatedAt: now}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var threadID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM threads WHERE tenant = ? AND project = ? AND name = ?`,
			tenant, project, name).Scan(&threadID)
		if err == sql.ErrNoRows {
			threadID = uuid.NewString()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO threads (id, tenant, project, name, created_at, last_activity, entry_count)
				VALUES (?, ?, ?, ?, ?, ?, 0)`,
				threadID, tenant, project, name,
				now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("failed to create thread: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up thread: %w", err)
		}
		entry.ThreadID = threadID

		var maxSeq sql.NullInt64
		err = tx.QueryRowContext(ctx,
			`SELECT MAX(seq) FROM thread_entries WHERE thread_id = ?`, threadID).Scan(&maxSeq)
		if err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		entry.Seq = int(maxSeq.Int64) + 1

		_, err = tx.ExecContext(ctx, `
			INSERT INTO thread_entries (thread_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			threadID, entry.Seq, role, content, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to append entry: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO thread_fts (content, thread_id, seq) VALUES (?, ?, ?)`,
			content, threadID, entry.Seq)
		if err != nil {
			return fmt.Errorf("failed to index entry: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE threads SET entry_count = entry_count + 1, last_activity = ?
			WHERE id = ?`, now.Format(time.RFC3339Nano), threadID)
		if err != nil {
			return fmt.Errorf("failed to bump thread: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internalErr(err, "failed to push to thread %s", name)
	}
	return entry, nil
}

// ThreadRead returns the last limit entries of the named thread in
// chronological order.
func (s *Store) ThreadRead(ctx context.Context, tenant, project, name string, limit int) ([]types.ThreadEntry, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	if name == "" {
		name = "main"
	}
	if limit <= 0 {
		limit = 20
	}
	var threadID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM threads WHERE tenant = ? AND project = ? AND name = ?`,
		tenant, project, name).Scan(&threadID)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.KindNotFound, "thread not found: %s", name)
	}
	if err != nil {
		return nil, internalErr(err, "failed to look up thread %s", name)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, seq, role, content, created_at FROM (
			SELECT thread_id, seq, role, content, created_at
			FROM thread_entries WHERE thread_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, threadID, limit)
	if err != nil {
		return nil, internalErr(err, "failed to read thread %s", name)
	}
	defer func() { _ = rows.Close() }()
	return scanThreadEntries(rows)
}

// ThreadSeek runs a full-text query over the project's thread entries.
func (s *Store) ThreadSeek(ctx context.Context, tenant, project, query string, limit int) ([]types.ThreadEntry, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = 20
	}
	match, err := SanitiseQuery(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.thread_id, e.seq, e.role, e.content, e.created_at
		FROM thread_fts f
		JOIN thread_entries e ON e.thread_id = f.thread_id AND e.seq = f.seq
		JOIN threads t ON t.id = e.thread_id
		WHERE thread_fts MATCH ? AND t.tenant = ? AND t.project = ?
		ORDER BY bm25(thread_fts)
		LIMIT ?`, match, tenant, project, limit)
	if err != nil {
		return nil, internalErr(err, "thread search failed")
	}
	defer func() { _ = rows.Close() }()
	return scanThreadEntries(rows)
}

// ThreadList lists the project's threads, most recently active first.
func (s *Store) ThreadList(ctx context.Context, tenant, project string) ([]types.Thread, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, project, name, created_at, last_activity, entry_count
		FROM threads
		WHERE tenant = ? AND project = ?
		ORDER BY last_activity DESC`, tenant, project)
	if err != nil {
		return nil, internalErr(err, "failed to list threads")
	}
	defer func() { _ = rows.Close() }()

	var out []types.Thread
	for rows.Next() {
		var t types.Thread
		var created, activity string
		if err := rows.Scan(&t.ID, &t.Tenant, &t.Project, &t.Name, &created, &activity, &t.EntryCount); err != nil {
			return nil, internalErr(err, "failed to scan thread")
		}
		t.CreatedAt = parseTimeOrZero(created)
		t.LastActivity = parseTimeOrZero(activity)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to list threads")
	}
	return out, nil
}

func scanThreadEntries(rows *sql.Rows) ([]types.ThreadEntry, error) {
	var out []types.ThreadEntry
	for rows.Next() {
		var e types.ThreadEntry
		var created string
		if err := rows.Scan(&e.ThreadID, &e.Seq, &e.Role, &e.Content, &created); err != nil {
			return nil, internalErr(err, "failed to scan thread entry")
		}
		e.CreatedAt = parseTimeOrZero(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "failed to scan thread entries")
	}
	return out, nil
}
