package sqlite

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/LoreVault/internal/types"
)

const (
	// MaxSearchLimit caps the number of results per query.
	MaxSearchLimit = 100
	// MaxQueryLength caps raw query input.
	MaxQueryLength = 256

	titleWeight = 3.0
	bodyWeight  = 1.0

	recencyWeekBonus  = 1.0
	recencyMonthBonus = 0.5
)

var tokenRe = regexp.MustCompile(`[0-9A-Za-z]+\*?`)

// SanitiseQuery turns free-form text into an FTS5 MATCH expression:
// alphanumeric tokens, each double-quoted to neutralise operators, a
// trailing * kept outside the quotes for prefix search, joined with
// whitespace (implicit AND).
func SanitiseQuery(query string) (string, error) {
	if len(query) > MaxQueryLength {
		return "", types.NewError(types.KindValidation, "query exceeds %d characters", MaxQueryLength).WithDetail("reason", "query_invalid")
	}
	tokens := tokenRe.FindAllString(query, -1)
	if len(tokens) == 0 {
		return "", types.NewError(types.KindValidation, "query contains no searchable tokens").WithDetail("reason", "query_invalid")
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		if strings.HasSuffix(tok, "*") {
			quoted[i] = `"` + strings.TrimSuffix(tok, "*") + `"*`
		} else {
			quoted[i] = `"` + tok + `"`
		}
	}
	return strings.Join(quoted, " "), nil
}

// Search runs a field-weighted BM25 query with snippets, applies the
// recency bonus in Go, and returns results sorted by final score
// descending (ties: updated descending, then path ascending).
func (s *Store) Search(ctx context.Context, tenant, query string, limit int) ([]types.SearchResult, error) {
	if s.db == nil {
		return nil, internalErr(nil, "database not initialized")
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	match, err := SanitiseQuery(query)
	if err != nil {
		return nil, err
	}

	// The recency bonus can lift a note past candidates above it on raw
	// BM25, so fetch more than asked for and re-rank before truncating.
	fetch := limit * 2
	if fetch > MaxSearchLimit*2 {
		fetch = MaxSearchLimit * 2
	}

	// bm25() is lower-is-better; negate so higher is better before
	// adding the recency bonus.
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path,
		       m.title,
		       snippet(note_fts, 1, '<mark>', '</mark>', '…', 32),
		       -bm25(note_fts, ?, ?) AS score,
		       m.updated
		FROM note_fts f
		JOIN note_metadata m ON m.tenant = f.tenant AND m.path = f.path
		WHERE note_fts MATCH ? AND f.tenant = ?
		ORDER BY score DESC
		LIMIT ?`,
		titleWeight, bodyWeight, match, tenant, fetch)
	if err != nil {
		return nil, internalErr(err, "search failed")
	}
	defer func() { _ = rows.Close() }()

	now := time.Now().UTC()
	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var updated string
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet, &r.Score, &updated); err != nil {
			return nil, internalErr(err, "failed to scan search row")
		}
		if t, perr := time.Parse(time.RFC3339, updated); perr == nil {
			r.Updated = t.UTC()
		}
		r.Score += recencyBonus(now, r.Updated)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr(err, "search failed")
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Updated.Equal(results[j].Updated) {
			return results[i].Updated.After(results[j].Updated)
		}
		return results[i].Path < results[j].Path
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func recencyBonus(now, updated time.Time) float64 {
	if updated.IsZero() {
		return 0
	}
	age := now.Sub(updated)
	switch {
	case age <= 7*24*time.Hour:
		return recencyWeekBonus
	case age <= 30*24*time.Hour:
		return recencyMonthBonus
	default:
		return 0
	}
}
