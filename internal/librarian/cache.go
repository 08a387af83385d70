package librarian

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/LoreVault/internal/types"
)

// Cache layout parameters. Summaries are content-addressed: the same
// task over the same sources lands on the same note path.
const (
	cacheRoot       = "oracle-cache/summaries"
	cacheKeyLength  = 16
	perDocKeyBytes  = 1000
	taskSlugInPath  = 30
	taskSlugMaxLen  = 64
)

var nonWordRe = regexp.MustCompile(`[^0-9A-Za-z]+`)

// cacheKey derives the content-addressed key for a summarisation
// task: the first 16 hex chars of a SHA-256 over the task, the sorted
// source paths, and the first 1000 bytes of each source in path
// order.
func cacheKey(task string, docs []types.SourceDocument) string {
	sorted := make([]types.SourceDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte("|"))
	for i, doc := range sorted {
		if i > 0 {
			h.Write([]byte(","))
		}
		h.Write([]byte(doc.Path))
	}
	h.Write([]byte("|"))
	for _, doc := range sorted {
		content := doc.Content
		if len(content) > perDocKeyBytes {
			content = content[:perDocKeyBytes]
		}
		h.Write([]byte(content))
	}
	return hex.EncodeToString(h.Sum(nil))[:cacheKeyLength]
}

// cachePath places a summary under the cache tree by source type and
// day.
func cachePath(task string, docs []types.SourceDocument, key string, now time.Time) string {
	slug := safeTask(task)
	if len(slug) > taskSlugInPath {
		slug = slug[:taskSlugInPath]
	}
	return fmt.Sprintf("%s/%s/%s/%s-%s.md",
		cacheRoot, primaryType(docs), now.UTC().Format("2006-01-02"), slug, key)
}

// primaryType is the most common source type across the inputs, or
// "mixed" when there is no unique winner. Untyped sources count as
// vault content.
func primaryType(docs []types.SourceDocument) string {
	if len(docs) == 0 {
		return "mixed"
	}
	counts := make(map[string]int)
	for _, doc := range docs {
		t := doc.SourceType
		if t == "" {
			t = "vault"
		}
		counts[t]++
	}
	best, bestCount, unique := "", 0, true
	for t, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, unique = t, n, true
		case n == bestCount:
			unique = false
		}
	}
	if !unique {
		return "mixed"
	}
	return best
}

// safeTask turns a task description into a filename fragment.
func safeTask(task string) string {
	s := nonWordRe.ReplaceAllString(task, "-")
	s = strings.Trim(s, "-")
	s = strings.ToLower(s)
	if s == "" {
		s = "task"
	}
	if len(s) > taskSlugMaxLen {
		s = s[:taskSlugMaxLen]
	}
	return s
}
