package tools

import (
	"context"
	"errors"

	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/storage"
	"github.com/untoldecay/LoreVault/internal/types"
)

// errNotAvailable is returned by tools whose collaborator is not
// configured. It is serialised, never raised.
var errNotAvailable = errors.New("not available")

// CodeSearcher is the external code index the search_code family
// wraps. Implementations live in internal/codesearch.
type CodeSearcher interface {
	Call(ctx context.Context, op string, args map[string]any) (any, error)
}

// WebClient backs web_search and web_fetch.
type WebClient interface {
	Search(ctx context.Context, query string) (any, error)
	Fetch(ctx context.Context, url string) (any, error)
}

// Librarian is the synchronous surface of the librarian subagent the
// dispatcher calls into.
type Librarian interface {
	Summarise(ctx context.Context, tenant, task string, content []types.SourceDocument, maxTokens int) (string, error)
	CreateIndex(ctx context.Context, tenant, folder string) (map[string]any, error)
}

// Deps are the collaborators the tool handlers close over. Code, Web
// and Librarian may be nil; the matching tools then answer
// {"error":"not available"}.
type Deps struct {
	Notes     *notes.Service
	Index     storage.Store
	Code      CodeSearcher
	Web       WebClient
	Librarian Librarian
}

// BuildRegistry attaches handlers for every manifest tool.
func BuildRegistry(deps Deps) (*Registry, error) {
	return NewRegistry(map[string]Handler{
		"vault_read":         deps.vaultRead,
		"vault_write":        deps.vaultWrite,
		"vault_list":         deps.vaultList,
		"vault_search":       deps.vaultSearch,
		"vault_move":         deps.vaultMove,
		"vault_create_index": deps.vaultCreateIndex,
		"thread_push":        deps.threadPush,
		"thread_read":        deps.threadRead,
		"thread_seek":        deps.threadSeek,
		"thread_list":        deps.threadList,
		"search_code":        deps.codeOp("search_code"),
		"find_definition":    deps.codeOp("find_definition"),
		"find_references":    deps.codeOp("find_references"),
		"get_repo_map":       deps.codeOp("get_repo_map"),
		"web_search":         deps.webSearch,
		"web_fetch":          deps.webFetch,
		"delegate_librarian": deps.delegateLibrarian,
	})
}

func (d Deps) vaultRead(ctx context.Context, tenant string, args map[string]any) (any, error) {
	note, err := d.Notes.Read(ctx, tenant, argString(args, "path"))
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, errors.New("File not found")
		}
		return nil, err
	}
	return map[string]any{
		"path":     note.Path,
		"title":    note.Title,
		"content":  note.Body,
		"metadata": note.Metadata,
		"version":  note.Version,
		"updated":  note.Updated,
	}, nil
}

func (d Deps) vaultWrite(ctx context.Context, tenant string, args map[string]any) (any, error) {
	meta, _ := args["metadata"].(map[string]any)
	note, err := d.Notes.Write(ctx, tenant, argString(args, "path"), argString(args, "content"), meta, notes.WriteOptions{})
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": note.Path, "title": note.Title, "version": note.Version}, nil
}

func (d Deps) vaultList(ctx context.Context, tenant string, args map[string]any) (any, error) {
	summaries, err := d.Notes.List(ctx, tenant, argString(args, "folder"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"notes": summaries, "count": len(summaries)}, nil
}

func (d Deps) vaultSearch(ctx context.Context, tenant string, args map[string]any) (any, error) {
	results, err := d.Index.Search(ctx, tenant, argString(args, "query"), argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}

func (d Deps) vaultMove(ctx context.Context, tenant string, args map[string]any) (any, error) {
	note, err := d.Notes.Move(ctx, tenant, argString(args, "source_path"), argString(args, "dest_path"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": note.Path, "title": note.Title, "version": note.Version}, nil
}

func (d Deps) vaultCreateIndex(ctx context.Context, tenant string, args map[string]any) (any, error) {
	if d.Librarian == nil {
		return nil, errNotAvailable
	}
	return d.Librarian.CreateIndex(ctx, tenant, argString(args, "folder"))
}

func (d Deps) threadPush(ctx context.Context, tenant string, args map[string]any) (any, error) {
	entry, err := d.Index.ThreadPush(ctx, tenant,
		argString(args, "project"), argString(args, "thread"),
		argString(args, "role"), argString(args, "content"))
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (d Deps) threadRead(ctx context.Context, tenant string, args map[string]any) (any, error) {
	entries, err := d.Index.ThreadRead(ctx, tenant,
		argString(args, "project"), argString(args, "thread"), argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries, "count": len(entries)}, nil
}

func (d Deps) threadSeek(ctx context.Context, tenant string, args map[string]any) (any, error) {
	entries, err := d.Index.ThreadSeek(ctx, tenant,
		argString(args, "project"), argString(args, "query"), argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries, "count": len(entries)}, nil
}

func (d Deps) threadList(ctx context.Context, tenant string, args map[string]any) (any, error) {
	threads, err := d.Index.ThreadList(ctx, tenant, argString(args, "project"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"threads": threads, "count": len(threads)}, nil
}

func (d Deps) codeOp(op string) Handler {
	return func(ctx context.Context, tenant string, args map[string]any) (any, error) {
		if d.Code == nil {
			return nil, errNotAvailable
		}
		return d.Code.Call(ctx, op, args)
	}
}

func (d Deps) webSearch(ctx context.Context, tenant string, args map[string]any) (any, error) {
	if d.Web == nil {
		return nil, errNotAvailable
	}
	return d.Web.Search(ctx, argString(args, "query"))
}

func (d Deps) webFetch(ctx context.Context, tenant string, args map[string]any) (any, error) {
	if d.Web == nil {
		return nil, errNotAvailable
	}
	return d.Web.Fetch(ctx, argString(args, "url"))
}

func (d Deps) delegateLibrarian(ctx context.Context, tenant string, args map[string]any) (any, error) {
	if d.Librarian == nil {
		return nil, errNotAvailable
	}
	content := sourceDocuments(args["content"])
	summary, err := d.Librarian.Summarise(ctx, tenant, argString(args, "task"), content, argInt(args, "max_tokens", 1000))
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": summary}, nil
}

func sourceDocuments(raw any) []types.SourceDocument {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]types.SourceDocument, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, types.SourceDocument{
			Path:       argString(m, "path"),
			Content:    argString(m, "content"),
			SourceType: argString(m, "source_type"),
		})
	}
	return out
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argInt tolerates both float64 (decoded JSON) and int arguments.
func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}
