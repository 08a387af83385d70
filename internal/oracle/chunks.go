package oracle

// Chunk types emitted on an oracle or librarian stream.
const (
	ChunkThinking   = "thinking"
	ChunkContent    = "content"
	ChunkToolCall   = "tool_call"
	ChunkToolResult = "tool_result"
	ChunkSource     = "source"
	ChunkDone       = "done"
	ChunkError      = "error"

	// Librarian-only chunk types.
	ChunkSummary  = "summary"
	ChunkCacheHit = "cache_hit"
	ChunkIndex    = "index"
)

// Citation points a streamed answer back at the material it drew on.
type Citation struct {
	Path       string  `json:"path"`
	SourceType string  `json:"source_type"`
	Line       int     `json:"line,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Chunk is one SSE event on an agent stream. Type discriminates which
// payload fields are set.
type Chunk struct {
	Type       string         `json:"type"`
	Content    string         `json:"content,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	Source     *Citation      `json:"source,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	ModelUsed  string         `json:"model_used,omitempty"`
	FromCache  bool           `json:"from_cache,omitempty"`
	CachePath  string         `json:"cache_path,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}
