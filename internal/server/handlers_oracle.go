package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/untoldecay/LoreVault/internal/oracle"
	"github.com/untoldecay/LoreVault/internal/types"
)

type oracleRequest struct {
	Question  string `json:"question"`
	Project   string `json:"project"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

func (r oracleRequest) toQuery() (oracle.QueryRequest, error) {
	if strings.TrimSpace(r.Question) == "" {
		return oracle.QueryRequest{}, types.NewError(types.KindValidation, "question is required")
	}
	return oracle.QueryRequest{
		Question:  r.Question,
		Project:   r.Project,
		Model:     r.Model,
		MaxTokens: r.MaxTokens,
	}, nil
}

// handleOracle runs a query to completion and returns the assembled
// answer in one response.
func (s *Server) handleOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	query, err := req.toQuery()
	if err != nil {
		writeError(w, err)
		return
	}

	var (
		answer     strings.Builder
		sources    []oracle.Citation
		tokensUsed int
		modelUsed  string
	)
	for chunk := range s.oracle.Query(r.Context(), tenantFrom(r.Context()), query) {
		switch chunk.Type {
		case oracle.ChunkContent:
			answer.WriteString(chunk.Content)
		case oracle.ChunkSource:
			if chunk.Source != nil {
				sources = append(sources, *chunk.Source)
			}
		case oracle.ChunkDone:
			tokensUsed = chunk.TokensUsed
			modelUsed = chunk.ModelUsed
		case oracle.ChunkError:
			writeError(w, types.NewError(types.KindBadGateway, "%s", chunk.Content))
			return
		}
	}
	if sources == nil {
		sources = []oracle.Citation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":      answer.String(),
		"sources":     sources,
		"tokens_used": tokensUsed,
		"model_used":  modelUsed,
	})
}

// handleOracleStream relays the chunk stream as SSE, one JSON object
// per event, flushed as produced.
func (s *Server) handleOracleStream(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	query, err := req.toQuery()
	if err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, types.NewError(types.KindInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range s.oracle.Query(r.Context(), tenantFrom(r.Context()), query) {
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(payload); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleOracleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.oracle.Cancel(tenantFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleHistory returns the exchanges on the active tree's path from
// root to HEAD, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	project := r.URL.Query().Get("project")

	rootID, err := s.index.GetActiveTreeID(ctx, tenant, project)
	if err != nil {
		writeError(w, err)
		return
	}
	exchanges := []types.ConversationNode{}
	if rootID != "" {
		nodeIDs, err := s.index.PathToHead(ctx, tenant, rootID)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, nodeID := range nodeIDs {
			node, err := s.index.GetNode(ctx, tenant, nodeID)
			if err != nil {
				writeError(w, err)
				return
			}
			if node.IsRoot {
				continue
			}
			exchanges = append(exchanges, *node)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root_id":   rootID,
		"exchanges": exchanges,
	})
}

// handleClearHistory drops the active tree for the project.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	rootID, err := s.index.GetActiveTreeID(ctx, tenant, r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rootID == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": false})
		return
	}
	if err := s.index.DeleteTree(ctx, tenant, rootID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleListTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := s.index.GetTrees(r.Context(), tenantFrom(r.Context()), r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, err)
		return
	}
	if trees == nil {
		trees = []types.ConversationTree{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trees": trees})
}

func (s *Server) handleCreateTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project  string `json:"project"`
		Label    string `json:"label"`
		MaxNodes int    `json:"max_nodes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MaxNodes <= 0 {
		req.MaxNodes = types.DefaultMaxNodes
	}
	tree, err := s.index.CreateTree(r.Context(), tenantFrom(r.Context()), req.Project, req.Label, req.MaxNodes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tree)
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.index.GetTree(r.Context(), tenantFrom(r.Context()), r.PathValue("rootID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.index.DeleteTree(r.Context(), tenantFrom(r.Context()), r.PathValue("rootID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID string `json:"node_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.NodeID == "" {
		writeError(w, types.NewError(types.KindValidation, "node_id is required"))
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	rootID := r.PathValue("rootID")
	if err := s.index.Checkout(ctx, tenant, rootID, req.NodeID); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.index.GetTree(ctx, tenant, rootID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleUpdateNode sets a node's label and/or checkpoint flag.
// Checkpointed nodes survive pruning even off the HEAD path.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label        *string `json:"label"`
		IsCheckpoint *bool   `json:"is_checkpoint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Label == nil && req.IsCheckpoint == nil {
		writeError(w, types.NewError(types.KindValidation, "label or is_checkpoint is required"))
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	nodeID := r.PathValue("nodeID")
	if err := s.index.UpdateNode(ctx, tenant, nodeID, req.Label, req.IsCheckpoint); err != nil {
		writeError(w, err)
		return
	}
	node, err := s.index.GetNode(ctx, tenant, nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleActivateTree makes the tree the project's active one, so the
// next oracle query continues that conversation.
func (s *Server) handleActivateTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	rootID := r.PathValue("rootID")
	if err := s.index.SetActiveTree(ctx, tenant, rootID); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.index.GetTree(ctx, tenant, rootID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed, remaining, err := s.index.PruneTree(r.Context(), tenantFrom(r.Context()), r.PathValue("rootID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed, "remaining": remaining})
}
