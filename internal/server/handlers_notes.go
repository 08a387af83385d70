package server

import (
	"net/http"
	"strconv"

	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/types"
)

const defaultSearchLimit = 20

// notePath extracts the {path...} wildcard. The mux has already
// percent-decoded it once; the vault layer validates it.
func notePath(r *http.Request) string {
	return r.PathValue("path")
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.notes.List(r.Context(), tenantFrom(r.Context()), r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []types.NoteSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": summaries})
}

type notePayload struct {
	Path      string         `json:"path"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata"`
	IfVersion *int64         `json:"if_version"`
}

// handleCreateNote is create-only: writing over an existing note is a
// conflict.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req notePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Path == "" {
		writeError(w, types.NewError(types.KindValidation, "path is required"))
		return
	}
	note, err := s.notes.Write(r.Context(), tenantFrom(r.Context()), req.Path, req.Body, req.Metadata,
		notes.WriteOptions{CreateOnly: true})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleReadNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.notes.Read(r.Context(), tenantFrom(r.Context()), notePath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req notePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	note, err := s.notes.Write(r.Context(), tenantFrom(r.Context()), notePath(r), req.Body, req.Metadata,
		notes.WriteOptions{IfVersion: req.IfVersion})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleRenameNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPath string `json:"new_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.NewPath == "" {
		writeError(w, types.NewError(types.KindValidation, "new_path is required"))
		return
	}
	note, err := s.notes.Move(r.Context(), tenantFrom(r.Context()), notePath(r), req.NewPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Delete(r.Context(), tenantFrom(r.Context()), notePath(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, types.NewError(types.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	results, err := s.index.Search(r.Context(), tenantFrom(r.Context()), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []types.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleBacklinks(w http.ResponseWriter, r *http.Request) {
	backlinks, err := s.index.Backlinks(r.Context(), tenantFrom(r.Context()), notePath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if backlinks == nil {
		backlinks = []types.Backlink{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": backlinks})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.index.Tags(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []types.TagCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := s.index.Graph(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleIndexHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.index.Health(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	count, err := s.notes.Rebuild(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"notes_indexed": count})
}
