package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/orneryd/kgraph/pkg/kgraph"
	"github.com/orneryd/kgraph/pkg/storage"
)

// validate checks request bodies. Field names in errors use the json tag.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// =============================================================================
// Request and response bodies
// =============================================================================

type createNodeRequest struct {
	Name        string           `json:"name" validate:"required"`
	NodeType    storage.NodeKind `json:"node_type" validate:"required"`
	Path        string           `json:"path,omitempty"`
	Language    string           `json:"language,omitempty"`
	Description string           `json:"description,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

type createEdgeRequest struct {
	SourceID string           `json:"source_id" validate:"required,uuid"`
	TargetID string           `json:"target_id" validate:"required,uuid"`
	EdgeType storage.EdgeKind `json:"edge_type" validate:"required"`
	Weight   *float64         `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1e12"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

type pathRequest struct {
	SourceID string `json:"source_id" validate:"required,uuid"`
	TargetID string `json:"target_id" validate:"required,uuid"`
	MaxDepth *int   `json:"max_depth,omitempty" validate:"omitempty,gte=0"`
}

type neighborsRequest struct {
	NodeID    string             `json:"node_id" validate:"required,uuid"`
	EdgeTypes []storage.EdgeKind `json:"edge_types,omitempty"`
	Direction storage.Direction  `json:"direction,omitempty"`
	Depth     *int               `json:"depth,omitempty" validate:"omitempty,gte=0"`
}

type searchRequest struct {
	Query     string             `json:"query"`
	NodeTypes []storage.NodeKind `json:"node_types,omitempty"`
	Language  string             `json:"language,omitempty"`
	Limit     *int               `json:"limit,omitempty" validate:"omitempty,gte=0"`
}

type nodeResponse struct {
	ID   storage.NodeID `json:"id"`
	Node *storage.Node  `json:"node"`
}

type edgeResponse struct {
	ID   storage.EdgeID `json:"id"`
	Edge *storage.Edge  `json:"edge"`
}

type deleteResponse struct {
	Status string         `json:"status"`
	ID     storage.NodeID `json:"id"`
}

type nodeListResponse struct {
	Nodes []*storage.Node `json:"nodes"`
	Count int             `json:"count"`
}

type edgeListResponse struct {
	Edges []*kgraph.EdgeWithNodes `json:"edges"`
	Count int                     `json:"count"`
}

type neighborsResponse struct {
	Neighbors []*storage.Node `json:"neighbors"`
	Count     int             `json:"count"`
}

type searchResponse struct {
	Results []*storage.Node `json:"results"`
	Count   int             `json:"count"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "knowledge-graph",
	})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.ListNodes(r.Context())
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nodeListResponse{Nodes: nodes, Count: len(nodes)})
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	node, err := s.db.CreateNode(r.Context(), kgraph.NodeInput{
		Name:        req.Name,
		Kind:        req.NodeType,
		Path:        req.Path,
		Language:    req.Language,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, nodeResponse{ID: node.ID, Node: node})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	details, err := s.db.GetNode(r.Context(), id)
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.db.DeleteNode(r.Context(), id); err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deleteResponse{Status: "deleted", ID: id})
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := s.db.ListEdges(r.Context())
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, edgeListResponse{Edges: edges, Count: len(edges)})
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var req createEdgeRequest
	if !s.decode(w, r, &req) {
		return
	}

	edge, err := s.db.CreateEdge(r.Context(), kgraph.EdgeInput{
		SourceID: storage.NodeID(req.SourceID),
		TargetID: storage.NodeID(req.TargetID),
		Kind:     req.EdgeType,
		Weight:   req.Weight,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, edgeResponse{ID: edge.ID, Edge: edge})
}

func (s *Server) handleFindPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}

	q := kgraph.PathQuery{
		SourceID: storage.NodeID(req.SourceID),
		TargetID: storage.NodeID(req.TargetID),
	}
	if req.MaxDepth != nil {
		if *req.MaxDepth > s.config.MaxDepth {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("max_depth must be at most %d", s.config.MaxDepth))
			return
		}
		q.MaxDepth = *req.MaxDepth
	}

	res, err := s.db.FindPath(r.Context(), q)
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFindNeighbors(w http.ResponseWriter, r *http.Request) {
	var req neighborsRequest
	if !s.decode(w, r, &req) {
		return
	}

	depth := s.config.DefaultDepth
	if req.Depth != nil {
		depth = *req.Depth
	}
	if depth > s.config.MaxDepth {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("depth must be at most %d", s.config.MaxDepth))
		return
	}

	nodes, err := s.db.FindNeighbors(r.Context(), kgraph.NeighborQuery{
		NodeID:    storage.NodeID(req.NodeID),
		EdgeKinds: req.EdgeTypes,
		Direction: req.Direction,
		Depth:     depth,
	})
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, neighborsResponse{Neighbors: nodes, Count: len(nodes)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	limit := s.config.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit > s.config.MaxLimit {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be at most %d", s.config.MaxLimit))
		return
	}

	nodes, err := s.db.Search(r.Context(), kgraph.SearchQuery{
		Query:     req.Query,
		NodeKinds: req.NodeTypes,
		Language:  req.Language,
		Limit:     limit,
	})
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Results: nodes, Count: len(nodes)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// Helpers
// =============================================================================

// pathID reads the {id} URL parameter. Identifiers are UUIDs; anything else
// is rejected with 400 before touching the graph.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (storage.NodeID, bool) {
	raw := chi.URLParam(r, "id")
	if err := uuid.Validate(raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid node id")
		return "", false
	}
	return storage.NodeID(raw), true
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := s.readJSON(r, v); err != nil {
		msg := "Invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		s.writeError(w, http.StatusBadRequest, msg)
		return false
	}
	if err := validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// writeDBError maps facade errors to status codes.
func (s *Server) writeDBError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kgraph.ErrNodeNotFound):
		s.writeError(w, http.StatusNotFound, "Node not found")
	case errors.Is(err, kgraph.ErrUnknownEndpoint):
		s.writeError(w, http.StatusBadRequest, "Source or target node not found")
	case errors.Is(err, kgraph.ErrNoPath):
		s.writeError(w, http.StatusNotFound, "No path found")
	case errors.Is(err, kgraph.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, kgraph.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) readJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, map[string]string{"error": message})
}
