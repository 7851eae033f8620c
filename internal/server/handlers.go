package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/models"
)

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	k := req.K
	if k <= 0 {
		k = s.config.Retrieval.DefaultK
	}
	if k > s.config.Retrieval.MaxK {
		k = s.config.Retrieval.MaxK
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", k))
	results, err := s.retrieval.Search(r.Context(), req.Query, k)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	if results == nil {
		results = []models.RetrievedChunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": results,
	})
}

type chunkRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleAddChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	id, err := s.store.Add(r.Context(), req.Text, req.Metadata)
	if err != nil {
		s.logger.Error("add chunk failed", zap.Error(err))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

type batchChunkRequest struct {
	Texts     []string            `json:"texts"`
	Metadatas []map[string]string `json:"metadatas,omitempty"`
}

func (s *Server) handleBatchAddChunks(w http.ResponseWriter, r *http.Request) {
	var req batchChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids, err := s.store.BatchAdd(r.Context(), req.Texts, req.Metadatas)
	if err != nil {
		s.logger.Error("batch add failed", zap.Error(err), zap.Int("stored", len(ids)))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"ids": ids, "count": len(ids)})
}

type ingestRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	count, err := s.ingestor.IngestText(r.Context(), req.Text, req.Metadata)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"chunks": count, "status": "ingested"})
}

type mapRequest struct {
	Label     string  `json:"label"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (s *Server) handleMapMeasurement(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = s.config.Normalizer.Threshold
	}
	result, err := s.normalizer.Map(r.Context(), req.Label, req.Threshold)
	if err != nil {
		s.logger.Error("measurement map failed", zap.Error(err), zap.String("label", req.Label))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"label": req.Label,
		"match": result,
	})
}

type mapBatchRequest struct {
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold,omitempty"`
}

func (s *Server) handleMapMeasurementBatch(w http.ResponseWriter, r *http.Request) {
	var req mapBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = s.config.Normalizer.Threshold
	}
	results, err := s.normalizer.MapBatchConcurrent(r.Context(), req.Labels, req.Threshold)
	if err != nil {
		s.logger.Error("measurement map batch failed", zap.Error(err))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	if results == nil {
		results = []*models.MatchResult{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"labels":  req.Labels,
		"matches": results,
	})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.normalizer.Mappings(),
	})
}

type updateCategoryRequest struct {
	Variants []string `json:"variants"`
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req updateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.normalizer.AddOrUpdateCategory(r.Context(), name, req.Variants); err != nil {
		s.logger.Error("update category failed", zap.Error(err), zap.String("category", name))
		s.respondError(w, statusFromError(err), err.Error())
		return
	}
	if s.taxStore != nil {
		if err := s.taxStore.SaveCategory(r.Context(), name, req.Variants); err != nil {
			s.logger.Warn("failed to persist category", zap.Error(err), zap.String("category", name))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"category": name, "status": "updated"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"chunks":     s.store.Len(),
		"dimensions": s.store.Dimensions(),
		"metric":     string(s.store.Metric()),
		"categories": s.normalizer.Categories(),
	}
	configInfo := map[string]interface{}{
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"max_chunk_size":       s.config.Ingest.MaxChunkSize,
		"chunks_path":          s.config.Store.ChunksPath,
		"vectors_path":         s.config.Store.VectorsPath,
		"normalizer_strategy":  s.config.Normalizer.Strategy,
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFromError maps the domain error taxonomy to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDependencyTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrDependencyUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
