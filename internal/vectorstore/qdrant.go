package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
	"github.com/asepsopiyan/keris-lite/internal/model"
)

var ErrCollectionNotFound = errors.New("collection does not exist")

// upsertBatchSize keeps each points request well below Qdrant's request
// body limit.
const upsertBatchSize = 256

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a REST client for a single Qdrant collection.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger
}

func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) *QdrantStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		timeout:    cfg.Timeout,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("collection", cfg.Collection),
	}
}

func (s *QdrantStore) Collection() string {
	return s.collection
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return apperr.InvalidInput("qdrant.ensure", fmt.Sprintf("invalid dimension %d", dimension))
	}
	info, err := s.CollectionStats(ctx)
	if err != nil {
		return err
	}
	if info != nil {
		if info.Dimension != dimension {
			s.logger.Warn("existing collection has a different dimension",
				"collection_dimension", info.Dimension, "vector_dimension", dimension)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": DistanceCosine,
		},
	}
	createErr := s.do(ctx, "qdrant.create", http.MethodPut, s.collectionPath(), body, nil)
	if createErr == nil {
		s.logger.Info("collection created", "dimension", dimension)
		return nil
	}

	// Another caller may have created it between the check and the create.
	info, err = s.CollectionStats(ctx)
	if err == nil && info != nil {
		s.logger.Debug("collection created concurrently", "error", createErr)
		return nil
	}
	return createErr
}

func (s *QdrantStore) Upsert(ctx context.Context, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := batchDimension("qdrant.upsert", points)
	if err != nil {
		return err
	}
	info, err := s.CollectionStats(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		return apperr.StoreUnavailable("qdrant.upsert", fmt.Errorf("%s: %w", s.collection, ErrCollectionNotFound))
	}
	if info.Dimension != 0 && info.Dimension != dim {
		return apperr.DimensionMismatch("qdrant.upsert", info.Dimension, dim)
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		body := map[string]any{"points": points[start:end]}
		err = s.do(ctx, "qdrant.upsert", http.MethodPut, s.collectionPath()+"/points?wait=true", body, nil)
		if errors.Is(err, errNotFound) {
			return apperr.StoreUnavailable("qdrant.upsert", fmt.Errorf("%s: %w", s.collection, ErrCollectionNotFound))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, threshold float64, filters map[string]any) ([]model.SearchHit, error) {
	if err := validateSearch("qdrant.search", vector, limit); err != nil {
		return nil, err
	}
	body := map[string]any{
		"vector":          vector,
		"limit":           limit * overFetch,
		"score_threshold": threshold,
		"with_payload":    true,
		"with_vector":     false,
	}
	if filter := buildFilter(filters); filter != nil {
		body["filter"] = filter
	}

	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload model.Payload   `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, "qdrant.search", http.MethodPost, s.collectionPath()+"/points/search", body, &resp)
	if errors.Is(err, errNotFound) {
		// Nothing has been indexed yet.
		return []model.SearchHit{}, nil
	}
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, model.SearchHit{
			ID:      pointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return rankHits(hits, limit, threshold), nil
}

func (s *QdrantStore) CollectionStats(ctx context.Context) (*model.CollectionInfo, error) {
	var resp struct {
		Result struct {
			Status       string `json:"status"`
			VectorsCount *int64 `json:"vectors_count"`
			PointsCount  *int64 `json:"points_count"`
			Config       struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, "qdrant.stats", http.MethodGet, s.collectionPath(), nil, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := resp.Result
	info := &model.CollectionInfo{
		Name:      s.collection,
		Dimension: r.Config.Params.Vectors.Size,
		Distance:  r.Config.Params.Vectors.Distance,
		Status:    r.Status,
	}
	if r.PointsCount != nil {
		info.PointsCount = *r.PointsCount
	}
	// Recent Qdrant versions dropped vectors_count; fall back to points.
	if r.VectorsCount != nil {
		info.VectorsCount = *r.VectorsCount
	} else {
		info.VectorsCount = info.PointsCount
	}
	return info, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context) bool {
	var resp struct {
		Result bool `json:"result"`
	}
	if err := s.do(ctx, "qdrant.delete", http.MethodDelete, s.collectionPath(), nil, &resp); err != nil {
		if !errors.Is(err, errNotFound) {
			s.logger.Error("delete collection failed", "error", err)
		}
		return false
	}
	return resp.Result
}

func (s *QdrantStore) collectionPath() string {
	return "/collections/" + url.PathEscape(s.collection)
}

var errNotFound = errors.New("not found")

// do sends one request under the store timeout. Transport failures and
// 5xx responses are StoreUnavailable, a 404 wraps errNotFound, and a
// rejected vector size is DimensionMismatch.
func (s *QdrantStore) do(ctx context.Context, op, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request failed: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request failed: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.StoreUnavailable(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.StoreUnavailable(op, fmt.Errorf("read response failed: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, s.collection, errNotFound)
	case resp.StatusCode >= 300:
		detail := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(raw)), "dimension") {
			return apperr.Wrap(apperr.KindDimensionMismatch, op, detail)
		}
		return apperr.StoreUnavailable(op, detail)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.StoreUnavailable(op, fmt.Errorf("parse response json failed: %w", err))
	}
	return nil
}

func buildFilter(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filters[k]},
		})
	}
	return map[string]any{"must": must}
}

// pointID renders a Qdrant id, which is either a UUID string or an integer.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
