package vectorstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/asepsopiyan/keris-lite/internal/model"
)

// fakeQdrant implements the subset of the Qdrant REST API the store uses.
// Search ignores score_threshold and returns the top "limit" candidates so
// client-side filtering is exercised.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	creates     atomic.Int32
	upserts     atomic.Int32
	lastSearch  map[string]any
}

type fakeCollection struct {
	size   int
	points map[string]model.Point
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]*fakeCollection{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]

	f.mu.Lock()
	defer f.mu.Unlock()
	col := f.collections[name]

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if col == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": map[string]any{"error": "Not found"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{
			"status":       "green",
			"points_count": len(col.points),
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": col.size, "distance": "Cosine"},
			}},
		}})
	case len(parts) == 2 && r.Method == http.MethodPut:
		f.creates.Add(1)
		if col != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"status": map[string]any{"error": "already exists"}})
			return
		}
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: map[string]model.Point{}}
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	case len(parts) == 2 && r.Method == http.MethodDelete:
		if col == nil {
			writeJSON(w, http.StatusOK, map[string]any{"result": false})
			return
		}
		delete(f.collections, name)
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		f.upserts.Add(1)
		if col == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{})
			return
		}
		if r.URL.Query().Get("wait") != "true" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": map[string]any{"error": "wait required"}})
			return
		}
		var body struct {
			Points []model.Point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			if len(p.Vector) != col.size {
				writeJSON(w, http.StatusBadRequest, map[string]any{"status": map[string]any{"error": "Vector dimension error"}})
				return
			}
			col.points[p.ID] = p
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"status": "completed"}})
	case len(parts) == 4 && parts[2] == "points" && parts[3] == "search":
		if col == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{})
			return
		}
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
			Filter *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value any `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		raw := map[string]any{}
		dec := json.NewDecoder(r.Body)
		_ = dec.Decode(&raw)
		f.lastSearch = raw
		encoded, _ := json.Marshal(raw)
		_ = json.Unmarshal(encoded, &body)

		filters := map[string]any{}
		if body.Filter != nil {
			for _, m := range body.Filter.Must {
				filters[m.Key] = m.Match.Value
			}
		}
		type scored struct {
			ID      string        `json:"id"`
			Score   float64       `json:"score"`
			Payload model.Payload `json:"payload"`
		}
		var result []scored
		for _, p := range col.points {
			if !matchesFilters(p.Payload, filters) {
				continue
			}
			result = append(result, scored{ID: p.ID, Score: CosineSimilarity(body.Vector, p.Vector), Payload: p.Payload})
		}
		sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
		if len(result) > body.Limit {
			result = result[:body.Limit]
		}
		// Worst first, so the client has to re-sort.
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQdrant) pointCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if col := f.collections[name]; col != nil {
		return len(col.points)
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
