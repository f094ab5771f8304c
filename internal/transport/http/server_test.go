package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asepsopiyan/keris-lite/internal/ai"
	appsvc "github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
	"github.com/asepsopiyan/keris-lite/internal/config"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/vectorstore"
)

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type constGenerator struct{}

func (constGenerator) Generate(context.Context, []ai.ChatMessage) (string, error) {
	return "jawaban dari konteks", nil
}

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "keris-lite"
	cfg.App.Env = "test"
	cfg.App.GinMode = gin.TestMode
	cfg.Auth.JWTSecret = "router-secret"
	cfg.Ingest.Dir = t.TempDir()

	hash, err := appsvc.HashPassword("rahasia-sekali")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := vectorstore.NewMemoryStore("keris_docs")
	return &bootstrap.App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Ingest: appsvc.NewIngestService(constEmbedder{}, store, appsvc.IngestOptions{Logger: logger}),
		RAG: appsvc.NewRAGService(constEmbedder{}, store, constGenerator{}, appsvc.RetrievalOptions{
			ScoreThreshold: 0.6,
			Logger:         logger,
		}),
		Auth:      appsvc.NewAuthService("admin", hash, cfg.Auth.JWTSecret, time.Hour),
		StartedAt: time.Now(),
	}
}

func serve(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := serve(router, http.MethodPost, "/api/v1/auth/token", "", `{"username":"admin","password":"rahasia-sekali"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Token)
	return env.Data.Token
}

func TestHealthz(t *testing.T) {
	router := NewRouter(newTestApp(t))
	w := serve(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"vector_store"`)
	assert.NotContains(t, w.Body.String(), `"mysql"`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := NewRouter(newTestApp(t))

	for _, path := range []string{"/api/v1/collection", "/api/v1/admin/ingest-records"} {
		w := serve(router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := serve(router, http.MethodPost, "/api/v1/admin/reindex", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestThenAsk(t *testing.T) {
	app := newTestApp(t)
	router := NewRouter(app)
	ctx := context.Background()

	w := serve(router, http.MethodPost, "/api/v1/chat", "", `{"question":"apa itu keris?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), appsvc.DefaultNoResultsAnswer)

	require.NoError(t, app.Store.EnsureCollection(ctx, 2))
	require.NoError(t, app.Store.Upsert(ctx, []model.Point{{
		ID:      appsvc.PointID("keris.txt", 0),
		Vector:  []float32{1, 0},
		Payload: model.Payload{Text: "keris adalah senjata", File: "keris.txt", ChunkSize: 20},
	}}))

	w = serve(router, http.MethodPost, "/api/v1/chat", "", `{"question":"apa itu keris?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jawaban dari konteks")
	assert.Contains(t, w.Body.String(), `"file":"keris.txt"`)

	token := login(t, router)
	w = serve(router, http.MethodGet, "/api/v1/collection", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points_count":1`)

	w = serve(router, http.MethodPost, "/api/v1/admin/reindex", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info, err := app.Store.CollectionStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, info, "empty ingest dir leaves no collection behind")
}
