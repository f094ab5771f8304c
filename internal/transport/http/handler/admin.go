package handler

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/platform/rabbitmq"
	"github.com/asepsopiyan/keris-lite/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB

var uploadExtensions = []string{".pdf", ".txt", ".md"}

// Ingester is satisfied by *app.IngestService.
type Ingester interface {
	IngestDir(ctx context.Context, dir string) (*app.IngestReport, error)
	Reindex(ctx context.Context, dir string) (*app.IngestReport, error)
	IngestDocument(ctx context.Context, name string, data []byte) app.FileResult
}

type CollectionReader interface {
	CollectionStats(ctx context.Context) (*model.CollectionInfo, error)
	Collection() string
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type RecordLister interface {
	List() ([]model.IngestRecord, error)
	GetBySourceFile(sourceFile string) (*model.IngestRecord, error)
}

type AdminConfig struct {
	Ingest     Ingester
	Collection CollectionReader
	// Publisher queues ingest and reindex jobs. When nil they run inline.
	Publisher JobPublisher
	// Records lists the ingest ledger; nil when MySQL is disabled.
	Records   RecordLister
	IngestDir string
}

type AdminHandler struct {
	cfg AdminConfig
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{cfg: cfg}
}

func (h *AdminHandler) CollectionStats(c *gin.Context) {
	info, err := h.cfg.Collection.CollectionStats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	if info == nil {
		response.OK(c, gin.H{"name": h.cfg.Collection.Collection(), "exists": false})
		return
	}
	response.OK(c, gin.H{"exists": true, "collection": info})
}

func (h *AdminHandler) Ingest(c *gin.Context) {
	h.run(c, model.IngestJobIngest)
}

func (h *AdminHandler) Reindex(c *gin.Context) {
	h.run(c, model.IngestJobReindex)
}

func (h *AdminHandler) run(c *gin.Context, kind string) {
	if h.cfg.Publisher != nil {
		job := rabbitmq.NewJob(kind, h.cfg.IngestDir)
		if err := h.cfg.Publisher.Publish(c.Request.Context(), job); err != nil {
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "enqueue ingest job failed")
			return
		}
		response.Accepted(c, job)
		return
	}

	var (
		report *app.IngestReport
		err    error
	)
	if kind == model.IngestJobReindex {
		report, err = h.cfg.Ingest.Reindex(c.Request.Context(), h.cfg.IngestDir)
	} else {
		report, err = h.cfg.Ingest.IngestDir(c.Request.Context(), h.cfg.IngestDir)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, report)
}

// Upload ingests a single multipart "file" without touching the ingest dir.
func (h *AdminHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !slices.Contains(uploadExtensions, ext) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only pdf, txt and md files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	res := h.cfg.Ingest.IngestDocument(c.Request.Context(), file.Filename, data)
	if res.Err != nil {
		response.FromError(c, res.Err)
		return
	}
	response.OK(c, res)
}

func (h *AdminHandler) IngestRecords(c *gin.Context) {
	if h.cfg.Records == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "ingest ledger is disabled")
		return
	}
	records, err := h.cfg.Records.List()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list ingest records failed")
		return
	}
	response.OK(c, records)
}

func (h *AdminHandler) IngestRecord(c *gin.Context) {
	if h.cfg.Records == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "ingest ledger is disabled")
		return
	}
	record, err := h.cfg.Records.GetBySourceFile(c.Param("file"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get ingest record failed")
		return
	}
	if record == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "no ingest record for this file")
		return
	}
	response.OK(c, record)
}
