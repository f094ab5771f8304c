package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
	"github.com/asepsopiyan/keris-lite/internal/chunker"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/pkg/pdfextract"
	"github.com/asepsopiyan/keris-lite/internal/vectorstore"
)

var defaultExtensions = []string{".pdf", ".txt", ".md"}

// Embedder is satisfied by *ai.Provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestLedger records the outcome of every ingested file.
type IngestLedger interface {
	Upsert(record *model.IngestRecord) error
	DeleteAll() error
}

type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Extensions   []string
	Ledger       IngestLedger
	Logger       *slog.Logger
}

type IngestService struct {
	embedder     Embedder
	store        vectorstore.Gateway
	ledger       IngestLedger
	chunkSize    int
	chunkOverlap int
	extensions   []string
	logger       *slog.Logger
}

func NewIngestService(embedder Embedder, store vectorstore.Gateway, opts IngestOptions) *IngestService {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = chunker.DefaultOverlap
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaultExtensions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	exts := make([]string, len(opts.Extensions))
	for i, e := range opts.Extensions {
		exts[i] = strings.ToLower(e)
	}
	return &IngestService{
		embedder:     embedder,
		store:        store,
		ledger:       opts.Ledger,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		extensions:   exts,
		logger:       opts.Logger,
	}
}

type FileResult struct {
	File      string `json:"file"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

type IngestReport struct {
	Files      []FileResult `json:"files"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Chunks     int          `json:"chunks"`
	DurationMS int64        `json:"duration_ms"`
}

func (r *IngestReport) add(res FileResult) {
	r.Files = append(r.Files, res)
	switch {
	case res.Err != nil:
		r.Failed++
	case res.Skipped:
		r.Skipped++
	default:
		r.Succeeded++
		r.Chunks += res.Chunks
	}
}

// ingestRun carries state shared by the files of one batch.
type ingestRun struct {
	ensured bool
}

// PointID derives the stable point id for a chunk of a source file.
func PointID(sourceFile string, ordinal int) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(sourceFile+":"+strconv.Itoa(ordinal))).String()
}

// ListSources returns the ingestible files directly under dir, sorted by name.
func (s *IngestService) ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read ingest dir failed: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(s.extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// IngestDir ingests every recognised file in dir, one at a time. A failing
// file is recorded and the batch moves on.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (*IngestReport, error) {
	paths, err := s.ListSources(dir)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ingest started", "dir", dir, "files", len(paths))
	return s.IngestFiles(ctx, paths)
}

func (s *IngestService) IngestFiles(ctx context.Context, paths []string) (*IngestReport, error) {
	started := time.Now()
	report := &IngestReport{Files: make([]FileResult, 0, len(paths))}
	run := &ingestRun{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.DurationMS = time.Since(started).Milliseconds()
			return report, err
		}
		report.add(s.ingestPath(ctx, run, path))
	}

	report.DurationMS = time.Since(started).Milliseconds()
	s.logger.Info("ingest finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"chunks", report.Chunks,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

func (s *IngestService) ingestPath(ctx context.Context, run *ingestRun, path string) FileResult {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return s.finish(FileResult{File: name, Err: apperr.DecodeFailure("read", err)}, "read")
	}
	return s.ingestDocument(ctx, run, name, data)
}

// IngestDocument runs one in-memory document through the pipeline. name is
// used both for decoding and as the source file recorded with each chunk.
func (s *IngestService) IngestDocument(ctx context.Context, name string, data []byte) FileResult {
	return s.ingestDocument(ctx, &ingestRun{}, filepath.Base(name), data)
}

func (s *IngestService) ingestDocument(ctx context.Context, run *ingestRun, name string, data []byte) FileResult {
	started := time.Now()
	res := FileResult{File: name}

	text, err := decodeDocument(name, data)
	if err != nil {
		res.Err = err
		return s.finish(res, "decode")
	}

	chunks, err := chunker.Chunk(text, s.chunkSize, s.chunkOverlap)
	if err != nil {
		res.Err = apperr.Wrap(apperr.KindInvalidInput, "chunk", err)
		return s.finish(res, "chunk")
	}
	if len(chunks) == 0 {
		res.Skipped = true
		return s.finish(res, "chunk")
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		res.Err = err
		return s.finish(res, "embed")
	}
	res.Dimension = len(vectors[0])

	if !run.ensured {
		if err := s.store.EnsureCollection(ctx, res.Dimension); err != nil {
			res.Err = err
			return s.finish(res, "ensure")
		}
		run.ensured = true
	}

	points := make([]model.Point, len(chunks))
	for i, text := range chunks {
		c := model.Chunk{ID: PointID(name, i), SourceFile: name, Ordinal: i, Text: text}
		points[i] = model.Point{ID: c.ID, Vector: vectors[i], Payload: c.Payload()}
	}
	if err := s.store.Upsert(ctx, points); err != nil {
		res.Err = err
		return s.finish(res, "upsert")
	}

	res.Chunks = len(points)
	s.logger.Info("file ingested", "file", name, "chunks", res.Chunks, "duration_ms", time.Since(started).Milliseconds())
	return s.finish(res, "done")
}

// finish logs failures and writes the ledger row.
func (s *IngestService) finish(res FileResult, stage string) FileResult {
	status := model.IngestStatusDone
	switch {
	case res.Err != nil:
		res.Error = res.Err.Error()
		status = model.IngestStatusFailed
		s.logger.Error("file ingest failed", "file", res.File, "stage", stage, "error", res.Err)
	case res.Skipped:
		status = model.IngestStatusSkipped
		s.logger.Warn("file has no text, skipped", "file", res.File)
	}

	if s.ledger != nil {
		record := &model.IngestRecord{
			SourceFile: res.File,
			Status:     status,
			Chunks:     res.Chunks,
			Dimension:  res.Dimension,
			Error:      res.Error,
		}
		if err := s.ledger.Upsert(record); err != nil {
			s.logger.Warn("record ingest ledger failed", "file", res.File, "error", err)
		}
	}
	return res
}

// Reindex drops the collection and ingests dir from scratch. It refuses to
// ingest when the delete failed and the old collection is still present.
func (s *IngestService) Reindex(ctx context.Context, dir string) (*IngestReport, error) {
	before, err := s.store.CollectionStats(ctx)
	if err != nil {
		return nil, err
	}
	if before != nil {
		s.logger.Info("collection before reindex",
			"name", before.Name,
			"vectors", before.VectorsCount,
			"points", before.PointsCount,
			"status", before.Status,
		)
	} else {
		s.logger.Info("collection absent before reindex", "name", s.store.Collection())
	}

	if !s.store.DeleteCollection(ctx) && before != nil {
		after, err := s.store.CollectionStats(ctx)
		if err != nil {
			return nil, err
		}
		if after != nil {
			return nil, apperr.New(apperr.KindStoreUnavailable, "reindex",
				fmt.Sprintf("collection %s could not be deleted", after.Name))
		}
	}

	if s.ledger != nil {
		if err := s.ledger.DeleteAll(); err != nil {
			s.logger.Warn("clear ingest ledger failed", "error", err)
		}
	}
	return s.IngestDir(ctx, dir)
}

func decodeDocument(name string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		text, err := pdfextract.ExtractBytes(data)
		if errors.Is(err, pdfextract.ErrNoText) {
			return "", nil
		}
		if err != nil {
			return "", apperr.DecodeFailure("decode.pdf", err)
		}
		return text, nil
	}

	if !utf8.Valid(data) {
		return "", apperr.New(apperr.KindDecodeFailure, "decode.text", "file is not valid UTF-8")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
