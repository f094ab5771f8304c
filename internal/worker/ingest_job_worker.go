package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/platform/rabbitmq"
)

// JobRunner is satisfied by *app.IngestService.
type JobRunner interface {
	IngestDir(ctx context.Context, dir string) (*app.IngestReport, error)
	Reindex(ctx context.Context, dir string) (*app.IngestReport, error)
}

var errMalformedJob = errors.New("malformed ingest job")

// IngestJobWorker consumes ingest jobs one at a time. Jobs run sequentially
// so two ingests never write the same collection concurrently.
type IngestJobWorker struct {
	conn       *amqp.Connection
	runner     JobRunner
	queueName  string
	defaultDir string
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestJobWorker(conn *amqp.Connection, runner JobRunner, queueName, defaultDir string, logger *slog.Logger) *IngestJobWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestJobWorker{
		conn:       conn,
		runner:     runner,
		queueName:  queueName,
		defaultDir: defaultDir,
		logger:     logger.With("component", "ingest_worker"),
	}
}

func (w *IngestJobWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					// Malformed jobs and failed runs are dropped, not retried.
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("ingest worker started", "queue", w.queueName)
	return nil
}

// Handle decodes one job body and runs it to completion.
func (w *IngestJobWorker) Handle(ctx context.Context, body []byte) error {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.Error("decode ingest job failed", "error", err)
		return fmt.Errorf("%w: %v", errMalformedJob, err)
	}
	dir := job.Dir
	if dir == "" {
		dir = w.defaultDir
	}

	var (
		report *app.IngestReport
		err    error
	)
	switch job.Kind {
	case model.IngestJobIngest:
		report, err = w.runner.IngestDir(ctx, dir)
	case model.IngestJobReindex:
		report, err = w.runner.Reindex(ctx, dir)
	default:
		w.logger.Error("unknown ingest job kind", "job_id", job.ID, "kind", job.Kind)
		return fmt.Errorf("%w: kind %q", errMalformedJob, job.Kind)
	}
	if err != nil {
		w.logger.Error("ingest job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		return err
	}

	w.logger.Info("ingest job done",
		"job_id", job.ID,
		"kind", job.Kind,
		"dir", dir,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"chunks", report.Chunks,
	)
	return nil
}

func (w *IngestJobWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
