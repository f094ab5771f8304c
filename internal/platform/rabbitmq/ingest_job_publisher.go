package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/asepsopiyan/keris-lite/internal/model"
)

type IngestJobPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestJobPublisher(conn *amqp.Connection, queueName string) *IngestJobPublisher {
	return &IngestJobPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// NewJob fills in the id and request time of a job for dir.
func NewJob(kind, dir string) model.IngestJob {
	return model.IngestJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Dir:         dir,
		RequestedAt: time.Now().UTC(),
	}
}

func (p *IngestJobPublisher) Publish(ctx context.Context, job model.IngestJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal ingest job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    job.ID,
			Timestamp:    job.RequestedAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish ingest job failed: %w", err)
	}
	return nil
}
