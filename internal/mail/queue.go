package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Envelope is the JSON message placed on the mail queue.
type Envelope struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// QueueMailer publishes envelopes to a RabbitMQ queue.
type QueueMailer struct {
	conn  *amqp091.Connection
	ch    *amqp091.Channel
	queue string
}

func NewQueueMailer(url, queue string) (*QueueMailer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &QueueMailer{conn: conn, ch: ch, queue: queue}, nil
}

func (m *QueueMailer) Send(ctx context.Context, to, subject, body string) error {
	envelope := Envelope{
		ID:      uuid.NewString(),
		To:      to,
		Subject: subject,
		Body:    body,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return m.ch.PublishWithContext(ctx, "", m.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    envelope.ID,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (m *QueueMailer) Close() {
	_ = m.ch.Close()
	_ = m.conn.Close()
}
