package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type jobMessage struct {
	StageID string `json:"stage_id"`
}

// consumeChannel is the consuming half of an *amqp.Channel.
type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPQueue is a RabbitMQ backend: one durable queue, persistent messages,
// manual acknowledgement. Consuming starts on the first Next, so processes
// that only publish (an API without workers) never hold deliveries.
type AMQPQueue struct {
	conn      *amqp.Connection
	publishCh *amqp.Channel
	queueName string
	prefetch  int
	logger    *slog.Logger

	publishMu sync.Mutex

	consumeMu    sync.Mutex
	openConsumer func() (consumeChannel, error)
	consumeCh    consumeChannel
	deliveries   <-chan amqp.Delivery
}

// DialAMQP connects to url and declares the queue. prefetch bounds the
// unacknowledged deliveries once this process starts consuming.
func DialAMQP(url, queueName string, prefetch int, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to connect: %w", err)
	}
	q, err := newAMQPQueue(conn, queueName, prefetch, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

func newAMQPQueue(conn *amqp.Connection, queueName string, prefetch int, logger *slog.Logger) (*AMQPQueue, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	publishCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to open publish channel: %w", err)
	}

	if _, err := publishCh.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("amqp: failed to declare queue %q: %w", queueName, err)
	}

	return &AMQPQueue{
		conn:      conn,
		publishCh: publishCh,
		queueName: queueName,
		prefetch:  prefetch,
		logger:    logger.With("component", "amqp-queue"),
		openConsumer: func() (consumeChannel, error) {
			return conn.Channel()
		},
	}, nil
}

// consume returns the delivery channel, opening the consumer on first use.
func (q *AMQPQueue) consume() (<-chan amqp.Delivery, error) {
	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}

	ch, err := q.openConsumer()
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to open consume channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp: failed to set qos: %w", err)
	}
	deliveries, err := ch.Consume(
		q.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp: failed to consume %q: %w", q.queueName, err)
	}
	q.logger.Info("consuming", "queue", q.queueName, "prefetch", q.prefetch)
	q.consumeCh = ch
	q.deliveries = deliveries
	return deliveries, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, stageID string) error {
	body, err := json.Marshal(jobMessage{StageID: stageID})
	if err != nil {
		return fmt.Errorf("amqp: failed to encode job: %w", err)
	}

	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	err = q.publishCh.PublishWithContext(ctx,
		"",          // default exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: failed to publish stage %s: %w", stageID, err)
	}
	return nil
}

func (q *AMQPQueue) Next(ctx context.Context) (*Delivery, error) {
	deliveries, err := q.consume()
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil, ErrClosed
			}
			var msg jobMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil || msg.StageID == "" {
				q.logger.Warn("dropping malformed job message", "error", err)
				_ = d.Reject(false)
				continue
			}
			return NewDelivery(msg.StageID,
				func(context.Context) error { return d.Ack(false) },
				func(context.Context, string) error { return d.Nack(false, true) },
			), nil
		default:
			return nil, nil
		}
	}
}

func (q *AMQPQueue) Close() error {
	q.consumeMu.Lock()
	if q.consumeCh != nil {
		_ = q.consumeCh.Close()
	}
	q.consumeMu.Unlock()
	if q.publishCh != nil {
		_ = q.publishCh.Close()
	}
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
