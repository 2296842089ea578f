package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/siherrmann/securerag/model"
)

// DialAMQP connects to the broker and checks that a channel can be opened.
func DialAMQP(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	_ = ch.Close()

	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func declareTraceQueue(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	return nil
}

// AMQPPublisher is a TraceWriter that publishes traces as persistent JSON messages
// to a durable queue. An AMQPConsumer writes them to the store.
type AMQPPublisher struct {
	conn      *amqp.Connection
	queueName string
}

// NewAMQPPublisher creates a publisher for queueName on conn.
func NewAMQPPublisher(conn *amqp.Connection, queueName string) *AMQPPublisher {
	return &AMQPPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// InsertTrace publishes the trace.
func (p *AMQPPublisher) InsertTrace(ctx context.Context, trace *model.RetrievalTrace) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareTraceQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal trace payload failed: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    trace.ID.String(),
			Timestamp:    trace.CreatedAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish trace failed: %w", err)
	}
	return nil
}

// AMQPConsumer reads traces from the queue and persists them through a TraceWriter.
// Messages are acknowledged after the write, undecodable messages are rejected without requeue.
type AMQPConsumer struct {
	conn      *amqp.Connection
	writer    TraceWriter
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAMQPConsumer creates a consumer for queueName on conn.
func NewAMQPConsumer(conn *amqp.Connection, writer TraceWriter, queueName string, logger *slog.Logger) *AMQPConsumer {
	return &AMQPConsumer{
		conn:      conn,
		writer:    writer,
		queueName: queueName,
		logger:    logger,
	}
}

// Start begins consuming in a background goroutine. Calling Start twice is a no-op.
func (c *AMQPConsumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open consumer channel failed: %w", err)
	}

	if err := declareTraceQueue(ch, c.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		c.queueName,
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

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-consumerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.handle(consumerCtx, d)
			}
		}
	}()

	c.logger.Info("Started trace consumer", slog.String("queue", c.queueName))

	return nil
}

func (c *AMQPConsumer) handle(ctx context.Context, d amqp.Delivery) {
	trace := &model.RetrievalTrace{}
	if err := json.Unmarshal(d.Body, trace); err != nil {
		c.logger.Error("Failed to decode trace message", slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	if err := c.writer.InsertTrace(ctx, trace); err != nil {
		c.logger.Error("Failed to persist trace", slog.String("trace_id", trace.ID.String()), slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

// Close stops consuming and waits for the in-flight message.
func (c *AMQPConsumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
