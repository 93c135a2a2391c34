package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/outreachly/outreachly-backend/internal/config"
)

const campaignQueueName = "campaign_jobs"

// RabbitMQQueue is the durable JobQueue used in production.
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex
	closed   bool
	stopChan chan struct{}
}

// NewRabbitMQQueue connects to RabbitMQ using the RABBITMQ_* environment
// settings and declares the durable campaign job queue.
func NewRabbitMQQueue() (*RabbitMQQueue, error) {
	host := config.GetEnv("RABBITMQ_HOST", "localhost")
	port := config.GetEnv("RABBITMQ_PORT", "5672")
	user := config.GetEnv("RABBITMQ_USER", "guest")
	pass := config.GetEnv("RABBITMQ_PASS", "guest")

	url := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		campaignQueueName, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logrus.Info("RabbitMQ job queue initialized")
	return &RabbitMQQueue{
		conn:     conn,
		channel:  channel,
		stopChan: make(chan struct{}),
	}, nil
}

// Publish enqueues a job as a persistent JSON message.
func (q *RabbitMQQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",                // exchange
		campaignQueueName, // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	logrus.Infof("Job published: %s %s", job.Kind, job.CampaignID)
	return nil
}

// StartConsumer delivers jobs to the handler on a background goroutine.
func (q *RabbitMQQueue) StartConsumer(handler Handler) error {
	msgs, err := q.channel.Consume(
		campaignQueueName, // queue
		"",                // consumer
		true,              // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,               // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logrus.Infof("RabbitMQ consumer started for %s queue", campaignQueueName)

	go func() {
		for {
			select {
			case <-q.stopChan:
				logrus.Info("RabbitMQ consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					logrus.Warn("RabbitMQ channel closed")
					return
				}

				var job Job
				if err := json.Unmarshal(msg.Body, &job); err != nil {
					logrus.Errorf("Failed to decode job message: %v", err)
					continue
				}
				if err := handler(context.Background(), job); err != nil {
					logrus.Errorf("Job %s %s failed: %v", job.Kind, job.CampaignID, err)
				}
			}
		}
	}()

	return nil
}

// Close stops the consumer and closes the AMQP channel and connection.
func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.stopChan)

	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			logrus.Errorf("Error closing channel: %v", err)
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			logrus.Errorf("Error closing connection: %v", err)
		}
	}
	return nil
}
