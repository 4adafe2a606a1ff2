package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
)

// MessageQueue is the broker interface used by the upload pipeline.
type MessageQueue interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
	EnsureExchange(exchangeName, exchangeType string, durable bool) error
	EnsureQueue(queueName string, durable bool) error
	BindQueue(queueName, exchangeName, routingKey string) error
	Close() error
}

var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ provides message queue functionality over a pooled channel set.
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool
	queueMap     map[string]bool
	bindingMap   map[string]bool // key format: "exchange:queue:routingKey"
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ connects to the broker and prepares the channel pool.
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rabbitmq config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ (%s): %w", cfg.URL, err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
	}

	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, chErr := conn.Channel()
			if chErr != nil {
				logger.Error().Err(chErr).Msg("Failed to open RabbitMQ channel")
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("cannot open a RabbitMQ channel")
	}
	mq.putChannel(testCh)

	logger.Info().Str("url", cfg.URL).Msg("Connected to RabbitMQ")
	return mq, nil
}

func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to open replacement RabbitMQ channel")
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close closes the connection and all pooled channels with it.
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange declares an exchange once per process.
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange name is required")
	}
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("refusing to declare the default exchange %q", exchangeName)
	}
	if _, exists := r.exchangeMap[exchangeName]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("cannot get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	logger.Debug().Str("exchange", exchangeName).Str("type", exchangeType).Msg("Exchange declared")
	return nil
}

// EnsureQueue declares a queue, verifying passively when it was already
// declared by this process.
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if _, exists := r.queueMap[queueName]; exists {
		ch := r.getChannel()
		if ch == nil {
			return fmt.Errorf("cannot get RabbitMQ channel")
		}
		defer r.putChannel(ch)

		// Passive declare fails when the queue disappeared or its
		// parameters drifted; drop the cache entry so the next call
		// re-declares it.
		_, err := ch.QueueDeclarePassive(queueName, durable, false, false, false, nil)
		if err != nil {
			delete(r.queueMap, queueName)
			return fmt.Errorf("passive declare of queue %q failed: %w", queueName, err)
		}
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("cannot get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(queueName, durable, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	r.queueMap[queueName] = true
	logger.Debug().Str("queue", queueName).Msg("Queue declared")
	return nil
}

// BindQueue binds a queue to an exchange once per process.
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)
	if _, exists := r.bindingMap[bindingKey]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("cannot get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue to exchange: %w", err)
	}

	r.bindingMap[bindingKey] = true
	logger.Debug().
		Str("queue", queueName).
		Str("exchange", exchangeName).
		Str("routing_key", routingKey).
		Msg("Queue bound to exchange")
	return nil
}

// PublishMessage publishes raw bytes to an exchange.
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("cannot get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON marshals data and publishes it.
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// StartConsumer consumes a queue until the returned channel is closed.
// The handler returns true to ack; false nacks with requeue.
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("cannot get RabbitMQ channel")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // consumer tag, server-generated
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		defer r.putChannel(ch)
		defer logger.Info().Str("queue", queueName).Msg("RabbitMQ consumer stopped")

		logger.Info().Str("queue", queueName).Int("prefetch", prefetchCount).Msg("RabbitMQ consumer started")

		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					logger.Warn().Str("queue", queueName).Msg("RabbitMQ channel closed")
					return
				}
				if handler(delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						logger.Error().Err(err).Msg("Failed to ack message")
					}
				} else {
					if err := delivery.Nack(false, true); err != nil {
						logger.Error().Err(err).Msg("Failed to nack message")
					}
				}
			}
		}
	}()

	return stopCh, nil
}
