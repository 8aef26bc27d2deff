package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/internal/settlement"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
	"userbus/pkg/tracing"
)

const (
	brokerRabbitMQ      = "rabbitmq"
	rabbitDeliveryCount = "x-delivery-count"
	confirmTimeout      = 10 * time.Second
)

var (
	ErrPublishNacked   = errors.New("publish nacked by broker")
	ErrConfirmTimeout  = errors.New("publish confirm timed out")
	ErrPublisherClosed = errors.New("publisher channel closed")
)

// AMQPChannel is the subset of *amqp.Channel used to declare topology.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology holds the resolved exchange and queue names.
type Topology struct {
	Exchange    string
	Queue       string
	DLXExchange string
	DLQ         string
}

func NewTopology(cfg config.RabbitMQConfig) Topology {
	t := Topology{
		Exchange:    cfg.Exchange,
		Queue:       cfg.Queue,
		DLXExchange: cfg.DLXExchange,
		DLQ:         cfg.DLQ,
	}
	if t.Queue == "" {
		t.Queue = constants.DefaultQueueName
	}
	if t.Exchange == "" {
		t.Exchange = t.Queue
	}
	if t.DLXExchange == "" {
		t.DLXExchange = t.Queue + constants.DeadLetterExchangeSuffix
	}
	if t.DLQ == "" {
		t.DLQ = t.Queue + constants.DeadLetterSuffix
	}
	return t
}

// Declare creates the dead-letter exchange and queue first, then the quorum
// work queue pointing at them. Messages are routed by queue name.
func (t Topology) Declare(ch AMQPChannel) error {
	if err := ch.ExchangeDeclare(t.DLXExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq queue: %w", err)
	}
	if err := ch.QueueBind(t.DLQ, t.Queue, t.DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}

	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    t.DLXExchange,
		"x-dead-letter-routing-key": t.Queue,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(t.Queue, t.Queue, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// RabbitURL builds the AMQP connection string for cfg.
func RabbitURL(cfg config.RabbitMQConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.VHost,
	}
	if cfg.VHost == "" || cfg.VHost == "/" {
		u.Path = "/"
	}
	return u.String()
}

// confirmPublisher serializes publishes on one confirm-mode channel so each
// publish can wait for its own confirmation.
type confirmPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func newConfirmPublisher(conn *amqp.Connection) (*confirmPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &confirmPublisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *confirmPublisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	tag := p.ch.GetNextPublishSeqNo()
	if err := p.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", exchange, err)
	}
	err := waitForConfirm(ctx, p.confirms, tag)
	metrics.ObserveBrokerWriteDuration(brokerRabbitMQ, exchange, time.Since(start))
	if err == nil {
		metrics.ObserveBrokerMessageSize(brokerRabbitMQ, exchange, "out", len(msg.Body))
	}
	return err
}

func (p *confirmPublisher) close() error {
	return p.ch.Close()
}

// waitForConfirm waits for the confirmation of delivery tag. Confirmations
// with a lower tag arrived after their publish gave up waiting and are
// discarded.
func waitForConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64) error {
	timeout := time.NewTimer(confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case confirmed, ok := <-confirms:
			if !ok {
				return ErrPublisherClosed
			}
			if confirmed.DeliveryTag < tag {
				continue
			}
			if !confirmed.Ack {
				return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
			}
			return nil
		case <-timeout.C:
			return ErrConfirmTimeout
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}
	}
}

func publishing(ctx context.Context, headers map[string]string, body []byte) amqp.Publishing {
	table := make(amqp.Table, len(headers)+2)
	for k, v := range headers {
		table[k] = v
	}
	table = tracing.InjectAMQPHeaders(ctx, table)

	return amqp.Publishing{
		Headers:       table,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     headers[constants.HeaderMessageID],
		CorrelationId: headers[constants.HeaderCorrelationID],
		Timestamp:     time.Now(),
		Body:          body,
	}
}

type RabbitMQProducer struct {
	conn      *amqp.Connection
	publisher *confirmPublisher
	topology  Topology
	logger    logger.Logger
}

func NewRabbitMQProducer(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQProducer, error) {
	conn, err := amqp.Dial(RabbitURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	topology := NewTopology(cfg)
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = topology.Declare(ch)
	_ = ch.Close()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	pub, err := newConfirmPublisher(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQProducer{conn: conn, publisher: pub, topology: topology, logger: log}, nil
}

func (p *RabbitMQProducer) Publish(ctx context.Context, msg models.OutboundMessage) error {
	headers := outboundHeaders(msg, 1, time.Now())
	return p.publisher.publish(ctx, p.topology.Exchange, p.topology.Queue, publishing(ctx, headers, msg.Body))
}

func (p *RabbitMQProducer) Close() error {
	err := p.publisher.close()
	if closeErr := p.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// RabbitMQConsumer consumes the quorum work queue with a fixed worker pool.
// The broker holds unacknowledged deliveries, so redelivery is a nack with
// requeue and dead-lettering is an explicit publish to the DLX followed by an ack.
type RabbitMQConsumer struct {
	cfg         config.RabbitMQConfig
	sub         config.SubscriberConfig
	topology    Topology
	logger      logger.Logger
	serviceName string

	mu        sync.Mutex
	conn      *amqp.Connection
	publisher *confirmPublisher
}

func NewRabbitMQConsumer(cfg config.RabbitMQConfig, sub config.SubscriberConfig, log logger.Logger) *RabbitMQConsumer {
	return &RabbitMQConsumer{
		cfg:         cfg,
		sub:         sub,
		topology:    NewTopology(cfg),
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *RabbitMQConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, handler HandlerFunc) error {
	conn, err := amqp.Dial(RabbitURL(c.cfg))
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	pub, err := newConfirmPublisher(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.mu.Lock()
	c.conn, c.publisher = conn, pub
	c.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := c.topology.Declare(ch); err != nil {
		return err
	}

	prefetch := c.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	consumerTag := c.serviceName
	deliveries, err := ch.Consume(c.topology.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	c.logger.Infow("Started consuming",
		"queue", c.topology.Queue,
		"workers", workers,
		"prefetch", prefetch,
		"service_name", c.serviceName,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return ch.Cancel(consumerTag, false)
		case <-egCtx.Done():
			return conn.Close()
		case connErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if connErr != nil {
				return connErr
			}
			return nil
		}
	})

	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for d := range deliveries {
				if err := c.handle(egCtx, d, handler); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = eg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery, handler HandlerFunc) error {
	metrics.IncBrokerMessagesRead(brokerRabbitMQ, c.serviceName, c.topology.Queue)
	metrics.ObserveBrokerMessageSize(brokerRabbitMQ, c.topology.Queue, "in", len(d.Body))

	headers := stringHeaders(d.Headers)
	if headers[constants.HeaderMessageID] == "" && d.MessageId != "" {
		headers[constants.HeaderMessageID] = d.MessageId
	}
	if headers[constants.HeaderCorrelationID] == "" && d.CorrelationId != "" {
		headers[constants.HeaderCorrelationID] = d.CorrelationId
	}
	msg := inboundMessage(headers, d.Body, d.Timestamp)
	msg.DeliveryCount = rabbitDeliveryAttempt(d.Headers)

	msgCtx, span := tracing.StartMessageSpan(tracing.ExtractAMQPHeaders(ctx, d.Headers), "rabbitmq.consume", nil)
	defer span.End()
	msgCtx = logging.WithMessageID(msgCtx, msg.MessageID)
	msgCtx = logging.WithCorrelationID(msgCtx, msg.CorrelationID)
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	decision, err := invoke(msgCtx, handler, msg)
	if err != nil {
		c.logger.ErrorwCtx(msgCtx, "Message handler failed",
			"error", err,
			"delivery_count", msg.DeliveryCount,
		)
	}

	st := planSettlement(decision, err, msg.DeliveryCount, c.sub.MaxDeliveryCount, c.sub.LockDuration)
	switch st.kind {
	case stepComplete:
		return d.Ack(false)

	case stepDeadLetter:
		pub := publishing(msgCtx, deadLetterHeaders(headers, st.reason), d.Body)
		if err := c.publisher.publish(ctx, c.topology.DLXExchange, c.topology.Queue, pub); err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ",
				"error", err,
				"dlx", c.topology.DLXExchange,
			)
			return d.Nack(false, true)
		}
		metrics.IncDeadLetter(c.serviceName, c.topology.Queue, st.reason)
		c.logger.InfowCtx(msgCtx, "Message sent to DLQ",
			"dlq", c.topology.DLQ,
			"reason", st.reason,
		)
		return d.Ack(false)

	case stepRedeliver:
		action := settlement.Retry.String()
		if st.delay > 0 {
			action = settlement.None.String()
			if !sleepCtx(ctx, st.delay) {
				// the channel closes on shutdown and the broker requeues the delivery
				return nil
			}
		}
		metrics.IncRedelivery(c.serviceName, c.topology.Queue, action)
		return d.Nack(false, true)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.publisher != nil {
		err = c.publisher.close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if closeErr := c.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func stringHeaders(table amqp.Table) map[string]string {
	out := make(map[string]string, len(table))
	for k, v := range table {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		}
	}
	return out
}

// rabbitDeliveryAttempt is the 1-based attempt number. Quorum queues count
// previous returns in x-delivery-count and omit it on the first delivery.
func rabbitDeliveryAttempt(table amqp.Table) int {
	switch v := table[rabbitDeliveryCount].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	case int16:
		return int(v) + 1
	case uint8:
		return int(v) + 1
	}
	if n, err := strconv.Atoi(stringHeaders(table)[constants.HeaderDeliveryCount]); err == nil && n > 0 {
		return n
	}
	return 1
}
