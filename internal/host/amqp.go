package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// AppcastExchange is the topic exchange reports are published to.
	AppcastExchange = "moosbridge.appcasts"

	// AppcastRoutingPrefix prefixes the application name in routing keys.
	AppcastRoutingPrefix = "appcast."
)

// AMQPPublisher publishes reports to RabbitMQ.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

var _ ReportPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher connects to RabbitMQ and declares the appcast exchange.
func NewAMQPPublisher(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		AppcastExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("appcast publisher connected", "exchange", AppcastExchange)

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: AppcastExchange,
		logger:   logger,
	}, nil
}

// RoutingKey returns the routing key reports of app are published under.
func RoutingKey(app string) string {
	return AppcastRoutingPrefix + app
}

func (p *AMQPPublisher) PublishReport(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	routingKey := RoutingKey(report.App)
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    report.ID.String(),
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish report",
			"routing_key", routingKey,
			"error", err,
		)
		return err
	}

	p.logger.Debug("report published",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}

	p.logger.Info("appcast publisher closed")
	return nil
}
