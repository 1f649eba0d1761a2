package publish

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes reports to a durable topic exchange.
type AMQP struct {
	log        *slog.Logger
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
}

func NewAMQP(log *slog.Logger, cfg config.AMQPConfig) (*AMQP, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	a := newAMQP(log, ch, cfg.Exchange, cfg.RoutingKey)
	a.conn = conn
	return a, nil
}

func newAMQP(log *slog.Logger, ch amqpChannel, exchange, routingKey string) *AMQP {
	return &AMQP{
		log:        log.With(slog.String("component", "amqp")),
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (a *AMQP) Name() string {
	return "amqp"
}

func (a *AMQP) Present(ctx context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	err = a.channel.PublishWithContext(ctx,
		a.exchange,
		a.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    report.ID,
			Timestamp:    report.GeneratedAt,
			Headers:      amqp.Table{"device_id": report.DeviceID},
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", a.exchange, err)
	}

	a.log.Debug("report published", slog.String("report_id", report.ID))
	return nil
}

func (a *AMQP) Close() error {
	err := a.channel.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
