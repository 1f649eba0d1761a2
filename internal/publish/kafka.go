// Package publish fans dashboard reports out to message brokers. Every
// publisher sends the report JSON and is used as a dashboard presenter.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes reports to a topic keyed by device id, so the reports of one
// device stay ordered within a partition.
type Kafka struct {
	log    *slog.Logger
	writer kafkaWriter
	topic  string
}

func NewKafka(log *slog.Logger, cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}

	return newKafka(log, w, cfg.Topic), nil
}

func newKafka(log *slog.Logger, w kafkaWriter, topic string) *Kafka {
	return &Kafka{
		log:    log.With(slog.String("component", "kafka"), slog.String("topic", topic)),
		writer: w,
		topic:  topic,
	}
}

func (k *Kafka) Name() string {
	return "kafka"
}

func (k *Kafka) Present(ctx context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(report.DeviceID),
		Value: data,
		Time:  report.GeneratedAt,
		Headers: []kafka.Header{
			{Key: "report_id", Value: []byte(report.ID)},
			{Key: "no_data", Value: []byte(strconv.FormatBool(report.NoData))},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", k.topic, err)
	}

	k.log.Debug("report published", slog.String("report_id", report.ID))
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
