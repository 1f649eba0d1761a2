package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

const mqttConnectTimeout = 10 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each report to <topic>/<device id>. Retained messages let a
// late subscriber see the latest report immediately.
type MQTT struct {
	log      *slog.Logger
	client   mqttClient
	topic    string
	qos      byte
	retained bool
}

func NewMQTT(log *slog.Logger, cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: failed to connect to %s: %w", cfg.Broker, err)
	}

	return newMQTT(log, c, cfg), nil
}

func newMQTT(log *slog.Logger, c mqttClient, cfg config.MQTTConfig) *MQTT {
	return &MQTT{
		log:      log.With(slog.String("component", "mqtt")),
		client:   c,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
	}
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Present(ctx context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	topic := m.topic + "/" + report.DeviceID
	token := m.client.Publish(topic, m.qos, m.retained, data)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	m.log.Debug("report published", slog.String("topic", topic), slog.String("report_id", report.ID))
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
