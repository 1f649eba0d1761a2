package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

// publishFunc sends one message and blocks until the server acknowledged it.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// PubSub publishes reports to a Google Cloud Pub/Sub topic.
type PubSub struct {
	log     *slog.Logger
	publish publishFunc
	stop    func() error
}

func NewPubSub(ctx context.Context, log *slog.Logger, cfg config.PubSubConfig) (*PubSub, error) {
	var opts []option.ClientOption
	if host := os.Getenv("PUBSUB_EMULATOR_HOST"); host != "" {
		opts = append(opts, option.WithEndpoint(host), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: failed to create client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)

	publish := func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return topic.Publish(ctx, msg).Get(ctx)
	}
	stop := func() error {
		topic.Stop()
		return client.Close()
	}

	return newPubSub(log.With(slog.String("topic", cfg.TopicID)), publish, stop), nil
}

func newPubSub(log *slog.Logger, publish publishFunc, stop func() error) *PubSub {
	return &PubSub{
		log:     log.With(slog.String("component", "pubsub")),
		publish: publish,
		stop:    stop,
	}
}

func (p *PubSub) Name() string {
	return "pubsub"
}

func (p *PubSub) Present(ctx context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	msgID, err := p.publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"device_id": report.DeviceID,
			"report_id": report.ID,
			"no_data":   strconv.FormatBool(report.NoData),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}

	p.log.Debug("report published", slog.String("message_id", msgID), slog.String("report_id", report.ID))
	return nil
}

func (p *PubSub) Close() error {
	if p.stop == nil {
		return nil
	}
	return p.stop()
}
