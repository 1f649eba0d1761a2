package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/speedwagon-io/soilwatch/internal/config"
)

// GCS uploads to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCS{client: client, bucket: cfg.Bucket}, nil
}

func (g *GCS) Name() string {
	return "gcs"
}

func (g *GCS) Upload(ctx context.Context, name string, r io.Reader, _ int64, contentType string) error {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	_, copyErr := io.Copy(w, r)
	// Close finalizes the object and must run even after a failed copy.
	closeErr := w.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to stream object %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize object %s: %w", name, closeErr)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
