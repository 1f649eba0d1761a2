package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

type clientKey struct {
	databaseURL     string
	credentialsFile string
}

var (
	clientsMu sync.Mutex
	clients   = make(map[clientKey]*db.Client)
)

// NewFirebaseClient returns a realtime database client for databaseURL.
// Clients are cached per URL and credentials file, so calling it again in the
// same process returns the existing client instead of initializing a second
// app.
func NewFirebaseClient(ctx context.Context, databaseURL, credentialsFile string) (*db.Client, error) {
	key := clientKey{databaseURL: databaseURL, credentialsFile: credentialsFile}

	clientsMu.Lock()
	defer clientsMu.Unlock()

	if client, ok := clients[key]; ok {
		return client, nil
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	clients[key] = client
	return client, nil
}

// FirebaseAdapter reads the sensor nodes with the Admin SDK.
type FirebaseAdapter struct {
	log         *slog.Logger
	client      *db.Client
	historyPath string
	currentPath string
}

func NewFirebaseAdapter(log *slog.Logger, client *db.Client, historyPath, currentPath string) *FirebaseAdapter {
	return &FirebaseAdapter{
		log:         log.With(slog.String("component", "firebase-source")),
		client:      client,
		historyPath: historyPath,
		currentPath: currentPath,
	}
}

func (a *FirebaseAdapter) Name() string {
	return "firebase"
}

// Close is a no-op; the SDK client is shared and has no close method.
func (a *FirebaseAdapter) Close() error {
	return nil
}

func (a *FirebaseAdapter) History(ctx context.Context) (map[string]model.RawRecord, error) {
	var node any
	if err := a.client.NewRef(a.historyPath).Get(ctx, &node); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.historyPath, err)
	}

	history, skipped, err := decodeHistory(node)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		a.log.Debug("skipped non-object history entries", slog.Int("count", skipped))
	}

	return history, nil
}

func (a *FirebaseAdapter) Current(ctx context.Context) (model.RawRecord, error) {
	var node any
	if err := a.client.NewRef(a.currentPath).Get(ctx, &node); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.currentPath, err)
	}
	return decodeCurrent(node)
}
