package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

// RESTAdapter reads the realtime database through its REST interface:
// GET <base>/<path>.json, optionally authenticated with ?auth=<token>.
type RESTAdapter struct {
	log         *slog.Logger
	baseURL     string
	authToken   string
	historyPath string
	currentPath string
	client      *http.Client
}

type RESTOptions struct {
	BaseURL     string
	AuthToken   string
	HistoryPath string
	CurrentPath string
	Timeout     time.Duration
}

func NewRESTAdapter(log *slog.Logger, opts RESTOptions) *RESTAdapter {
	return &RESTAdapter{
		log:         log.With(slog.String("component", "rest-source")),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authToken:   opts.AuthToken,
		historyPath: opts.HistoryPath,
		currentPath: opts.CurrentPath,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

func (a *RESTAdapter) Name() string {
	return "rest"
}

func (a *RESTAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *RESTAdapter) History(ctx context.Context) (map[string]model.RawRecord, error) {
	node, err := a.get(ctx, a.historyPath)
	if err != nil {
		return nil, err
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

func (a *RESTAdapter) Current(ctx context.Context) (model.RawRecord, error) {
	node, err := a.get(ctx, a.currentPath)
	if err != nil {
		return nil, err
	}
	return decodeCurrent(node)
}

func (a *RESTAdapter) endpoint(path string) string {
	u := a.baseURL + "/" + strings.Trim(path, "/") + ".json"
	if a.authToken != "" {
		u += "?auth=" + url.QueryEscape(a.authToken)
	}
	return u
}

func (a *RESTAdapter) get(ctx context.Context, path string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var node any
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return node, nil
}
