package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

// SnapshotProvider supplies the point-in-time portfolio view. The
// pipeline takes exactly one snapshot per run; gates never re-read it.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error)
}

// HTTPSnapshotProvider reads the portfolio snapshot from the portfolio
// service.
type HTTPSnapshotProvider struct {
	client *resty.Client
}

// NewHTTPSnapshotProvider creates a snapshot provider against the given
// service endpoint.
func NewHTTPSnapshotProvider(baseURL, apiKey string, timeout time.Duration) *HTTPSnapshotProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPSnapshotProvider{client: client}
}

// Snapshot fetches the current portfolio state.
func (p *HTTPSnapshotProvider) Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var out models.PortfolioSnapshot
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/portfolio/snapshot")
	if err != nil {
		return nil, errors.NewProviderError("portfolio", "snapshot", "get",
			errors.Wrap(errors.ErrProviderUnavailable, err.Error()))
	}
	if resp.IsError() {
		return nil, errors.NewProviderError("portfolio", "snapshot", "get",
			fmt.Errorf("portfolio service returned %s", resp.Status()))
	}
	return &out, nil
}
