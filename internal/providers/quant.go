package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-arbiter/internal/errors"
)

// ScoreProvider is the quant model contract: one score per symbol per
// run, in [0,1], or an error. No defaults are ever fabricated here.
type ScoreProvider interface {
	Name() string
	Score(ctx context.Context, symbol string) (float64, error)
}

// HTTPScoreProvider reads one named model's score from the quant scoring
// service.
type HTTPScoreProvider struct {
	name   string
	client *resty.Client
}

// NewHTTPScoreProvider creates a score provider for the named model
// against the given service endpoint.
func NewHTTPScoreProvider(name, baseURL, apiKey string, timeout time.Duration) *HTTPScoreProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0)
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPScoreProvider{name: name, client: client}
}

// Name returns the model name.
func (p *HTTPScoreProvider) Name() string {
	return p.name
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// Score fetches the model's score for the symbol.
func (p *HTTPScoreProvider) Score(ctx context.Context, symbol string) (float64, error) {
	var out scoreResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"model": p.name, "symbol": symbol}).
		SetResult(&out).
		Get("/v1/models/{model}/score/{symbol}")
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, errors.NewProviderError(p.name, "quant", "score",
				errors.Wrap(errors.ErrProviderTimeout, err.Error()))
		}
		return 0, errors.NewProviderError(p.name, "quant", "score",
			errors.Wrap(errors.ErrProviderUnavailable, err.Error()))
	}
	if resp.IsError() {
		return 0, errors.NewProviderError(p.name, "quant", "score",
			fmt.Errorf("score service returned %s", resp.Status()))
	}
	if out.Score < 0 || out.Score > 1 {
		return 0, errors.NewProviderError(p.name, "quant", "score",
			errors.Wrapf(errors.ErrMalformedResponse, "score %.4f outside [0,1]", out.Score))
	}
	return out.Score, nil
}
