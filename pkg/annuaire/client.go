// Package annuaire looks up withdrawal operators in the territorial operator
// directory. The directory is the source of truth for which operator a
// declarant email belongs to; a dossier whose declarant has no operator is
// never integrated.
package annuaire

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/aquadecl/releve-core/internal/model"
	"github.com/aquadecl/releve-core/internal/resilience"
)

// Client resolves operators from declarant emails.
type Client interface {
	// FindOperatorByEmail returns the operator owning the email, or
	// (nil, nil) when the directory knows no such declarant.
	FindOperatorByEmail(ctx context.Context, email string) (*model.Operator, error)
}

// Option configures the directory client.
type Option func(*client)

// WithRateLimit sets the requests-per-second limit for directory calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
}

// WithRetry overrides the retry configuration for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.http.SetTimeout(d)
	}
}

type client struct {
	http    *resty.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a directory client for the given base URL. The API key
// is sent as a bearer token on every request.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		hc.SetAuthToken(apiKey)
	}

	c := &client{
		http:    hc,
		limiter: rate.NewLimiter(5, 6),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type operatorResponse struct {
	ID     string `json:"id"`
	Tenant string `json:"territory"`
}

func (c *client) FindOperatorByEmail(ctx context.Context, email string) (*model.Operator, error) {
	if email == "" {
		return nil, nil
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*model.Operator, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "annuaire: rate limit wait")
		}

		var body operatorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("email", email).
			SetResult(&body).
			Get("/v1/operators/by-email")
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "annuaire: lookup operator"), 0)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			// Unknown declarant, by contract not an error.
			return nil, nil
		case resilience.IsTransientHTTPStatus(resp.StatusCode()):
			return nil, resilience.NewTransientError(
				eris.Errorf("annuaire: directory returned %d", resp.StatusCode()), resp.StatusCode())
		case resp.IsError():
			return nil, eris.Errorf("annuaire: directory returned %d", resp.StatusCode())
		}

		if body.ID == "" {
			return nil, nil
		}
		return &model.Operator{ID: body.ID, Tenant: body.Tenant}, nil
	})
}
