package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	PathPurchases = "purchases"
	PathRefunds   = "refunds"

	maxBodyBytes = 1 << 20
)

var errRedirectRefused = errors.New("redirect refused")

// Observer receives exchange measurements. observability.Metrics implements it.
type Observer interface {
	ObserveGatewayRequest(method, path, result string, elapsed time.Duration)
	BreakerStateChanged(name, from, to string)
}

type noopObserver struct{}

func (noopObserver) ObserveGatewayRequest(string, string, string, time.Duration) {}
func (noopObserver) BreakerStateChanged(string, string, string)                  {}

// Client performs one authenticated HTTPS exchange per call. It holds only
// read-only configuration and is safe for concurrent use.
type Client struct {
	creds      Credentials
	apiVersion string
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	observer   Observer
	logger     zerolog.Logger
}

type clientOptions struct {
	transport http.RoundTripper
	breaker   config.BreakerConfig
	observer  Observer
	logger    zerolog.Logger
}

type Option func(*clientOptions)

// WithTransport replaces the base round tripper. It is still wrapped with
// otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

func WithBreaker(cfg config.BreakerConfig) Option {
	return func(o *clientOptions) { o.breaker = cfg }
}

func WithObserver(obs Observer) Option {
	return func(o *clientOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient builds a client from explicit configuration. Missing credentials
// fail here rather than on the first request.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	creds, err := NewCredentials(cfg)
	if err != nil {
		return nil, err
	}

	o := clientOptions{
		transport: http.DefaultTransport,
		breaker:   defaultBreakerConfig(),
		observer:  noopObserver{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	version := cfg.UserAgentVersion
	if version == "" {
		version = "1.0.0"
	}

	c := &Client{
		creds:      creds,
		apiVersion: cfg.APIVersion,
		userAgent:  "Fat Zebra Go Library " + version,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(o.transport),
			Timeout:   config.GatewayTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		observer: o.observer,
		logger:   o.logger.With().Str("component", "gateway_client").Object("gateway", creds).Logger(),
	}
	c.breaker = newBreaker("gateway", o.breaker, o.observer)
	return c, nil
}

// TestMode reports whether payloads should carry the test flag.
func (c *Client) TestMode() bool { return c.creds.TestMode }

// Post sends payload to /v{version}/{path}.
func (c *Client) Post(ctx context.Context, path string, payload any) (*Response, error) {
	endpoint := c.url(path)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// "&amp;" in card_holder must reach the gateway verbatim.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, &TransportError{Method: http.MethodPost, URL: endpoint, Err: fmt.Errorf("encode payload: %w", err)}
	}
	return c.execute(ctx, http.MethodPost, path, endpoint, buf.Bytes())
}

// Get fetches /v{version}/{path}/{id}.
func (c *Client) Get(ctx context.Context, path, id string) (*Response, error) {
	endpoint := c.url(path) + "/" + url.PathEscape(id)
	return c.execute(ctx, http.MethodGet, path, endpoint, nil)
}

func (c *Client) url(path string) string {
	return c.creds.BaseURL + "/v" + c.apiVersion + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) execute(ctx context.Context, method, path, endpoint string, body []byte) (*Response, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (*Response, error) {
		return c.roundTrip(ctx, method, endpoint, body)
	})
	if err != nil && isBreakerRejection(err) {
		err = &TransportError{
			Method: method,
			URL:    endpoint,
			Err:    fmt.Errorf("%w: %v", domainErrors.ErrGatewayUnavailable, err),
		}
	}

	c.observer.ObserveGatewayRequest(method, path, resultLabel(res, err), time.Since(start))
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("gateway exchange failed")
		return nil, err
	}
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Method: method, URL: endpoint, Err: err}
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: endpoint, Sent: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, &TransportError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Sent:       true,
			Err:        fmt.Errorf("%w to %q", errRedirectRefused, resp.Header.Get("Location")),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Sent: true, Err: fmt.Errorf("read body: %w", err)}
	}

	res, err := decodeResponse(resp.StatusCode, raw)
	if err != nil {
		if !isSuccessStatus(resp.StatusCode) {
			return nil, &TransportError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Sent: true, Err: err}
		}
		return nil, err
	}
	return res, nil
}

func resultLabel(res *Response, err error) string {
	switch {
	case err == nil && res.EnvelopeSuccessful():
		return "ok"
	case err == nil:
		return "unsuccessful"
	case errors.Is(err, domainErrors.ErrGatewayUnavailable):
		return "breaker_open"
	case errors.Is(err, domainErrors.ErrMalformedResponse) && !errors.Is(err, domainErrors.ErrTransportFailure):
		return "malformed"
	default:
		return "transport_failure"
	}
}
