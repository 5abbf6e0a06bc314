package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultHTTPTimeout = 15 * time.Second

type HTTPOptions struct {
	EnvironmentURL string
	HealthURL      string
	// Sent with every request, e.g. authentication.
	Headers map[string]string
	Timeout time.Duration
}

// HTTP posts each record as JSON to its endpoint.
type HTTP struct {
	opts   HTTPOptions
	client *http.Client
}

func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHTTPTimeout
	}

	return &HTTP{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (h *HTTP) Deliver(ctx context.Context, env Envelope) error {
	envErr := h.post(ctx, EndpointEnvironment, h.opts.EnvironmentURL, env.Environment)
	healthErr := h.post(ctx, EndpointHealth, h.opts.HealthURL, env.Health)

	return errors.Join(envErr, healthErr)
}

func (h *HTTP) post(ctx context.Context, endpoint, url string, record any) (err error) {
	defer func() { observe(endpoint, err) }()

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode %s record: %w", ErrDelivery, endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s request: %w", ErrDelivery, endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s record: %w", ErrDelivery, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(msg)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	log.Trace().
		Str("Endpoint", endpoint).
		Str("URL", url).
		RawJSON("Record", body).
		Msg("relay: record delivered")

	return nil
}
