package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmkorolev/imageflow/internal/infrastructure/resilience"
)

// Client calls the external conversion service: one staged raw file in,
// one converted output URL out. Failures are never retried here beyond
// the resilience executor's transport-level policy; conversion retry is
// the pipeline's responsibility.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type ClientOptions struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
	RateLimit          rate.Limit
	RateBurst          int
}

func NewClient(baseURL string, options ClientOptions) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if options.RateLimit > 0 {
		burst := options.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(options.RateLimit, burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
		limiter:    limiter,
	}
}

// Convert asks the service to convert the staged object and returns the
// output URL from the response.
func (c *Client) Convert(ctx context.Context, stagedRef, originalFilename string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("conversion rate wait: %w", err)
		}
	}

	request := map[string]any{
		"source_ref": stagedRef,
		"filename":   originalFilename,
	}
	var response struct {
		OutputURL string `json:"output_url"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/conversions", request, &response, "convert")
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "converter.convert", call, classifyConverterError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("convert", err)
	}

	if strings.TrimSpace(response.OutputURL) == "" {
		return "", fmt.Errorf("conversion service returned no output reference for %q", originalFilename)
	}
	return response.OutputURL, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("conversion service %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
