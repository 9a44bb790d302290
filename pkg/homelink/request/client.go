// Package request implements the request/response transport: body encoding,
// bearer authentication, linear retry of transient failures and
// normalization of failed responses.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tsarna/homelink/pkg/homelink/credentials"
	"github.com/tsarna/homelink/pkg/homelink/errnorm"
	"github.com/tsarna/homelink/pkg/homelink/o11y"
	"go.uber.org/zap"
)

// errServiceUnavailable marks a 503 attempt for the retry loop.
var errServiceUnavailable = errors.New("service unavailable")

// Descriptor describes one request.
type Descriptor struct {
	Method string
	// Path is relative to the resolved base, e.g. "/api/devices/7".
	Path  string
	Query url.Values
	Body  any
	// Encoding defaults to EncodingJSON. Any Files force EncodingMultipart.
	Encoding Encoding
	// Headers override the defaults. Authorization is always set last
	// unless Anonymous.
	Headers map[string]string
	// Anonymous skips the bearer token.
	Anonymous bool
	Files     map[string]File
}

// Client executes Descriptors against the resolved backend.
type Client struct {
	resolver   Resolver
	rest       *resty.Client
	store      credentials.Store
	reporter   *errnorm.Reporter
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	tracing    o11y.TracingProvider

	attempts    o11y.Counter
	retries     o11y.Counter
	failures    o11y.Counter
	duration    o11y.Histogram
	retryDelays o11y.Histogram
}

// Execute sends the request, retrying 503 responses and transport failures.
// A 2xx response is returned for the caller to consume and close. Any other
// outcome is reported and returned as an *errnorm.Error.
func (c *Client) Execute(ctx context.Context, d Descriptor) (*http.Response, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracing.StartSpan(ctx, "homelink.request")
	defer span.End()
	span.SetAttributes(o11y.L("http.method", method), o11y.L("http.path", d.Path))

	start := time.Now()
	defer func() {
		c.duration.Record(ctx, time.Since(start).Seconds(), o11y.L("method", method))
	}()

	p, err := preparePayload(d)
	if err == nil && p.encoding == EncodingMultipart && !allowsMultipart(method) {
		err = fmt.Errorf("%w: multipart body with %s", ErrUnsupportedBody, method)
	}
	if err != nil {
		span.SetStatus(o11y.SpanStatusError, err.Error())
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	target := c.resolver.APIURL(d.Path)
	if _, err := url.Parse(target); err != nil {
		span.SetStatus(o11y.SpanStatusError, err.Error())
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}

	var token string
	if !d.Anonymous {
		token = c.token(ctx)
	}

	var resp *http.Response
	attempt := 0

	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		if resp != nil {
			discard(resp)
			resp = nil
		}
		attempt++
		c.attempts.Add(ctx, 1, o11y.L("method", method))

		r, err := c.newRequest(ctx, d, p, token).Execute(method, target)
		if err != nil {
			if r != nil && r.RawResponse != nil {
				discard(r.RawResponse)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				c.logger.Warn("Network error, retrying",
					zap.String("url", target),
					zap.Int("attempt", attempt),
					zap.Int("max", c.maxRetries),
					zap.Error(err))
			}
			return retry.RetryableError(err)
		}

		resp = r.RawResponse
		if resp.StatusCode == http.StatusServiceUnavailable {
			if attempt < c.maxRetries {
				c.logger.Warn("Service unavailable, retrying",
					zap.String("url", target),
					zap.Int("attempt", attempt),
					zap.Int("max", c.maxRetries))
			}
			return retry.RetryableError(errServiceUnavailable)
		}
		return nil
	})

	span.SetAttributes(o11y.L("http.attempts", strconv.Itoa(attempt)))

	if err != nil && !errors.Is(err, errServiceUnavailable) {
		if resp != nil {
			discard(resp)
		}
		if ctx.Err() != nil {
			span.SetStatus(o11y.SpanStatusError, ctx.Err().Error())
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		return nil, c.fail(ctx, span, errnorm.NetworkError(err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		span.SetStatus(o11y.SpanStatusOK, "")
		return resp, nil
	}

	return nil, c.fail(ctx, span, errnorm.Normalize(resp))
}

func (c *Client) fail(ctx context.Context, span o11y.Span, nerr *errnorm.Error) error {
	c.failures.Add(ctx, 1, o11y.L("kind", nerr.Kind().String()))
	span.SetStatus(o11y.SpanStatusError, nerr.Error())

	c.logger.Debug("Request failed",
		zap.Int("status", nerr.StatusCode),
		zap.Stringer("kind", nerr.Kind()),
		zap.Strings("messages", nerr.Messages))

	if c.reporter != nil {
		c.reporter.Report(ctx, nerr)
	}
	return nerr
}

// backoff allows maxRetries attempts in total, waiting retryDelay times the
// attempt number between them. The state is per call.
func (c *Client) backoff() retry.Backoff {
	var n int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		delay := time.Duration(n) * c.retryDelay
		c.retries.Add(context.Background(), 1)
		c.retryDelays.Record(context.Background(), float64(delay)/float64(time.Millisecond))
		return delay, false
	})
	return retry.WithMaxRetries(uint64(c.maxRetries-1), linear)
}

// newRequest builds one attempt. Custom headers override Accept and
// Content-Type; the bearer token is applied after them.
func (c *Client) newRequest(ctx context.Context, d Descriptor, p *payload, token string) *resty.Request {
	req := c.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "application/json")
	if p.contentType != "" {
		req.SetHeader("Content-Type", p.contentType)
	}
	req.SetHeaders(d.Headers)
	if len(d.Query) > 0 {
		req.SetQueryParamsFromValues(d.Query)
	}
	// resty leaves Authorization unset for an empty token.
	if !d.Anonymous {
		req.SetAuthToken(token)
	}
	p.apply(req)
	return req
}

func (c *Client) token(ctx context.Context) string {
	if c.store == nil {
		return ""
	}
	token, err := c.store.Get(ctx, credentials.KeyToken)
	if err != nil {
		c.logger.Warn("Failed to read token", zap.Error(err))
	}
	return token
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Execute(ctx, Descriptor{Method: http.MethodGet, Path: path})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Execute(ctx, Descriptor{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Execute(ctx, Descriptor{Method: http.MethodPut, Path: path, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Execute(ctx, Descriptor{Method: http.MethodDelete, Path: path})
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
