// Package http wraps go-retryablehttp with bearer authentication, JSON bodies
// and request logging for the Optimizely APIs.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// TokenManager supplies the bearer token for each request.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// Logger is the logging surface the client writes to.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Request describes one API call. Body is sent verbatim when it is a []byte
// and JSON-encoded otherwise.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is an HTTP client bound to one base URL. Headers, authentication
// and debug logging are applied through an optly.InterceptorChain.
type Client struct {
	baseURL      string
	httpClient   *retryablehttp.Client
	tokenManager TokenManager
	logger       Logger
	debug        bool
	userAgent    string
	interceptors *optly.InterceptorChain

	extraRequest  []optly.RequestInterceptor
	extraResponse []optly.ResponseInterceptor
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig sets the retry budget and backoff bounds.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTimeout caps each attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithRequestInterceptor appends an interceptor run after the built-in ones.
func WithRequestInterceptor(interceptor optly.RequestInterceptor) Option {
	return func(c *Client) {
		c.extraRequest = append(c.extraRequest, interceptor)
	}
}

// WithResponseInterceptor appends an interceptor run after the built-in ones.
func WithResponseInterceptor(interceptor optly.ResponseInterceptor) Option {
	return func(c *Client) {
		c.extraResponse = append(c.extraResponse, interceptor)
	}
}

// NewClient creates a client. tokenManager may be nil for unauthenticated
// endpoints.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   retryClient,
		tokenManager: tokenManager,
		userAgent:    "optly-go/" + constants.DefaultClientVersion,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.interceptors = client.buildInterceptors()

	return client
}

func (c *Client) buildInterceptors() *optly.InterceptorChain {
	chain := optly.NewInterceptorChain()
	chain.AddRequestInterceptor(optly.HeaderInterceptor(map[string]string{
		"Accept":     "application/json",
		"User-Agent": c.userAgent,
	}))

	if c.tokenManager != nil {
		chain.AddRequestInterceptor(optly.BearerTokenInterceptor(c.tokenManager.GetToken))
	}

	if c.debug && c.logger != nil {
		chain.AddRequestInterceptor(optly.LoggingInterceptor(c.logger))
		chain.AddResponseInterceptor(optly.LoggingResponseInterceptor(c.logger))
	}

	for _, interceptor := range c.extraRequest {
		chain.AddRequestInterceptor(interceptor)
	}

	for _, interceptor := range c.extraResponse {
		chain.AddResponseInterceptor(interceptor)
	}

	return chain
}

// BaseURL returns the URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends the request. Responses with status 400 or above are returned
// together with an *optly.APIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	err = c.interceptors.ExecuteRequestInterceptors(ctx, httpReq.Request)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing %s %s: %w", req.Method, req.Path, err)
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	err = c.interceptors.ExecuteResponseInterceptors(ctx, httpReq.Request, &optly.InterceptedResponse{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
		Duration:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}

	if httpResp.StatusCode >= constants.HTTPStatusBadRequest {
		return resp, optly.ParseAPIError(httpResp.StatusCode, respBody)
	}

	return resp, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		return data, nil
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}
