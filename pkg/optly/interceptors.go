package optly

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fivetwenty-io/optly/internal/constants"
)

// InterceptedResponse is the view of a completed exchange handed to response
// interceptors. The body has already been read.
type InterceptedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RequestInterceptor is called before a request is sent. Returning an error
// aborts the request.
type RequestInterceptor func(ctx context.Context, req *http.Request) error

// ResponseInterceptor is called after a response is read.
type ResponseInterceptor func(ctx context.Context, req *http.Request, resp *InterceptedResponse) error

// InterceptorChain runs interceptors in the order they were added.
type InterceptorChain struct {
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequestInterceptor appends a request interceptor.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) {
	c.requestInterceptors = append(c.requestInterceptors, interceptor)
}

// AddResponseInterceptor appends a response interceptor.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) {
	c.responseInterceptors = append(c.responseInterceptors, interceptor)
}

// ExecuteRequestInterceptors runs the request interceptors, stopping at the
// first error.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *http.Request) error {
	for _, interceptor := range c.requestInterceptors {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs the response interceptors, stopping at the
// first error.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *http.Request, resp *InterceptedResponse) error {
	for _, interceptor := range c.responseInterceptors {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor failed: %w", err)
		}
	}

	return nil
}

// HeaderInterceptor sets fixed headers on every request.
func HeaderInterceptor(headers map[string]string) RequestInterceptor {
	return func(ctx context.Context, req *http.Request) error {
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		return nil
	}
}

// BearerTokenInterceptor sets the Authorization header from tokenProvider.
// An empty token leaves the request unauthenticated.
func BearerTokenInterceptor(tokenProvider func(context.Context) (string, error)) RequestInterceptor {
	return func(ctx context.Context, req *http.Request) error {
		token, err := tokenProvider(ctx)
		if err != nil {
			return fmt.Errorf("getting token: %w", err)
		}

		if token != "" {
			req.Header.Set("Authorization", constants.BearerPrefix+token)
		}

		return nil
	}
}

// LoggingInterceptor logs each outgoing request at debug level.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(ctx context.Context, req *http.Request) error {
		logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    req.URL.String(),
		})

		return nil
	}
}

// LoggingResponseInterceptor logs each response at debug level.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(ctx context.Context, req *http.Request, resp *InterceptedResponse) error {
		logger.Debug("HTTP Response", map[string]interface{}{
			"status":   resp.StatusCode,
			"url":      req.URL.String(),
			"duration": resp.Duration.String(),
		})

		return nil
	}
}
