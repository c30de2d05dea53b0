// Package transport carries a resolution request over HTTP and classifies the
// response. Cross-cutting behavior is composed as Middleware around the core
// HTTP handler.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
)

// Executor performs HTTP round trips. *http.Client satisfies it.
// Executors must not follow redirects; redirects are reported to the caller.
type Executor interface {
	Do(req *http.Request) (*http.Response, error)
}

// Handler processes resolution requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms Handler into enhanced Handler for composable behavior.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPClient returns an *http.Client that reports redirects instead of following them.
func NewHTTPClient(cfg configuration.HTTPConfig) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewHTTPHandler creates the core handler that performs the resolution round trip.
func NewHTTPHandler(exec Executor, reqCfg configuration.RequestConfig, maxResponseBytes int64) Handler {
	if maxResponseBytes <= 0 {
		maxResponseBytes = configuration.DefaultMaxResponseBytes
	}
	return &httpHandler{
		exec:             exec,
		config:           reqCfg,
		maxResponseBytes: maxResponseBytes,
		now:              time.Now,
	}
}

// httpHandler is the core handler that makes actual HTTP requests.
type httpHandler struct {
	exec             Executor
	config           configuration.RequestConfig
	maxResponseBytes int64
	now              func() time.Time
}

// Handle builds the POST, executes it and classifies the outcome.
// Every returned error is a *reserrors.ResolutionError.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	if req.Token == "" {
		return nil, reserrors.New(reserrors.KindMissingAuthToken, "no auth token attached to request")
	}

	httpReq, err := h.build(ctx, req)
	if err != nil {
		return nil, reserrors.Wrap(reserrors.KindNetworkFailure, err)
	}

	start := time.Now()
	httpResp, err := h.exec.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, reserrors.Wrap(reserrors.KindNetworkFailure, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	if resErr := reserrors.ClassifyStatus(httpResp.StatusCode, httpResp.Header, h.now()); resErr != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, h.maxResponseBytes))
		return nil, resErr
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, h.maxResponseBytes+1))
	if err != nil {
		return nil, reserrors.Wrap(reserrors.KindNetworkFailure, fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > h.maxResponseBytes {
		e := reserrors.New(reserrors.KindInvalidResponse,
			fmt.Sprintf("response body exceeds %d bytes", h.maxResponseBytes))
		e.StatusCode = httpResp.StatusCode
		return nil, e
	}

	decision, err := domain.ParseDecision(body)
	if err != nil {
		e := reserrors.Wrap(reserrors.KindInvalidResponse, err)
		e.StatusCode = httpResp.StatusCode
		return nil, e
	}

	return &Response{
		Decision:   decision,
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Latency:    latency,
	}, nil
}

// build constructs the HTTP request with auth, channel and configured headers.
func (h *httpHandler) build(ctx context.Context, req *Request) (*http.Request, error) {
	body, err := EncodeBody(req, h.config.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Resolution.URL().String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range h.config.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.config.Accept != "" {
		httpReq.Header.Set("Accept", h.config.Accept)
	}
	if h.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", h.config.UserAgent)
	}
	httpReq.Header.Set(HeaderAuthorization, "Bearer "+req.Token)
	httpReq.Header.Set(HeaderChannelID, req.Resolution.ChannelID())
	if req.RequestID != "" {
		httpReq.Header.Set(HeaderRequestID, req.RequestID)
	}

	return httpReq, nil
}
