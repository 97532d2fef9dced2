package main

// client functions for ML endpoints
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	bypassHeader   = "ngrok-skip-browser-warning" // skips tunnel interstitial page
	maxErrorBody   = 1024                         // max size of error body we keep
)

// CallOptions represents options of single ML endpoint call
type CallOptions struct {
	Method  string            // HTTP method, GET or POST
	Data    Params            // request payload, used by POST
	Headers map[string]string // headers which override default ones
	Timeout time.Duration     // request timeout
}

// CallSuccess represents successful ML endpoint call
type CallSuccess struct {
	Data   any    `json:"data"`   // parsed JSON response
	Status int    `json:"status"` // HTTP status code
	URL    string `json:"url"`    // final request URL
}

// CallFailure represents failed ML endpoint call
type CallFailure struct {
	Message string `json:"error"` // human readable message
	URL     string `json:"url"`   // attempted URL
	Err     error  `json:"-"`     // underlying error
}

// CallResult holds either Success or Failure of ML endpoint call
type CallResult struct {
	Success *CallSuccess `json:"success,omitempty"`
	Failure *CallFailure `json:"failure,omitempty"`
}

// OK reports if call succeeded
func (r CallResult) OK() bool {
	return r.Success != nil
}

// helper function to construct failed call result
func callFailure(rurl string, err error) CallResult {
	return CallResult{Failure: &CallFailure{Message: err.Error(), URL: rurl, Err: err}}
}

// APIClient performs calls to ML endpoints
type APIClient struct {
	Client  *http.Client
	Timeout time.Duration     // default call timeout
	Headers map[string]string // headers added to every call
}

// NewAPIClient creates new APIClient with given default timeout
func NewAPIClient(timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &APIClient{
		Client:  &http.Client{},
		Timeout: timeout,
	}
}

// Call builds request URL from given base URL and performs single HTTP
// request to it. Errors are never returned, they are reported as Failure
// of the CallResult.
func (c *APIClient) Call(ctx context.Context, baseURL string, opts CallOptions) CallResult {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodPost
	}
	rurl, err := BuildRequestURL(baseURL, method)
	if err != nil {
		log.Printf("ERROR: API call %s %q: %v", method, baseURL, err)
		return callFailure(baseURL, err)
	}
	if Config.Verbose > 0 {
		log.Printf("API call: %s %s", method, rurl)
	}
	return c.send(ctx, method, rurl, opts)
}

// Post performs POST call to given ML endpoint
func (c *APIClient) Post(ctx context.Context, rurl string, data Params, headers map[string]string) CallResult {
	return c.Call(ctx, rurl, CallOptions{Method: http.MethodPost, Data: data, Headers: headers})
}

// Get performs GET call to given ML endpoint, parameters should already be
// part of the URL, see BuildGetURL
func (c *APIClient) Get(ctx context.Context, rurl string, headers map[string]string) CallResult {
	return c.Call(ctx, rurl, CallOptions{Method: http.MethodGet, Headers: headers})
}

// ProxyRequest represents request relayed by the proxy
type ProxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Data    Params            `json:"data"`
	Headers map[string]string `json:"headers"`
}

// Relay sends request to explicit URL, unlike Call it does not complete
// the URL path
func (c *APIClient) Relay(ctx context.Context, preq ProxyRequest) CallResult {
	method := strings.ToUpper(strings.TrimSpace(preq.Method))
	if method == "" {
		method = http.MethodPost
	}
	rurl := strings.TrimSpace(preq.URL)
	if !IsValidURL(rurl) {
		return callFailure(preq.URL, &InvalidURLError{URL: rurl})
	}
	if Config.Verbose > 0 {
		log.Printf("relay: %s %s", method, rurl)
	}
	opts := CallOptions{Method: method, Data: preq.Data, Headers: preq.Headers}
	return c.send(ctx, method, rurl, opts)
}

// helper function to perform HTTP request and convert its outcome to CallResult
func (c *APIClient) send(ctx context.Context, method, rurl string, opts CallOptions) CallResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		data := opts.Data
		if data == nil {
			data = Params{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return callFailure(rurl, fmt.Errorf("unable to encode request data: %w", err))
		}
		if Config.Verbose > 1 {
			log.Printf("request data: %s", string(payload))
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rurl, body)
	if err != nil {
		return callFailure(rurl, &NetworkError{URL: rurl, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(bypassHeader, "true")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	rsp, err := client.Do(req)
	if err != nil {
		nerr := &NetworkError{URL: rurl, After: timeout, Err: err, Timeout: isTimeout(ctx, err)}
		log.Printf("ERROR: API call %s %s: %v", method, rurl, nerr)
		return callFailure(rurl, nerr)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		text := "Unknown error"
		if data, err := io.ReadAll(io.LimitReader(rsp.Body, maxErrorBody)); err == nil {
			text = strings.TrimSpace(string(data))
		}
		serr := &HTTPStatusError{
			StatusCode: rsp.StatusCode,
			StatusText: http.StatusText(rsp.StatusCode),
			Body:       text,
		}
		log.Printf("ERROR: API call %s %s: %v", method, rurl, serr)
		return callFailure(rurl, serr)
	}

	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		nerr := &NetworkError{URL: rurl, After: timeout, Err: err, Timeout: isTimeout(ctx, err)}
		return callFailure(rurl, nerr)
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		perr := &ParseError{Err: err}
		log.Printf("ERROR: API call %s %s: %v", method, rurl, perr)
		return callFailure(rurl, perr)
	}
	if Config.Verbose > 0 {
		log.Printf("API response: %s %s status=%d", method, rurl, rsp.StatusCode)
	}
	return CallResult{Success: &CallSuccess{Data: result, Status: rsp.StatusCode, URL: rurl}}
}

// helper function to check if request error is caused by its deadline
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
