package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrStatus matches every *APIError with errors.Is.
var ErrStatus = errors.New("unexpected API status")

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: API returned status code: %d, response: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrStatus
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetToken sends token as a bearer credential. An empty token removes it.
func (c *BaseClient) SetToken(token string) {
	if token == "" {
		delete(c.headers, "Authorization")
		return
	}
	c.headers["Authorization"] = "Bearer " + token
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SetHTTPClient replaces the underlying http.Client.
func (c *BaseClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

func (c *BaseClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send performs the request and returns the response once the status is 2xx.
// The caller owns the body.
func (c *BaseClient) send(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(responseBody),
		}
	}
	return resp, nil
}

// Do performs a request and reads the whole body.
func (c *BaseClient) Do(ctx context.Context, method, endpoint string, body io.Reader) (*Response, error) {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       responseBody,
	}, nil
}

func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	resp, err := c.Do(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Stream copies the response body to w and returns the response headers.
func (c *BaseClient) Stream(ctx context.Context, endpoint string, w io.Writer) (http.Header, error) {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to copy response body: %w", err)
	}
	return resp.Header, nil
}

func (c *BaseClient) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, body io.Reader) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPost, endpoint, body)
}

func (c *BaseClient) Put(ctx context.Context, endpoint string, body io.Reader) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPut, endpoint, body)
}

func (c *BaseClient) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodDelete, endpoint, nil)
}
