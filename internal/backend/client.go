// Package backend is the client for the back-office REST API. Every
// response is wrapped in the envelope
// {"code":..,"data":..,"message":..,"success":..,"timestamp":..}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	pathAuthorizationURL = "/auth/google/url"
	pathLogin            = "/auth/google/login"
	pathMe               = "/auth/me"
	pathLogout           = "/auth/logout"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads.
	maxAPIResponseBytes = 1024 * 1024

	// Retry policy for idempotent GETs. Code exchange is never retried.
	getRetryMax     = 3
	getRetryWaitMin = 200 * time.Millisecond
	getRetryWaitMax = 2 * time.Second

	networkFailureMessage      = "could not reach the server, check your connection"
	unexpectedResponseMessage = "unexpected response from server"
)

// APIError is a response with success=false or a non-2xx status.
type APIError struct {
	Endpoint string
	Status   int
	Code     int64
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API %s (%d): %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return apperrors.ErrAPIResponse }

// Client talks to the back-office REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	getClient  *http.Client
}

// NewClient creates an API client. If httpClient is nil, a client with
// a 30-second timeout is used. GET requests go through a retrying
// wrapper around the same transport.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = getRetryMax
	rc.RetryWaitMin = getRetryWaitMin
	rc.RetryWaitMax = getRetryWaitMax
	rc.Logger = nil
	if logger != nil {
		rc.Logger = logger
	}
	// Hand the last response back instead of a generic "giving up" error
	// so the envelope message reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		getClient:  rc.StandardClient(),
	}
}

// AuthorizationURL asks the backend for the identity provider consent
// URL. The relay page is already registered as its redirect target.
func (c *Client) AuthorizationURL(ctx context.Context) (string, error) {
	var raw string
	if err := c.get(ctx, pathAuthorizationURL, "", &raw); err != nil {
		return "", fmt.Errorf("fetching authorization url: %w", err)
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("fetching authorization url: %w: %q is not absolute", apperrors.ErrAPIResponse, sanitizeResponseBody([]byte(raw)))
	}

	return raw, nil
}

// ExchangeCode trades an authorization code for a session. It makes
// exactly one request: a code is single-use, so nothing is retried.
// Failures come back as *errors.ExchangeError.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*models.LoginResult, error) {
	var res models.LoginResult

	err := c.post(ctx, pathLogin, "", map[string]string{"code": code}, &res)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &apperrors.ExchangeError{Message: apiErr.Message, Err: err}
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &apperrors.ExchangeError{Message: "sign-in was interrupted", Err: err}
		}

		if errors.Is(err, apperrors.ErrAPIResponse) {
			return nil, &apperrors.ExchangeError{Message: unexpectedResponseMessage, Err: err}
		}

		return nil, &apperrors.ExchangeError{Message: networkFailureMessage, Err: err}
	}

	if res.Token == "" {
		return nil, &apperrors.ExchangeError{Message: "server returned no token", Err: apperrors.ErrAPIResponse}
	}

	return &res, nil
}

// Me returns the profile the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := c.get(ctx, pathMe, token, &u); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}

	return &u, nil
}

// Logout revokes the token on the server.
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.post(ctx, pathLogout, token, struct{}{}, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, endpoint, token string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	return c.do(c.getClient, req, endpoint, token, result)
}

func (c *Client) post(ctx context.Context, endpoint, token string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(c.httpClient, req, endpoint, token, result)
}

// do sends req and unwraps the response envelope into result.
func (c *Client) do(client *http.Client, req *http.Request, endpoint, token string, result interface{}) error {
	req.Header.Set("Accept", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request to %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}

	if !gjson.ValidBytes(respBody) {
		return fmt.Errorf("%w: %s returned status %d: %s", apperrors.ErrAPIResponse, endpoint, resp.StatusCode, sanitizeResponseBody(respBody))
	}

	envelope := gjson.ParseBytes(respBody)
	success := envelope.Get("success")

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !success.Bool() {
		msg := envelope.Get("message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}

		return &APIError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Code:     envelope.Get("code").Int(),
			Message:  msg,
		}
	}

	if result == nil {
		return nil
	}

	data := envelope.Get("data")
	if !data.Exists() {
		return fmt.Errorf("%w: %s response has no data", apperrors.ErrAPIResponse, endpoint)
	}

	if err := json.Unmarshal([]byte(data.Raw), result); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %w", apperrors.ErrAPIResponse, endpoint, err)
	}

	return nil
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
