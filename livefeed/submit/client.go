package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client posts answers to a puzzle page.
type Client struct {
	pageURL       string
	csrfToken     string
	sessionCookie string
	httpClient    *http.Client
}

// NewClient creates a client for the puzzle page at pageURL.
func NewClient(pageURL string) *Client {
	return &Client{
		pageURL: pageURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetHTTPClientTimeout bounds each submission round trip.
func (c *Client) SetHTTPClientTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetCSRFToken sets the token sent in the X-CSRFToken header and csrftoken cookie.
func (c *Client) SetCSRFToken(token string) {
	c.csrfToken = token
}

// SetSessionCookie sets the sessionid cookie identifying the participant.
func (c *Client) SetSessionCookie(session string) {
	c.sessionCookie = session
}

// APIError is a non-2xx reply to a submission.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("http error: %s (status %d)", e.Body, e.StatusCode)
}

// IsTooFast reports whether err is the server refusing a guess inside the cooldown.
func IsTooFast(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeTooFast
}

// IsAlreadyAnswered reports whether err is the server refusing a guess for a solved puzzle.
func IsAlreadyAnswered(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeAlreadyAnswered
}

// Submit posts one answer as a form-encoded body to the page URL.
func (c *Client) Submit(ctx context.Context, answer string) (*Response, error) {
	form := url.Values{"answer": {answer}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.csrfToken})
	}
	if c.sessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.sessionCookie})
	}

	var resp Response
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.Code = errResp.Error
		}
		return apiErr
	}

	// The server can report refusal with a 200 and an error body.
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Error, Body: string(body)}
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
