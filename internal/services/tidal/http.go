package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cratesync/internal/services"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError reports a non-success HTTP response. It unwraps to the services
// marker matching the status code.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Code
	}
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	return fmt.Sprintf("tidal %s %s returned %d: %s", e.Method, e.Path, e.Status, detail)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return services.ErrNotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return services.ErrAuthentication
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return services.ErrTransient
	case e.Status == http.StatusPreconditionFailed:
		return services.ErrRemoteStale
	default:
		return services.ErrValidation
	}
}

// statusCode extracts the OAuth error code from err, if it is a StatusError.
func statusCode(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return ""
}

type apiRequest struct {
	method  string
	base    string
	path    string
	query   url.Values
	form    url.Values
	headers map[string]string
	// token is sent as a bearer credential when set.
	token string
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	UserMessage      string `json:"userMessage"`
	SubStatus        int    `json:"subStatus"`
}

func (c *Client) send(ctx context.Context, req apiRequest, out any) (http.Header, error) {
	target := strings.TrimRight(req.base, "/") + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		if strings.TrimSpace(v) == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrInterrupted, "tidal", req.path, "request cancelled", ctx.Err())
		}
		return nil, services.Wrap(services.ErrTransient, "tidal", req.path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Method: req.method, Path: req.path, Status: resp.StatusCode}
		var payload errorPayload
		if json.Unmarshal(raw, &payload) == nil {
			statusErr.Code = payload.Error
			statusErr.Message = firstNonEmpty(payload.UserMessage, payload.ErrorDescription)
		} else {
			statusErr.Message = strings.TrimSpace(string(raw))
		}
		return resp.Header, statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, services.Wrap(services.ErrMalformed, "tidal", req.path, "decode response", err)
	}
	return resp.Header, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
