package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scout/internal/recipe"
	"scout/internal/variables"
)

// ErrRequestFailed marks api_request failures.
var ErrRequestFailed = errors.New("api request failed")

const excerptLen = 200

// RequestError describes a failed api_request.
type RequestError struct {
	Method  string
	URL     string
	Status  int // 0 when no response was received
	Excerpt string
	Err     error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" (body: %q)", e.Excerpt)
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRequestFailed}
	}
	return []error{ErrRequestFailed, e.Err}
}

// apiRequest performs an HTTP call and stores the parsed JSON response. Every
// failure yields an empty object.
func (e *Executor) apiRequest(ctx context.Context, step recipe.Step) (variables.Value, error) {
	if step.URL == "" {
		return variables.EmptyObject(), missing(step.Command, "url")
	}
	target := e.resolve(step.URL)
	method := strings.ToUpper(step.Config.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	payload := e.resolve(step.Config.BodyTemplate())
	if payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return variables.EmptyObject(), &RequestError{Method: method, URL: target, Err: err}
	}
	for k, v := range step.Config.Headers {
		req.Header.Set(k, e.resolve(v))
	}
	if payload != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	e.logger.Debug("api request", "method", method, "url", target)
	resp, err := e.client.Do(req)
	if err != nil {
		return variables.EmptyObject(), &RequestError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return variables.EmptyObject(), &RequestError{Method: method, URL: target, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return variables.EmptyObject(), &RequestError{Method: method, URL: target, Status: resp.StatusCode, Excerpt: excerpt(data)}
	}
	if !json.Valid(data) {
		return variables.EmptyObject(), &RequestError{
			Method:  method,
			URL:     target,
			Status:  resp.StatusCode,
			Excerpt: excerpt(data),
			Err:     errors.New("response is not valid JSON"),
		}
	}
	return variables.JSON(data), nil
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > excerptLen {
		return s[:excerptLen] + "..."
	}
	return s
}
