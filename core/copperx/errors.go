package copperx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized reports an expired or rejected bearer credential.
var ErrUnauthorized = errors.New("copperx: unauthorized")

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("copperx %s: %d %s", e.Op, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Code returns a compact log code.
func (e *APIError) Code() string {
	if e.Status == http.StatusUnauthorized {
		return "UNAUTHORIZED"
	}
	return "UPSTREAM_" + strconv.Itoa(e.Status)
}

// RateLimitError is a 429 response. RetryAfter is zero when the gateway gave no hint.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("copperx %s: rate limited (retry after %s)", e.Op, e.RetryAfter)
}

// Code returns a compact log code.
func (e *RateLimitError) Code() string { return "RATE_LIMITED" }

// Class is the coarse failure category flows react to.
type Class int

const (
	ClassNone Class = iota
	ClassUnauthorized
	ClassRateLimited
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// Classify maps err onto the flow-level taxonomy.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, ErrUnauthorized) {
		return ClassUnauthorized
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	return ClassOther
}

// RetryAfter extracts the retry hint of a rate-limited error.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// UserMessage returns the failure reason suitable for showing to the user verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.Status)
	}
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.Message != "" {
		return rl.Message
	}
	return err.Error()
}

// ErrorCode returns a log code for any error.
func ErrorCode(err error) string {
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		return coder.Code()
	}
	if err != nil {
		return "INTERNAL"
	}
	return ""
}

type errorBody struct {
	Message    json.RawMessage `json:"message"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error"`
}

// parseErrorMessage reads {message, statusCode, error}; message may be a string or a list.
func parseErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(eb.Message) > 0 {
		var s string
		if err := json.Unmarshal(eb.Message, &s); err == nil && s != "" {
			return s
		}
		var list []string
		if err := json.Unmarshal(eb.Message, &list); err == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	return eb.Error
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
