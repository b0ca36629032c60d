package provider

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// SoftErrorKind classifies an error reported inside a 200 response body.
type SoftErrorKind string

const (
	KindRateLimit  SoftErrorKind = "rate_limit"
	KindAuth       SoftErrorKind = "auth"
	KindAccess     SoftErrorKind = "access"
	KindValidation SoftErrorKind = "validation"
)

// SoftError is returned when the provider answers 200 but the envelope
// carries a non-empty errors object.
type SoftError struct {
	Endpoint string
	Kind     SoftErrorKind
	Message  string
}

func (e *SoftError) Error() string {
	return fmt.Sprintf("provider %s error on %s: %s", e.Kind, e.Endpoint, e.Message)
}

// RequestError covers transport failures, non-200 responses and bodies that
// could not be parsed.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s failed with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request %s failed: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// classifySoftError inspects the envelope errors field. The provider sends
// either an empty array or an object keyed by error name.
func classifySoftError(endpoint string, raw []byte) *SoftError {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := jsoniter.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	var parts []string
	switch v := decoded.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, v[k]))
		}
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	msg := strings.Join(parts, "; ")
	return &SoftError{Endpoint: endpoint, Kind: softErrorKind(msg), Message: msg}
}

func softErrorKind(msg string) SoftErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "ratelimit"), strings.Contains(m, "rate limit"),
		strings.Contains(m, "too many requests"), strings.Contains(m, "request limit"),
		strings.Contains(m, "requests"):
		return KindRateLimit
	case strings.Contains(m, "token"), strings.Contains(m, "key"), strings.Contains(m, "auth"):
		return KindAuth
	case strings.Contains(m, "access"), strings.Contains(m, "plan"),
		strings.Contains(m, "subscription"), strings.Contains(m, "suspended"):
		return KindAccess
	default:
		return KindValidation
	}
}
