package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fjod/go_checkout/internal/domain"
)

// Backend error codes with a meaning of their own.
const (
	CodeOrderExpired     = "ORDER_EXPIRED"
	CodeNoBotsAvailable  = "NO_BOTS_AVAILABLE"
	CodeValidationFailed = "VALIDATION_ERROR"
)

// ErrInvalidIdentifier is returned before any request is sent when an id
// cannot be used as a single path segment.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// apiPath appends each segment to base, escaped, so an identifier can never
// leave the resource it names.
func apiPath(base string, segments ...string) (string, error) {
	var b strings.Builder
	b.WriteString(base)
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "/\\") {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, seg)
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String(), nil
}

// APIError is a non-2xx answer from a collaborator. Backends reply with
// {"error": {"code", "message", "details"}}; other bodies end up in Message.
type APIError struct {
	Service string
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d: %s", e.Service, e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details,omitempty"`
	} `json:"error"`
}

func decodeAPIError(service string, status int, body []byte) *APIError {
	apiErr := &APIError{Service: service, Status: status}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Code != "" || env.Error.Message != "") {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// CodeOf returns the backend error code carried by err, if any.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type botDetails struct {
	AvailableBots []domain.Bot `json:"available_bots"`
}

// mapDomainError turns the backend codes the core reacts to into domain
// errors. Anything else is returned unchanged.
func mapDomainError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case CodeOrderExpired:
		return fmt.Errorf("%w: %w", domain.ErrOrderExpired, err)
	case CodeNoBotsAvailable:
		var details botDetails
		if len(apiErr.Details) > 0 {
			_ = json.Unmarshal(apiErr.Details, &details)
		}
		return &domain.Error{
			Kind:    domain.KindBotsUnavailable,
			Message: apiErr.Message,
			Bots:    details.AvailableBots,
			Err:     err,
		}
	}
	return err
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
