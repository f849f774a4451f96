package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tradesense/tradesense-go/auth"
	tshttp "github.com/tradesense/tradesense-go/http"
)

// Kind classifies a normalized error
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
	KindUnknown      Kind = "unknown"
)

// User-facing messages for failures that carry none of their own
const (
	MessageNetwork        = "Network error. Please check your connection."
	MessageSessionExpired = "Your session has expired. Please log in again."
	MessageUnknown        = "An unexpected error occurred"
	MessageRetry          = "Your session was renewed. Please try again."
)

// Error is the normalized shape of a failed call
type Error struct {
	Kind       Kind        `json:"kind"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code,omitempty"`
	Fields     FieldErrors `json:"fields,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the original failure
func (e *Error) Unwrap() error {
	return e.cause
}

// Normalize maps err onto an Error. It has no side effects and returns nil
// for a nil err.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var normalized *Error
	if errors.As(err, &normalized) {
		return normalized
	}

	if fields, ok := fieldErrors(err); ok {
		return &Error{Kind: KindValidation, Message: fields.Join(), Fields: fields, cause: err}
	}

	if errors.Is(err, auth.ErrRequestNotReplayable) {
		return &Error{Kind: KindUnauthorized, Message: MessageRetry, cause: err}
	}
	if tshttp.IsErrorType(err, tshttp.SessionError) || errors.Is(err, auth.ErrSessionExpired) {
		return &Error{Kind: KindUnauthorized, Message: MessageSessionExpired, cause: err}
	}

	if statusErr, ok := tshttp.AsStatusError(err); ok {
		return fromStatus(statusErr, err)
	}

	if tshttp.IsErrorType(err, tshttp.NetworkError) || tshttp.IsErrorType(err, tshttp.TimeoutError) {
		return &Error{Kind: KindNetwork, Message: MessageNetwork, cause: err}
	}

	if tshttp.IsErrorType(err, tshttp.ValidationError) {
		return &Error{Kind: KindValidation, Message: err.Error(), cause: err}
	}

	msg := err.Error()
	if strings.TrimSpace(msg) == "" {
		msg = MessageUnknown
	}
	return &Error{Kind: KindUnknown, Message: msg, cause: err}
}

// Message returns the user-facing message for err, "" for nil
func Message(err error) string {
	if n := Normalize(err); n != nil {
		return n.Message
	}
	return ""
}

func fieldErrors(err error) (FieldErrors, bool) {
	var fields FieldErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		return fields, true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return FromValidator(verrs), true
	}
	return nil, false
}

// envelope is the error body the TradeSense API sends
type envelope struct {
	Message any            `json:"message"`
	Error   any            `json:"error"`
	Errors  map[string]any `json:"errors"`
}

func fromStatus(statusErr tshttp.StatusError, cause error) *Error {
	status := statusErr.StatusCode()
	body := strings.TrimSpace(string(statusErr.Body()))

	if body != "" {
		var env envelope
		if err := json.Unmarshal([]byte(body), &env); err == nil {
			if fields := flattenFields(env.Errors); len(fields) > 0 {
				return &Error{Kind: KindValidation, Message: fields.Join(), StatusCode: status, Fields: fields, cause: cause}
			}
			if msg := firstString(env.Message, env.Error); msg != "" {
				return &Error{Kind: KindServer, Message: msg, StatusCode: status, cause: cause}
			}
		} else {
			var plain string
			if err := json.Unmarshal([]byte(body), &plain); err == nil {
				if plain != "" {
					return &Error{Kind: KindServer, Message: plain, StatusCode: status, cause: cause}
				}
			} else if !strings.HasPrefix(body, "<") && !json.Valid([]byte(body)) {
				return &Error{Kind: KindServer, Message: body, StatusCode: status, cause: cause}
			}
		}
	}

	kind := KindServer
	if status == 401 {
		kind = KindUnauthorized
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("Server error: %d", status), StatusCode: status, cause: cause}
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// flattenFields accepts {"field": ["msg"]}, {"field": "msg"} and nested
// objects, which become "parent.child" keys.
func flattenFields(raw map[string]any) FieldErrors {
	if len(raw) == 0 {
		return nil
	}
	out := make(FieldErrors)
	flattenInto(out, "", raw)
	if len(out) == 0 {
		return nil
	}
	return out
}

func flattenInto(out FieldErrors, prefix string, raw map[string]any) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field := k
		if prefix != "" {
			field = prefix + "." + k
		}
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				out.Add(field, v)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out.Add(field, s)
				}
			}
		case map[string]any:
			flattenInto(out, field, v)
		}
	}
}
