// Package errnorm reduces failed request outcomes (an HTTP status with an
// arbitrary body, or a transport failure) to one canonical error shape and
// reports them as user-visible notifications.
package errnorm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// FallbackMessage is used when neither the body nor the status yields text.
const FallbackMessage = "Some error occurred"

// NetworkErrorMessage is the single message for transport failures.
const NetworkErrorMessage = "Network error"

// maxBodySize bounds how much of an error body is read.
const maxBodySize = 1 << 20

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Bad request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusNotFound:            "Object not found",
	http.StatusInternalServerError: "Internal server error",
	http.StatusServiceUnavailable:  "Service Unavailable - the server is temporarily unavailable. Try again later.",
}

// Sentinels matched by errors.Is against an *Error.
var (
	ErrTransient   = errors.New("transient server error")
	ErrClient      = errors.New("client error")
	ErrAuthExpired = errors.New("authentication expired")
	ErrServerFault = errors.New("server fault")
	ErrNetwork     = errors.New("network error")
)

// Kind classifies a failure.
type Kind int

const (
	KindClient Kind = iota
	KindAuthExpired
	KindTransientServer
	KindServerFault
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindTransientServer:
		return "transient"
	case KindServerFault:
		return "server_fault"
	case KindNetwork:
		return "network"
	default:
		return "client"
	}
}

// Error is a normalized request failure.
type Error struct {
	// StatusCode is zero for network errors.
	StatusCode     int
	Messages       []string
	Details        []Detail
	IsNetworkError bool

	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.IsNetworkError {
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

func (e *Error) Unwrap() error { return e.Err }

// Kind classifies the failure by status code.
func (e *Error) Kind() Kind {
	switch {
	case e.IsNetworkError:
		return KindNetwork
	case e.StatusCode == http.StatusUnauthorized:
		return KindAuthExpired
	case e.StatusCode == http.StatusServiceUnavailable:
		return KindTransientServer
	case e.StatusCode >= 500:
		return KindServerFault
	default:
		return KindClient
	}
}

// Is lets errors.Is match the sentinel for this error's kind. Network
// errors also match ErrTransient.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrClient:
		return e.Kind() == KindClient
	case ErrAuthExpired:
		return e.Kind() == KindAuthExpired
	case ErrTransient:
		return e.Kind() == KindTransientServer || e.Kind() == KindNetwork
	case ErrServerFault:
		return e.Kind() == KindServerFault
	case ErrNetwork:
		return e.Kind() == KindNetwork
	}
	return false
}

// NetworkError normalizes a failure that produced no response at all.
func NetworkError(err error) *Error {
	return &Error{
		Messages:       []string{NetworkErrorMessage},
		Details:        []Detail{{Kind: DetailGeneric, Text: NetworkErrorMessage}},
		IsNetworkError: true,
		Err:            err,
	}
}

// Normalize reads and closes the response body and normalizes it.
func Normalize(resp *http.Response) *Error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		body = nil
	}
	return FromBody(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// FromBody normalizes a status code and body.
func FromBody(status int, contentType string, body []byte) *Error {
	details := extract(contentType, body)
	if len(details) == 0 {
		text, ok := statusMessages[status]
		if !ok {
			text = FallbackMessage
		}
		details = []Detail{{Kind: DetailGeneric, Text: text}}
	}

	messages := make([]string, len(details))
	for i, d := range details {
		messages[i] = d.Message()
	}

	return &Error{StatusCode: status, Messages: messages, Details: details}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// extract returns nil when the body carries no usable message.
func extract(contentType string, body []byte) []Detail {
	if isJSON(contentType) {
		var payload any
		if err := json.Unmarshal(body, &payload); err == nil {
			return fromPayload(payload)
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil
	}
	return []Detail{{Kind: DetailGeneric, Text: text}}
}

func fromPayload(payload any) []Detail {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	for _, field := range []string{"error", "message", "detail"} {
		value, present := obj[field]
		if !present || isEmpty(value) {
			continue
		}

		if list, ok := value.([]any); ok {
			details := make([]Detail, 0, len(list))
			for _, entry := range list {
				details = append(details, expandEntry(entry))
			}
			return details
		}
		return []Detail{{Kind: DetailGeneric, Text: stringify(value)}}
	}

	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case bool:
		return !t
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
