package fluxsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Messages shown to users for failures that carry no useful server text.
const (
	ForbiddenMessage  = "You do not have permission to perform this action."
	TransportMessage  = "Unable to connect to server. Please check your connection."
	UnexpectedMessage = "An unexpected error occurred."
)

var (
	ErrUnauthorized = errors.New("fluxsdk: unauthorized")
	ErrForbidden    = errors.New("fluxsdk: forbidden")
	ErrNotFound     = errors.New("fluxsdk: not found")

	// ErrTransport wraps failures where no response reached the client.
	ErrTransport = errors.New("fluxsdk: transport failure")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int

	// Message is safe to show to a user.
	Message string

	// Detail is the server's own explanation, when it sent one.
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fluxsdk: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// UserMessage returns the text to show a user for err.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrTransport):
		return TransportMessage
	default:
		return UnexpectedMessage
	}
}

// errorBody covers the shapes the API uses: FastAPI's {"detail": "..."},
// its validation form {"detail": [{"msg": "..."}]}, and {"message": "..."}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		detail = detailText(eb.Detail)
		if detail == "" {
			detail = eb.Message
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    detail,
		Detail:     detail,
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Server error: %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusForbidden {
		apiErr.Message = ForbiddenMessage
	}
	return apiErr
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
