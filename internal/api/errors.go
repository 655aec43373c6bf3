package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingToken             = errors.New("missing access token")
	ErrInvalidAccomplishmentID  = errors.New("invalid accomplishment id")
	ErrUnknownGoalShape         = errors.New("unrecognized goal response")
	ErrMissingCredential        = errors.New("response carries no verifiable credential")
	ErrMissingAccomplishmentRef = errors.New("response carries no accomplishment id")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func newStatusError(code int, body []byte) error {
	return &StatusError{
		Code:    code,
		Message: detailMessage(body),
	}
}

// The backend reports failures as {"detail": "..."}; validation failures
// carry a list of objects instead of a string.
func detailMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(body))
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 401
}
