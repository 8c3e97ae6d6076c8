package backai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstream       = errors.New("upstream error")
	ErrInternal       = errors.New("internal error")
)

const fallbackMessage = "Internal server error"

// Error carries one of the kinds above plus the client-facing message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	case e.Message == "" || e.Message == e.Err.Error():
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidRequest(message string) error {
	return &Error{Kind: ErrInvalidRequest, Message: message}
}

// upstream passes the collaborator's message through to the client.
func upstream(err error) error {
	return &Error{Kind: ErrUpstream, Message: err.Error(), Err: err}
}

func internal(message string, err error) error {
	return &Error{Kind: ErrInternal, Message: message, Err: err}
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text reported to clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallbackMessage
}
