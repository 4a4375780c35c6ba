package scraper

import (
	"errors"
	"fmt"
)

// maxBodyContext bounds how much of a response body is kept on errors.
const maxBodyContext = 512

// ErrUnparseable marks a page that was fetched but lacks the expected anchors.
var ErrUnparseable = errors.New("unparseable page")

// AuthError indicates the portal rejected one of the login steps.
type AuthError struct {
	Step       string // "phone" or "password"
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login %s step rejected: HTTP %d: %s", e.Step, e.StatusCode, e.Body)
}

// IsAuthError checks if an error is a login rejection.
func IsAuthError(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// RequestError indicates a failed portal request outside of login.
// Err is set for transport failures, StatusCode for non-2xx responses.
type RequestError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError checks if an error is a failed portal request.
func IsRequestError(err error) bool {
	var req *RequestError
	return errors.As(err, &req)
}

// ParseError reports which structural anchor was missing from a page.
type ParseError struct {
	What string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnparseable, e.What)
}

func (e *ParseError) Unwrap() error {
	return ErrUnparseable
}

func bodyContext(body []byte) string {
	if len(body) > maxBodyContext {
		return string(body[:maxBodyContext]) + "..."
	}
	return string(body)
}
