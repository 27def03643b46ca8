package cosy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthentication    = errors.New("cosy authentication failed")
	ErrNotFound          = errors.New("cosy resource not found")
	ErrDataUnavailable   = errors.New("cosy data unavailable")
	ErrConnection        = errors.New("cosy connection failed")
	ErrNotReady          = errors.New("cosy client not ready")
	ErrUnsupportedPreset = errors.New("unsupported cosy preset")
)

// AuthenticationError means the vendor rejected the credentials or token.
type AuthenticationError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e AuthenticationError) Error() string {
	msg := fmt.Sprintf("cosy authentication rejected on %s (status %d)", e.Endpoint, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

func (e AuthenticationError) Unwrap() error { return ErrAuthentication }

// NotFoundError means the account has nothing registered for the lookup.
type NotFoundError struct {
	Endpoint string
	What     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("cosy %s not found via %s", e.What, e.Endpoint)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// DataUnavailableError means a well-formed response lacked an expected field.
type DataUnavailableError struct {
	Endpoint string
	Field    string
}

func (e DataUnavailableError) Error() string {
	return fmt.Sprintf("cosy %s missing from %s response", e.Field, e.Endpoint)
}

func (e DataUnavailableError) Unwrap() error { return ErrDataUnavailable }

// ConnectionError covers transport failures, malformed payloads, and
// unexpected HTTP statuses. Status is zero when no response was received.
type ConnectionError struct {
	Method   string
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e ConnectionError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("cosy request %s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("cosy api error %d on %s %s: %v", e.Status, e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("cosy api error %d on %s %s: %s", e.Status, e.Method, e.Endpoint, strings.TrimSpace(e.Body))
}

func (e ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e ConnectionError) Unwrap() error { return e.Err }

// NotReadyError means an operation ran before login or system lookup.
type NotReadyError struct {
	What string
}

func (e NotReadyError) Error() string {
	return fmt.Sprintf("cosy %s not available yet", e.What)
}

func (e NotReadyError) Unwrap() error { return ErrNotReady }
