package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// GenericFailure is shown when the server declares a failure without detail.
const GenericFailure = "unknown error"

// maxSnippet bounds how much raw server output reaches the user.
const maxSnippet = 100

// TransportError means the request never reached the server or no response
// came back.
type TransportError struct {
	Op      string
	Err     error
	Timeout time.Duration // non-zero when the bounded wait expired
}

func (e *TransportError) Error() string {
	if e.TimedOut() {
		return fmt.Sprintf("network error: %s timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimedOut reports whether the request was abandoned by the client timeout.
func (e *TransportError) TimedOut() bool {
	if e.Timeout == 0 {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ProtocolError means a response arrived but it was not the expected JSON
// envelope.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       []byte
	Reason     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unreadable server response (HTTP %d, %s): %s", e.StatusCode, e.Reason, Snippet(string(e.Body)))
}

// DeclaredError is a well-formed response whose status is not "success".
type DeclaredError struct {
	Op         string
	StatusCode int
	Detail     string
	Logs       string
}

func (e *DeclaredError) Error() string {
	if e.Detail == "" {
		return GenericFailure
	}
	return e.Detail
}

// Message renders err as the bounded text a view shows to the operator.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	var pe *ProtocolError
	var de *DeclaredError
	switch {
	case errors.As(err, &te), errors.As(err, &pe), errors.As(err, &de):
		return err.Error()
	}
	return Snippet(err.Error())
}

// Snippet trims s and truncates it to a bounded number of runes.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxSnippet {
		return s
	}
	r := []rune(s)
	return string(r[:maxSnippet]) + "..."
}
