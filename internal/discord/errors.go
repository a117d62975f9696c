// Package discord is the object-store adapter: it persists chunk blobs as
// attachment messages in Discord channels and fetches them back from the
// CDN. It is the only package that talks to the external store. Methods
// never mutate local state, so every one of them is safely retryable at the
// caller.
package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Sentinel errors for upstream status classification.
// Use errors.Is(err, discord.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("discord: bad request")
	ErrUnauthorized = errors.New("discord: unauthorized")
	ErrForbidden    = errors.New("discord: forbidden")
	ErrNotFound     = errors.New("discord: not found")
	ErrGone         = errors.New("discord: resource gone")
	ErrThrottled    = errors.New("discord: rate limited")
	ErrServerError  = errors.New("discord: server error")
)

// UpstreamError wraps a sentinel error with the HTTP status code and
// response body from the external store.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("discord: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// wrapREST converts a discordgo error into an UpstreamError, preserving the
// upstream status and body. Non-REST errors (network, context) pass through.
func wrapREST(err error) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return &UpstreamError{
			StatusCode: restErr.Response.StatusCode,
			Body:       string(restErr.ResponseBody),
			Err:        classifyStatus(restErr.Response.StatusCode),
		}
	}

	return err
}

// IsMissing reports whether err means the external record no longer exists.
// Best-effort cleanup treats this as success.
func IsMissing(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone)
}
