// Package llm is the completion capability the context pipeline depends on:
// prompt in, text out, may fail or time out.
//
// Adapters classify every failure into one of three kinds so callers can
// react without knowing the provider:
//
//	ErrTimeout    the call did not finish in time (deadline, cancellation, 408/504)
//	ErrProvider   the provider was unreachable or rejected the request
//	ErrMalformed  the provider answered but with no usable text
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrTimeout   = errors.New("completion timed out")
	ErrProvider  = errors.New("completion provider failed")
	ErrMalformed = errors.New("completion returned malformed output")
)

// Request is a single completion call.
type Request struct {
	// System holds the instructions sent as the system prompt.
	System string

	// Prompt is the user-role content.
	Prompt string

	MaxTokens   int64
	Temperature float64

	// Stream, when set, receives text deltas as they arrive. The full text
	// is still returned by Complete.
	Stream func(chunk string)
}

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the provider in health output and logs.
	Name() string
}

// classify wraps err with its failure kind. statusCode is the provider's
// HTTP status when known, otherwise 0.
func classify(ctx context.Context, err error, statusCode int) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// checkText rejects blank completions.
func checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrMalformed)
	}
	return text, nil
}

// Kind returns a short label for err's failure kind, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "unknown"
	}
}
