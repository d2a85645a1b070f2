// Package mock provides a scriptable llm.Completer for tests and offline
// runs.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/becomeliminal/travel-memory/llm"
)

// HandlerFunc answers one request.
type HandlerFunc func(ctx context.Context, req llm.Request) (string, error)

// Completer records every request and answers through its handler.
type Completer struct {
	mu       sync.Mutex
	handler  HandlerFunc
	requests []llm.Request
}

// New creates a completer answering with h.
func New(h HandlerFunc) *Completer {
	return &Completer{handler: h}
}

// Reply always answers text.
func Reply(text string) *Completer {
	return New(func(context.Context, llm.Request) (string, error) {
		return text, nil
	})
}

// Fail always fails with err.
func Fail(err error) *Completer {
	return New(func(context.Context, llm.Request) (string, error) {
		return "", err
	})
}

// Script answers replies in order, then repeats the last one.
func Script(replies ...string) *Completer {
	var (
		mu sync.Mutex
		i  int
	)
	return New(func(context.Context, llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return "", fmt.Errorf("%w: script exhausted", llm.ErrMalformed)
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	})
}

// Hang blocks until the request context ends and reports a timeout.
func Hang() *Completer {
	return New(func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", llm.ErrTimeout, ctx.Err())
	})
}

// Echo answers with a canned travel reply quoting the last prompt line.
// It backs the "mock" provider for offline runs.
func Echo() *Completer {
	return New(func(_ context.Context, req llm.Request) (string, error) {
		lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
		last := strings.TrimSpace(lines[len(lines)-1])
		return "Happy to help with your trip! You said: " + last, nil
	})
}

// SetHandler swaps the handler.
func (c *Completer) SetHandler(h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Complete records req and runs the handler. With a stream callback the
// whole answer is delivered as one chunk.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	h := c.handler
	c.mu.Unlock()

	text, err := h(ctx, req)
	if err != nil {
		return "", err
	}
	if req.Stream != nil {
		req.Stream(text)
	}
	return text, nil
}

func (c *Completer) Name() string {
	return "mock"
}

// Requests returns the requests seen so far.
func (c *Completer) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}

// Calls returns the number of requests seen so far.
func (c *Completer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

var _ llm.Completer = (*Completer)(nil)
