// Package browser launches headless browsers and hands out fully loaded pages
// whose documents can be evaluated in place.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Supported engine names.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

const defaultNavTimeout = 30 * time.Second

var (
	// ErrLaunch wraps failures to start or attach to a browser process.
	ErrLaunch = errors.New("launch browser")
	// ErrNavigation wraps failures to load the requested URL.
	ErrNavigation = errors.New("navigation failed")
	// ErrUnknownEngine is returned by New for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown browser engine")
)

// Config controls how browsers are launched and pages are loaded.
type Config struct {
	Engine            string
	ExecPath          string
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	NavigationTimeout time.Duration
}

// Loader opens a URL in a freshly launched browser.
type Loader interface {
	Open(ctx context.Context, rawURL string) (Page, error)
}

// Page is a loaded document backed by its own browser process. Close must be
// called on every path once Open has succeeded.
type Page interface {
	Evaluate(ctx context.Context, fn string, out any, args ...any) error
	Close() error
}

// New returns the Loader for cfg.Engine.
func New(cfg Config, logger *zap.Logger) (Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Engine) {
	case "", EngineChromedp:
		return NewChromedp(cfg, logger), nil
	case EngineRod:
		return NewRod(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

func (c Config) navTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return defaultNavTimeout
}

// sessions counts browser processes that were started and not yet closed.
type sessions struct {
	live atomic.Int64
}

func (s *sessions) open() { s.live.Add(1) }

func (s *sessions) done() { s.live.Add(-1) }

// Live returns the number of browser sessions still open.
func (s *sessions) Live() int64 {
	return s.live.Load()
}

// callExpression renders fn applied to JSON-encoded args.
func callExpression(fn string, args []any) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		encoded = append(encoded, string(data))
	}
	return "(" + fn + ")(" + strings.Join(encoded, ", ") + ")", nil
}

func decodeResult(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// forwardCancel cancels the child task when parent is done.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
