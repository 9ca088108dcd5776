package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// rodIdleWindow is how long the page must go without in-flight requests.
const rodIdleWindow = 500 * time.Millisecond

// RodLoader launches a dedicated Chromium process per Open via go-rod.
type RodLoader struct {
	sessions
	cfg      Config
	logger   *zap.Logger
	lookPath func() (string, bool)
}

// NewRod creates a go-rod backed Loader.
func NewRod(cfg Config, logger *zap.Logger) *RodLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodLoader{cfg: cfg, logger: logger, lookPath: launcher.LookPath}
}

// binary resolves the browser executable. It never falls back to the
// launcher's Chromium download.
func (l *RodLoader) binary() (string, error) {
	if l.cfg.ExecPath != "" {
		return l.cfg.ExecPath, nil
	}
	if path, ok := l.lookPath(); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: no Chrome or Chromium binary found", ErrLaunch)
}

func (l *RodLoader) newLauncher(ctx context.Context, bin string) *launcher.Launcher {
	return launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
}

// Open launches Chromium, navigates to rawURL and waits for request idle.
// Anything started is torn down before an error is returned.
func (l *RodLoader) Open(ctx context.Context, rawURL string) (Page, error) {
	bin, err := l.binary()
	if err != nil {
		return nil, err
	}

	l.open()
	p := &rodPage{
		launcher: l.newLauncher(ctx, bin),
		sessions: &l.sessions,
		logger:   l.logger.With(zap.String("url", rawURL)),
	}

	controlURL, err := p.launcher.Launch()
	if err != nil {
		p.closeQuietly()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	p.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := p.browser.Connect(); err != nil {
		p.closeQuietly()
		return nil, fmt.Errorf("%w: connect: %w", ErrLaunch, err)
	}
	p.logger.Debug("browser launched")

	p.page, err = p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		p.closeQuietly()
		return nil, fmt.Errorf("%w: open tab: %w", ErrLaunch, err)
	}
	if l.cfg.UserAgent != "" {
		if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.cfg.UserAgent}); err != nil {
			p.closeQuietly()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}

	if err := p.navigate(rawURL, l.cfg.navTimeout()); err != nil {
		p.closeQuietly()
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, rawURL, err)
	}
	return p, nil
}

type rodPage struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	sessions *sessions
	logger   *zap.Logger
	once     sync.Once
}

func (p *rodPage) navigate(rawURL string, timeout time.Duration) error {
	timed := p.page.Timeout(timeout)
	defer timed.CancelTimeout()

	waitIdle := timed.WaitRequestIdle(rodIdleWindow, nil, nil, nil)
	if err := timed.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := timed.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	waitIdle()
	if err := timed.GetContext().Err(); err != nil {
		return fmt.Errorf("wait for network idle: %w", err)
	}
	return nil
}

// Evaluate runs fn(args...) in the page and decodes the result into out.
func (p *rodPage) Evaluate(ctx context.Context, fn string, out any, args ...any) error {
	obj, err := p.page.Context(ctx).Evaluate(rod.Eval(fn, args...))
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	raw, err := json.Marshal(obj.Value)
	if err != nil {
		return fmt.Errorf("encode evaluation result: %w", err)
	}
	return decodeResult(raw, out)
}

// Close shuts the browser down, killing the process when a graceful close is
// not possible, and waits for it to exit.
func (p *rodPage) Close() error {
	var err error
	p.once.Do(func() {
		graceful := false
		if p.browser != nil {
			if cerr := p.browser.Close(); cerr != nil {
				err = fmt.Errorf("close browser: %w", cerr)
			} else {
				graceful = true
			}
		}
		if !graceful {
			p.launcher.Kill()
		}
		// A pid means the process was started, so its user-data-dir may
		// exist even when Launch failed afterwards.
		if p.launcher.PID() != 0 {
			p.launcher.Cleanup()
		}
		p.sessions.done()
		p.logger.Debug("browser closed")
	})
	return err
}

func (p *rodPage) closeQuietly() {
	if err := p.Close(); err != nil {
		p.logger.Warn("browser teardown failed", zap.Error(err))
	}
}
