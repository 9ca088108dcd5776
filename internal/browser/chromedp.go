package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Chrome lifecycle event fired once the main frame has had at most two
// in-flight connections for 500ms.
const lifecycleNetworkAlmostIdle = "networkAlmostIdle"

// ChromedpLoader launches a dedicated Chrome process per Open via chromedp.
type ChromedpLoader struct {
	sessions
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a chromedp-backed Loader.
func NewChromedp(cfg Config, logger *zap.Logger) *ChromedpLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpLoader{cfg: cfg, logger: logger}
}

func (l *ChromedpLoader) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", l.cfg.NoSandbox),
		chromedp.Flag("disable-setuid-sandbox", l.cfg.NoSandbox),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	return opts
}

// Open launches Chrome, navigates to rawURL and waits for the network to
// settle. Anything started is torn down before an error is returned.
func (l *ChromedpLoader) Open(ctx context.Context, rawURL string) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	l.open()
	p := &chromedpPage{
		ctx:           browserCtx,
		cancelBrowser: browserCancel,
		cancelAlloc:   allocCancel,
		sessions:      &l.sessions,
		logger:        l.logger.With(zap.String("url", rawURL)),
	}

	if err := chromedp.Run(browserCtx); err != nil {
		p.abort()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	p.logger.Debug("browser launched")

	if err := p.navigate(ctx, rawURL, l.cfg.navTimeout()); err != nil {
		p.closeQuietly()
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, rawURL, err)
	}
	return p, nil
}

type chromedpPage struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	sessions      *sessions
	logger        *zap.Logger
	once          sync.Once
}

func (p *chromedpPage) navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	idle := newIdleWatcher()
	chromedp.ListenTarget(navCtx, idle.handle)

	err := chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
				return fmt.Errorf("enable lifecycle events: %w", err)
			}
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			idle.watchFrame(tree.Frame.ID)
			return nil
		}),
		chromedp.Navigate(rawURL),
		chromedp.ActionFunc(idle.wait),
	)
	if err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Evaluate runs fn(args...) in the page and decodes the result into out.
func (p *chromedpPage) Evaluate(ctx context.Context, fn string, out any, args ...any) error {
	expr, err := callExpression(fn, args)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var raw []byte
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &raw)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return decodeResult(raw, out)
}

// abort releases a page whose browser never came up. chromedp.Cancel must
// not be combined with the NewContext cancel func after a failed
// allocation: both wait on the same allocation token and the second never
// returns.
func (p *chromedpPage) abort() {
	p.once.Do(func() {
		p.cancelBrowser()
		p.cancelAlloc()
		p.sessions.done()
		p.logger.Debug("browser launch aborted")
	})
}

// Close shuts the browser down and waits for the process to exit.
func (p *chromedpPage) Close() error {
	var err error
	p.once.Do(func() {
		if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close browser: %w", cerr)
		}
		p.cancelBrowser()
		p.cancelAlloc()
		p.sessions.done()
		p.logger.Debug("browser closed")
	})
	return err
}

func (p *chromedpPage) closeQuietly() {
	if err := p.Close(); err != nil {
		p.logger.Warn("browser teardown failed", zap.Error(err))
	}
}

// idleWatcher tracks lifecycle events of the main frame for the most recent
// document load.
type idleWatcher struct {
	mu        sync.Mutex
	mainFrame cdp.FrameID
	loaderID  cdp.LoaderID
	idle      bool
	signal    chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{signal: make(chan struct{}, 1)}
}

func (w *idleWatcher) watchFrame(id cdp.FrameID) {
	w.mu.Lock()
	w.mainFrame = id
	w.mu.Unlock()
}

func (w *idleWatcher) handle(ev any) {
	evt, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mainFrame == "" || evt.FrameID != w.mainFrame {
		return
	}
	switch evt.Name {
	case "init":
		w.loaderID = evt.LoaderID
		w.idle = false
	case lifecycleNetworkAlmostIdle:
		if evt.LoaderID != w.loaderID {
			return
		}
		w.idle = true
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}

func (w *idleWatcher) isIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle && w.loaderID != ""
}

func (w *idleWatcher) wait(ctx context.Context) error {
	for !w.isIdle() {
		select {
		case <-w.signal:
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	}
	return nil
}
