// Package scraper runs one full extraction: open the page in a dedicated
// browser, read fonts and the add-to-cart button, and tear the browser down.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/shopstyle/internal/browser"
	"github.com/JakeFAU/shopstyle/internal/extract"
	"github.com/JakeFAU/shopstyle/internal/metrics"
	"github.com/JakeFAU/shopstyle/internal/telemetry"
)

// Scraper coordinates a Loader and the extractors.
type Scraper struct {
	loader  browser.Loader
	logger  *zap.Logger
	tracer  trace.Tracer
	limiter chan struct{}
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithMaxParallel caps concurrent browser sessions. Zero means unbounded.
func WithMaxParallel(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.limiter = make(chan struct{}, n)
		}
	}
}

// WithTracer overrides the tracer used for pipeline spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scraper) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Scraper.
func New(loader browser.Loader, logger *zap.Logger, opts ...Option) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		loader: loader,
		logger: logger,
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape loads rawURL and extracts its fonts and primary button. Both
// extractors must succeed; the browser is closed on every path.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (extract.Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "scraper.Scrape", trace.WithAttributes(attribute.String("url.full", rawURL)))
	defer span.End()

	result, outcome, err := s.scrape(ctx, span, rawURL)
	metrics.ObserveScrape(outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return extract.Result{}, err
	}
	return result, nil
}

func (s *Scraper) scrape(ctx context.Context, span trace.Span, rawURL string) (extract.Result, string, error) {
	logger := s.logger.With(zap.String("url", rawURL), zap.String("site", metrics.SanitizeSite(rawURL)))

	if err := s.acquire(ctx); err != nil {
		return extract.Result{}, metrics.OutcomeCanceled, err
	}
	defer s.release()

	page, err := s.open(ctx, rawURL)
	if err != nil {
		return extract.Result{}, classify(ctx, err), err
	}
	metrics.IncBrowserSessions()
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("browser close failed", zap.Error(cerr))
		}
		metrics.DecBrowserSessions()
	}()

	fonts, err := s.fonts(ctx, page)
	if err != nil {
		return extract.Result{}, classify(ctx, err), err
	}
	match, err := s.button(ctx, page)
	if err != nil {
		return extract.Result{}, classify(ctx, err), err
	}

	metrics.ObserveFonts(len(fonts))
	metrics.ObserveButtonMatch(match.Selector)
	span.SetAttributes(
		attribute.Int("shopstyle.fonts", len(fonts)),
		attribute.String("shopstyle.button_selector", match.Selector),
	)
	logger.Debug("page scraped",
		zap.Int("fonts", len(fonts)),
		zap.String("button_selector", match.Selector),
	)
	return extract.Result{Fonts: fonts, PrimaryButton: match.Style}, metrics.OutcomeSuccess, nil
}

func (s *Scraper) open(ctx context.Context, rawURL string) (browser.Page, error) {
	ctx, span := s.tracer.Start(ctx, "browser.Open")
	defer span.End()
	page, err := s.loader.Open(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

func (s *Scraper) fonts(ctx context.Context, page extract.Evaluator) ([]extract.FontDescriptor, error) {
	ctx, span := s.tracer.Start(ctx, "extract.Fonts")
	defer span.End()
	fonts, err := extract.Fonts(ctx, page)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("extract fonts: %w", err)
	}
	return fonts, nil
}

func (s *Scraper) button(ctx context.Context, page extract.Evaluator) (extract.ButtonMatch, error) {
	ctx, span := s.tracer.Start(ctx, "extract.PrimaryButton")
	defer span.End()
	match, err := extract.PrimaryButton(ctx, page)
	if err != nil {
		span.RecordError(err)
		return extract.ButtonMatch{}, fmt.Errorf("extract primary button: %w", err)
	}
	return match, nil
}

func (s *Scraper) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	start := time.Now()
	defer func() { metrics.ObserveAdmissionWait(time.Since(start)) }()
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s *Scraper) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

func classify(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	case errors.Is(err, browser.ErrNavigation):
		return metrics.OutcomeNavigationError
	case errors.Is(err, browser.ErrLaunch):
		return metrics.OutcomeLaunchError
	default:
		return metrics.OutcomeExtractError
	}
}
