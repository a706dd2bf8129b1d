package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultRenderTimeout = 30 * time.Second

// ChromedpConfig contains configuration for the chromedp renderer
type ChromedpConfig struct {
	DefaultTimeout          time.Duration // timeout of a render without its own
	RemoteURL               string        // DevTools URL of a running browser, launches one when empty
	Headless                bool          // run in headless mode
	NoSandbox               bool          // required when running as root or in containers
	IgnoreCertificateErrors bool          // ignore certificate errors of linked resources
	DisableHTTP2            bool          // disable HTTP2
	UserAgent               string        // user agent used for linked resources
	Logger                  *zap.Logger   // defaults to a nop logger
}

// DefaultChromedpConfig returns default configuration
func DefaultChromedpConfig() *ChromedpConfig {
	return &ChromedpConfig{
		DefaultTimeout:          defaultRenderTimeout,
		Headless:                true,
		IgnoreCertificateErrors: true,
		DisableHTTP2:            true,
	}
}

// ChromedpRenderer renders HTML to PDF using Chrome DevTools Protocol
type ChromedpRenderer struct {
	config      *ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer. The browser is started lazily by
// the first Render.
func NewChromedpRenderer(config *ChromedpConfig) *ChromedpRenderer {
	if config == nil {
		config = DefaultChromedpConfig()
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = defaultRenderTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &ChromedpRenderer{
		config: config,
		logger: logger,
	}

	if config.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], r.allocatorFlags()...)
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	return r
}

// allocatorFlags returns the chromedp.ExecAllocatorOptions derived from the config.
func (r *ChromedpRenderer) allocatorFlags() []chromedp.ExecAllocatorOption {
	flags := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", r.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	}

	if r.config.NoSandbox {
		flags = append(flags, chromedp.NoSandbox)
	}

	if r.config.IgnoreCertificateErrors {
		flags = append(flags, chromedp.Flag("ignore-certificate-errors", true))
	}

	if r.config.DisableHTTP2 {
		flags = append(flags, chromedp.Flag("disable-http2", true))
	}

	if r.config.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(r.config.UserAgent))
	}

	return flags
}

// Render converts HTML content to PDF
func (r *ChromedpRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	req, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timeout := req.Timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	// tie the browser tab to the caller's deadline
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	params := buildPrintParams(req)

	var data []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, req.HTML).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewRenderError(ErrCodeRenderTimeout, fmt.Sprintf("PDF rendering timed out after %v", timeout), err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, NewRenderError(ErrCodeRenderTimeout, "PDF rendering was cancelled", err)
		}
		r.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, NewRenderError(ErrCodeRenderFailed, "chromedp execution failed", err)
	}

	if len(data) == 0 {
		return nil, NewRenderError(ErrCodeRenderFailed, "generated PDF is empty", nil)
	}

	duration := time.Since(start)
	r.logger.Info("PDF rendered",
		zap.Int("bytes", len(data)),
		zap.Duration("duration", duration))

	return &RenderResult{
		PDFData:        data,
		RenderDuration: duration,
	}, nil
}

// prepare validates req and returns a copy with defaults applied.
func (r *ChromedpRenderer) prepare(req *RenderRequest) (*RenderRequest, error) {
	if req == nil || strings.TrimSpace(req.HTML) == "" {
		return nil, NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil)
	}

	prepared := *req
	if prepared.PaperSize == "" {
		prepared.PaperSize = PaperA4
	}
	if !prepared.PaperSize.IsValid() {
		return nil, NewRenderError(ErrCodeInvalidPaperSize, "invalid paper size: "+string(prepared.PaperSize), nil)
	}
	if prepared.Timeout == 0 {
		prepared.Timeout = r.config.DefaultTimeout
	}
	if prepared.Timeout == 0 {
		prepared.Timeout = defaultRenderTimeout
	}
	return &prepared, nil
}

// buildPrintParams converts the request into Page.printToPDF parameters.
func buildPrintParams(req *RenderRequest) *page.PrintToPDFParams {
	width, height := req.PaperSize.Dimensions()

	return page.PrintToPDF().
		WithPrintBackground(req.PrintBackground).
		WithLandscape(req.Landscape).
		WithPaperWidth(mmToInches(width)).
		WithPaperHeight(mmToInches(height)).
		WithMarginTop(mmToInches(req.Margins.Top)).
		WithMarginRight(mmToInches(req.Margins.Right)).
		WithMarginBottom(mmToInches(req.Margins.Bottom)).
		WithMarginLeft(mmToInches(req.Margins.Left))
}

// Close releases resources held by the renderer
func (r *ChromedpRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

var _ Renderer = (*ChromedpRenderer)(nil)
