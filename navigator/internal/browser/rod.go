package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodEngine drives Chrome through the DevTools protocol with go-rod.
type RodEngine struct{}

// NewRodEngine returns the production engine.
func NewRodEngine() *RodEngine { return &RodEngine{} }

// Connect launches a local Chrome (or attaches to opts.RemoteURL) and opens
// one page. Nothing is left running when it fails. Launching is not
// interruptible; ctx is only checked before starting.
func (e *RodEngine) Connect(ctx context.Context, opts LaunchOptions) (Browser, Page, error) {
	opts.defaults()
	log := opts.Logger
	if err := ctx.Err(); err != nil {
		return nil, nil, &ConnectionError{Remote: opts.RemoteURL, Err: err}
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)
	if opts.RemoteURL != "" {
		wsURL = opts.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		lnch = launcher.New().Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if opts.Bin != "" {
			lnch = lnch.Bin(opts.Bin)
		}
		if !opts.Headless && opts.XVFB {
			lnch = lnch.XVFB("--auto-servernum", "--server-args=-screen 0 1920x1080x24")
		}
		u, err := lnch.Launch()
		if err != nil {
			lnch.Kill()
			return nil, nil, &ConnectionError{Err: err}
		}
		wsURL = u
		log.Info("browser: launched local chrome", "url", wsURL, "headless", opts.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
			lnch.Cleanup()
		}
		return nil, nil, &ConnectionError{Remote: opts.RemoteURL, Err: err}
	}
	rb := &rodBrowser{b: b, lnch: lnch}

	if opts.IgnoreCertErrors {
		if err := b.IgnoreCertErrors(true); err != nil {
			log.Warn("browser: ignore cert errors failed", "error", err)
		}
	}

	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		rb.Close()
		return nil, nil, &ConnectionError{Remote: opts.RemoteURL, Err: fmt.Errorf("create page: %w", err)}
	}

	rp := &rodPage{page: page, idle: opts.IdleWindow}
	if len(opts.ResourceBlocking) > 0 {
		rp.router = applyResourceBlocking(page, opts.ResourceBlocking)
	}
	return rb, rp, nil
}

type rodBrowser struct {
	b    *rod.Browser
	lnch *launcher.Launcher
}

func (r *rodBrowser) Close() error {
	err := r.b.Close()
	if r.lnch != nil {
		if err != nil {
			// Cleanup waits for the process to exit.
			r.lnch.Kill()
		}
		r.lnch.Cleanup()
	}
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

type rodPage struct {
	page   *rod.Page
	idle   time.Duration
	router *rod.HijackRouter
}

func (p *rodPage) Goto(ctx context.Context, url string, timeout time.Duration) NavResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pg := p.page.Context(attemptCtx)
	// Subscribe before navigating so early requests are counted.
	waitIdle := pg.WaitRequestIdle(p.idle, nil, nil, nil)
	if err := pg.Navigate(url); err != nil {
		return classify(ctx, attemptCtx, err)
	}
	waitIdle()
	if err := attemptCtx.Err(); err != nil {
		return classify(ctx, attemptCtx, fmt.Errorf("wait network idle: %w", err))
	}
	return NavResult{Outcome: OutcomeSuccess}
}

// classify reports a timeout only when the attempt's own deadline fired.
// Cancellation of the caller's context is a plain failure.
func classify(parent, attempt context.Context, err error) NavResult {
	if parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return NavResult{Outcome: OutcomeTimeout, Err: err}
	}
	return NavResult{Outcome: OutcomeFailed, Err: err}
}

// documentHTML serializes the whole document, doctype included, which
// Element.outerHTML alone drops.
const documentHTML = `() => {
	let out = '';
	if (document.doctype) out = new XMLSerializer().serializeToString(document.doctype);
	if (document.documentElement) out += document.documentElement.outerHTML;
	return out;
}`

func (p *rodPage) Content(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(documentHTML)
	if err != nil {
		return "", fmt.Errorf("browser: content: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) ReadyState(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", fmt.Errorf("browser: ready state: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (p *rodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) SetUserAgent(ctx context.Context, ua string) error {
	if err := p.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		return fmt.Errorf("browser: set user agent: %w", err)
	}
	return nil
}

func (p *rodPage) Close() error {
	var errs []error
	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop hijack: %w", err))
		}
	}
	if err := p.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}
