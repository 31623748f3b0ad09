package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeLoader renders pages in a shared headless Chrome. Each Load opens its
// own tab.
type ChromeLoader struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	startOnce sync.Once
	startErr  error
}

// ChromeOptions configures the browser process.
type ChromeOptions struct {
	Headless bool
	ProxyURL string
	ExecPath string
}

// NewChromeLoader prepares an exec allocator. Chrome itself is launched on the
// first Load.
func NewChromeLoader(opts ChromeOptions) *ChromeLoader {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(defaultUserAgent),
	)
	if opts.ProxyURL != "" {
		flags = append(flags, chromedp.ProxyServer(opts.ProxyURL))
	}
	if opts.ExecPath != "" {
		flags = append(flags, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), flags...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return &ChromeLoader{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}
}

func (c *ChromeLoader) start() error {
	c.startOnce.Do(func() {
		if err := chromedp.Run(c.browserCtx); err != nil {
			c.startErr = eris.Wrap(err, "browser: start chrome")
		}
	})
	return c.startErr
}

// Load navigates a new tab to target and returns the rendered DOM. The
// navigation deadline comes from ctx.
func (c *ChromeLoader) Load(ctx context.Context, target string) (*Page, error) {
	if err := c.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html, location string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "browser: navigate "+target)
		}
		return nil, eris.Wrap(err, "browser: navigate "+target)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "browser: parse html")
	}
	if location == "" {
		location = target
	}
	return &Page{URL: location, Doc: doc}, nil
}

// Close shuts the browser down.
func (c *ChromeLoader) Close() error {
	c.cancelBrowser()
	c.cancelAlloc()
	return nil
}
