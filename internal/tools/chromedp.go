package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	pageStateTimeout  = 5 * time.Second
	networkIdleSettle = 500 * time.Millisecond
	userAgent         = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36`
)

// ChromeBrowser launches a fresh headless Chrome per Open so concurrent
// sessions never share a tab.
type ChromeBrowser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	logger      *zap.Logger
}

func NewChromeBrowser(headless bool, logger *zap.Logger) *ChromeBrowser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeBrowser{allocCtx: allocCtx, cancelAlloc: cancel, logger: loggerOrNop(logger)}
}

func (c *ChromeBrowser) Close() {
	c.cancelAlloc()
}

func (c *ChromeBrowser) Open(ctx context.Context, req PageRequest) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(c.logger.Sugar().Debugf))
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(defaultBrowserTimeoutSeconds) * time.Second
	}
	navCtx, cancelNav := context.WithTimeout(tabCtx, timeout)
	err := chromedp.Run(navCtx, navigateActions(req.URL, req.WaitUntil)...)
	cancelNav()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Page{}, &NavigationTimeoutError{Err: err, State: capturePageState(tabCtx, req.Format).String()}
		}
		return Page{}, err
	}

	page := Page{}
	actions := []chromedp.Action{}
	if req.ScrollTimes > 0 {
		script := "window.scrollBy(0, window.innerHeight)"
		if req.ScrollUp {
			script = "window.scrollBy(0, -window.innerHeight)"
		}
		for i := 0; i < req.ScrollTimes; i++ {
			actions = append(actions, chromedp.Evaluate(script, nil), chromedp.Sleep(req.ScrollDelay))
		}
	}
	actions = append(actions, chromedp.Location(&page.URL), chromedp.Title(&page.Title))
	if content := contentAction(req.Format, &page.Content); content != nil {
		actions = append(actions, content)
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return Page{}, err
	}
	return page, nil
}

func navigateActions(url string, waitUntil string) []chromedp.Action {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	switch strings.ToLower(waitUntil) {
	case WaitDOMContentLoaded:
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	case WaitNetworkIdle:
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Sleep(networkIdleSettle))
	}
	return actions
}

func contentAction(format string, dst *string) chromedp.Action {
	switch strings.ToLower(format) {
	case FormatText:
		return chromedp.Text("body", dst, chromedp.ByQuery)
	case FormatHTML:
		return chromedp.OuterHTML("html", dst, chromedp.ByQuery)
	}
	return nil
}

func capturePageState(tabCtx context.Context, format string) PageState {
	var state PageState
	run := func(action chromedp.Action) error {
		ctx, cancel := context.WithTimeout(tabCtx, pageStateTimeout)
		defer cancel()
		return chromedp.Run(ctx, action)
	}
	state.URLErr = run(chromedp.Location(&state.URL))
	state.TitleErr = run(chromedp.Title(&state.Title))
	content := contentAction(format, &state.Content)
	if content == nil {
		content = contentAction(FormatText, &state.Content)
	}
	state.ContentErr = run(content)
	return state
}
