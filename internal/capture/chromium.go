package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	appLog "sinulogmap/internal/log"
)

// Default capture parameters for the schedule page.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 900
	DefaultTimeoutSec = 30

	// ReadySelector is exposed by the page once the list and map state
	// have been drawn.
	ReadySelector = `[data-ready="true"]`
)

// Options defines parameters for a Chromium-based snapshot.
type Options struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:8080".
	BaseURL string

	// Date selects the schedule date shown; empty keeps the default date.
	Date string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// PageURL is the address the browser is pointed at.
func (o Options) PageURL() (string, error) {
	if o.BaseURL == "" {
		return "", errors.New("capture: base URL is required")
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("capture: invalid base URL %q", o.BaseURL)
	}
	u.Path = "/"
	q := url.Values{}
	if o.Date != "" {
		q.Set("date", o.Date)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o Options) normalized() (Options, error) {
	if o.OutputPath == "" {
		return o, errors.New("capture: output path is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return o, nil
}

// SchedulePNG launches a headless Chromium via chromedp, opens the schedule
// page, waits for ReadySelector and writes a full-page PNG screenshot.
func SchedulePNG(parentCtx context.Context, opts Options) error {
	opts, err := opts.normalized()
	if err != nil {
		return err
	}
	pageURL, err := opts.PageURL()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let map tiles settle.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	appLog.Info("snapshot capture start", "url", pageURL, "width", opts.Width, "height", opts.Height)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("snapshot written", "path", opts.OutputPath, "bytes", len(png))
	return nil
}
