package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Probe checks that a target URL is reachable before generation work is
// scheduled against it. Failures are advisory; the orchestrator logs them
// and proceeds.
type Probe interface {
	Check(ctx context.Context, url string) error
}

// BrowserProbe loads the URL in a headless browser via the DevTools
// protocol, which catches cases a plain TCP dial would miss (redirect
// loops, pages that never finish loading).
type BrowserProbe struct {
	// Timeout bounds one probe (default 30s).
	Timeout time.Duration
}

// NewBrowserProbe creates a probe with the default timeout.
func NewBrowserProbe() *BrowserProbe {
	return &BrowserProbe{Timeout: 30 * time.Second}
}

// Check navigates to the URL and waits for the load event.
func (p *BrowserProbe) Check(ctx context.Context, url string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}
