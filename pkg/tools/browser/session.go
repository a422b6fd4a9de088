// Package browser drives a single Playwright-managed page and exposes
// it both as agent tools and as the queue's page executor.
package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/types"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 800
	defaultStepTimeout    = 10 * time.Second
)

// Session owns one browser page. Playwright starts lazily on first
// use so constructing a Session is cheap and cannot fail.
type Session struct {
	mu       sync.Mutex
	headless bool
	pw       *playwright.Playwright
	browser  playwright.Browser
	page     playwright.Page
	log      *logging.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHeadless controls whether the browser runs headless.
func WithHeadless(headless bool) SessionOption {
	return func(s *Session) {
		s.headless = headless
	}
}

// NewSession creates an unstarted session. The browser launches on
// the first page operation.
func NewSession(opts ...SessionOption) *Session {
	log, _ := logging.NewLogger("browser")
	s := &Session{
		headless: true,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensurePage starts Playwright and opens a page if needed. Caller
// holds the lock.
func (s *Session) ensurePage() (playwright.Page, error) {
	if s.page != nil {
		return s.page, nil
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &s.headless,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  defaultViewportWidth,
			Height: defaultViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	s.pw = pw
	s.browser = browser
	s.page = page
	s.log.Infof("browser session started (headless=%v)", s.headless)
	return page, nil
}

// timeoutMillis derives a Playwright timeout from the context
// deadline, falling back to the default step budget.
func timeoutMillis(ctx context.Context) *float64 {
	timeout := defaultStepTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}
	ms := float64(timeout.Milliseconds())
	return &ms
}

// Navigate loads a URL and waits for the DOM to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   timeoutMillis(ctx),
	}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return err
	}
	if err := page.Click(selector, playwright.PageClickOptions{Timeout: timeoutMillis(ctx)}); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// Fill sets the value of an input matching the selector.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return err
	}
	if err := page.Fill(selector, value, playwright.PageFillOptions{Timeout: timeoutMillis(ctx)}); err != nil {
		return fmt.Errorf("fill on %q failed: %w", selector, err)
	}
	return nil
}

// Content returns the page's cleaned text representation, interactive
// elements annotated inline.
func (s *Session) Content(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return "", err
	}
	raw, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	cleaned, err := CleanPage(raw, defaultContentLimit)
	if err != nil {
		return "", err
	}
	return cleaned.Text, nil
}

// Title returns the current page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return "", err
	}
	return page.Title()
}

// URL returns the current page URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

// WaitForSelector blocks until an element matching the selector is
// visible or the timeout passes.
func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return err
	}
	state := playwright.WaitForSelectorStateVisible
	if _, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: timeoutMillis(ctx),
	}); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// ScrollTo scrolls the element matching the selector into view. An
// empty selector scrolls to the bottom of the page.
func (s *Session) ScrollTo(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return err
	}
	if selector == "" {
		_, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
		if err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}
		return nil
	}
	locator := page.Locator(selector)
	if err := locator.ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll to %q failed: %w", selector, err)
	}
	return nil
}

// Snapshot captures the current page as a web context: URL, title,
// cleaned text, and the interactive elements found on the page.
func (s *Session) Snapshot(ctx context.Context) (*types.WebContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.ensurePage()
	if err != nil {
		return nil, err
	}

	title, err := page.Title()
	if err != nil {
		title = ""
	}
	raw, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}
	cleaned, err := CleanPage(raw, defaultContentLimit)
	if err != nil {
		return nil, err
	}

	return &types.WebContext{
		URL:      page.URL(),
		Title:    title,
		Content:  cleaned.Text,
		Elements: cleaned.Elements,
	}, nil
}

// Close shuts down the page, browser, and Playwright. Safe to call on
// an unstarted session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return nil
	}
	s.page.Close()
	s.browser.Close()
	err := s.pw.Stop()
	s.page = nil
	s.browser = nil
	s.pw = nil
	s.log.Infof("browser session closed")
	return err
}
