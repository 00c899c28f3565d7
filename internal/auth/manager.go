// Package auth captures and stores the LinkedIn session used by the live feed.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/fauxpost/internal/browser"
	"github.com/ibeckermayer/fauxpost/internal/logger"
)

const (
	loginURL     = "https://www.linkedin.com/login"
	feedPrefix   = "https://www.linkedin.com/feed"
	loginTimeout = 5 * time.Minute
)

// ErrNotLoggedIn is returned when no usable session is stored
var ErrNotLoggedIn = errors.New("not logged in to LinkedIn, run `fauxpost login`")

// Manager handles LinkedIn authentication
type Manager struct {
	cookieStore *CookieStore
	log         *logger.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore) *Manager {
	return &Manager{cookieStore: cookieStore, log: logger.Named("auth")}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser window for the user to sign in, then stores
// the session cookies
func (m *Manager) Login(ctx context.Context) error {
	browserCtx, cancel := browser.NewContext(ctx, false)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.log.Info().Msg("waiting for sign-in in the browser window")

	cookies, err := m.waitForLogin(browserCtx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.log.Info().Int("cookies", len(cookies)).Msg("session captured")
	return nil
}

// waitForLogin polls until the tab lands on the feed with a session cookie
func (m *Manager) waitForLogin(ctx context.Context) ([]*network.Cookie, error) {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, errors.New("login timeout exceeded")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !strings.HasPrefix(url, feedPrefix) {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == CookieSession && c.Value != "" {
					return cookies, nil
				}
			}
		}
	}
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored session for the live feed
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	if !m.cookieStore.IsValid() {
		return nil, ErrNotLoggedIn
	}
	return m.cookieStore.LinkedInCookies()
}

// InjectCookies sets cookies in a browser context before navigation
func InjectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}
