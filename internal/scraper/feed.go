// Package scraper drives a logged-in LinkedIn feed in Chrome and mirrors its
// posts into a local page so the scanner can work on them.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/ibeckermayer/fauxpost/internal/auth"
	"github.com/ibeckermayer/fauxpost/internal/browser"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/page"
	"github.com/ibeckermayer/fauxpost/internal/scanner"
)

// Snapshot is one post as serialized by the live page
type Snapshot struct {
	URN  string `json:"urn"`
	HTML string `json:"html"`
}

// ViewSource lists the scanner's rows so their verdicts can be painted live
type ViewSource func(ctx context.Context) ([]scanner.RowView, error)

// Feed mirrors the live feed into a page.Page
type Feed struct {
	cfg    config.ScannerConfig
	page   *page.Page
	policy *bluemonday.Policy
	views  ViewSource
	log    *logger.Logger

	// owned by the page loop
	mirrored map[string][]*html.Node
}

// NewMirrorDocument returns the empty local document a Feed mirrors into
func NewMirrorDocument() (*page.Document, error) {
	return page.ParseString(mirrorShell)
}

// New creates a feed mirroring into p. views may be nil to skip live painting.
func New(cfg config.ScannerConfig, p *page.Page, views ViewSource) *Feed {
	return &Feed{
		cfg:      cfg,
		page:     p,
		policy:   newPolicy(),
		views:    views,
		log:      logger.Named("feed"),
		mirrored: make(map[string][]*html.Node),
	}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("main", "article", "section", "div", "span")
	p.AllowAttrs(keptAttrs...).Globally()
	return p
}

// Sanitize strips scripts, handlers and styling from a live post's markup
func (f *Feed) Sanitize(fragment string) string {
	return f.policy.Sanitize(fragment)
}

// Run opens the feed with the stored session, then scrolls and mirrors until
// MaxScrolls rounds have passed. After that it keeps re-syncing in place until
// ctx is cancelled. MaxScrolls <= 0 scrolls forever.
func (f *Feed) Run(ctx context.Context, cookies []*network.Cookie) error {
	browserCtx, cancel := browser.NewContext(ctx, f.cfg.Headless)
	defer cancel()

	if err := auth.InjectCookies(browserCtx, cookies); err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}

	var loggedOut bool
	loadCtx, loadCancel := context.WithTimeout(browserCtx, time.Minute)
	err := chromedp.Run(loadCtx,
		chromedp.Navigate(f.cfg.FeedURL),
		chromedp.WaitVisible(WaitForFeed+", "+LoginForm, chromedp.ByQuery),
		chromedp.Evaluate(loggedOutScript(), &loggedOut),
	)
	loadCancel()
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}
	if loggedOut {
		return fmt.Errorf("feed redirected to login, stored session is dead: %w", auth.ErrNotLoggedIn)
	}
	f.log.Info().Str("url", f.cfg.FeedURL).Msg("feed loaded")

	interval := time.Duration(f.cfg.ScrollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}

	for round := 0; ; round++ {
		snaps, err := f.snapshot(browserCtx)
		if err != nil {
			return err
		}
		added, removed, err := f.Apply(ctx, snaps)
		if err != nil {
			return err
		}
		f.log.Debug().Int("round", round).Int("live", len(snaps)).Int("added", added).Int("removed", removed).Msg("feed synced")

		if f.cfg.PaintLiveChips && f.views != nil {
			if err := f.paint(ctx, browserCtx); err != nil {
				f.log.Warn().Err(err).Msg("failed to paint verdicts")
			}
		}

		if f.cfg.MaxScrolls <= 0 || round < f.cfg.MaxScrolls {
			if err := chromedp.Run(browserCtx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil)); err != nil {
				return fmt.Errorf("failed to scroll: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// loggedOutScript reports whether the page shows the login form instead of the feed
func loggedOutScript() string {
	sel, _ := json.Marshal(LoginForm)
	return fmt.Sprintf(`document.querySelector(%s) !== null`, sel)
}

// snapshot serializes every outermost post on the live page
func (f *Feed) snapshot(ctx context.Context) ([]Snapshot, error) {
	sel, err := json.Marshal(strings.Join(scanner.PostHeuristics, ", "))
	if err != nil {
		return nil, err
	}
	js := fmt.Sprintf(`
		(function(sel) {
			const seen = new Set();
			const out = [];
			document.querySelectorAll(sel).forEach(el => {
				if (el.parentElement && el.parentElement.closest(sel)) return;
				const keyed = el.matches('[data-urn]') ? el : el.querySelector('[data-urn]');
				const urn = keyed ? keyed.getAttribute('data-urn') : '';
				if (!urn || seen.has(urn)) return;
				seen.add(urn);
				const copy = el.cloneNode(true);
				copy.querySelectorAll('.%s').forEach(b => b.remove());
				out.push({urn, html: copy.outerHTML});
			});
			return out;
		})(%s)
	`, liveBadgeClass, sel)

	var snaps []Snapshot
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &snaps)); err != nil {
		return nil, fmt.Errorf("failed to snapshot feed: %w", err)
	}
	return snaps, nil
}

// Apply makes the mirror match snaps: unseen posts are sanitized and
// appended, mirrored posts the live page no longer renders are removed.
// Posts already mirrored are left alone so their injected rows survive.
func (f *Feed) Apply(ctx context.Context, snaps []Snapshot) (added, removed int, err error) {
	var insertErr error
	err = f.page.Do(ctx, func() {
		doc := f.page.Document()
		root := page.First(doc.Root(), MirrorRoot)
		if root == nil {
			root = doc.Body()
		}

		live := make(map[string]bool, len(snaps))
		for _, s := range snaps {
			if s.URN == "" || live[s.URN] {
				continue
			}
			live[s.URN] = true
			if _, ok := f.mirrored[s.URN]; ok {
				continue
			}
			nodes, err := doc.InsertHTML(root, f.Sanitize(s.HTML))
			if err != nil {
				insertErr = fmt.Errorf("failed to mirror %s: %w", s.URN, err)
				return
			}
			f.mirrored[s.URN] = nodes
			added++
		}

		for urn, nodes := range f.mirrored {
			if live[urn] {
				continue
			}
			for _, n := range nodes {
				doc.Remove(n)
			}
			delete(f.mirrored, urn)
			removed++
		}
	})
	if err == nil {
		err = insertErr
	}
	return added, removed, err
}

// mark is one verdict to paint onto the live page
type mark struct {
	URN   string `json:"urn"`
	Text  string `json:"text"`
	State string `json:"state"`
}

// marksFor picks the rows worth painting: anything past idle with a post key
func marksFor(views []scanner.RowView) []mark {
	var out []mark
	for _, v := range views {
		if v.PostKey == "" || v.State == scanner.StateIdle {
			continue
		}
		out = append(out, mark{URN: v.PostKey, Text: v.Chip, State: string(v.State)})
	}
	return out
}

// paintScript builds the JS that places or updates a badge on each marked post
func paintScript(marks []mark) (string, error) {
	data, err := json.Marshal(marks)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		(function(marks) {
			let painted = 0;
			for (const m of marks) {
				const el = document.querySelector('[data-urn="' + CSS.escape(m.urn) + '"]');
				if (!el) continue;
				let badge = el.querySelector('.%[1]s');
				if (!badge) {
					badge = document.createElement('span');
					badge.className = '%[1]s';
					badge.style.cssText = 'display:inline-block;margin:4px 8px;padding:2px 8px;border-radius:10px;font:600 12px sans-serif;background:#eef3f8;';
					el.prepend(badge);
				}
				badge.textContent = m.text;
				badge.dataset.state = m.state;
				painted++;
			}
			return painted;
		})(%[2]s)
	`, liveBadgeClass, data), nil
}

func (f *Feed) paint(ctx, browserCtx context.Context) error {
	views, err := f.views(ctx)
	if err != nil {
		return err
	}
	marks := marksFor(views)
	if len(marks) == 0 {
		return nil
	}
	js, err := paintScript(marks)
	if err != nil {
		return err
	}
	var painted int
	return chromedp.Run(browserCtx, chromedp.Evaluate(js, &painted))
}
