// Package app wires the broker, its stores and the page side together for
// the daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/fauxpost/internal/auth"
	"github.com/ibeckermayer/fauxpost/internal/bridge"
	"github.com/ibeckermayer/fauxpost/internal/broker"
	"github.com/ibeckermayer/fauxpost/internal/classifier"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/page"
	"github.com/ibeckermayer/fauxpost/internal/report"
	"github.com/ibeckermayer/fauxpost/internal/scanner"
	"github.com/ibeckermayer/fauxpost/internal/scheduler"
	"github.com/ibeckermayer/fauxpost/internal/scraper"
	"github.com/ibeckermayer/fauxpost/internal/store"
)

// App holds the privileged side and knows how to start page sides against it
type App struct {
	settings    *config.Settings
	cfg         config.Store
	db          *store.DB
	cache       *store.SQLiteCache
	client      *classifier.Client
	broker      *broker.Broker
	authManager *auth.Manager
	bridgeURL   string
	log         *logger.Logger
}

// Option configures an App
type Option func(*App)

// WithBridge makes page sides talk to a running daemon at url instead of an
// in-process broker
func WithBridge(url string) Option {
	return func(a *App) { a.bridgeURL = url }
}

// WithClassifierOptions passes options to the classification client
func WithClassifierOptions(opts ...classifier.Option) Option {
	return func(a *App) { a.client = classifier.New(opts...) }
}

// New opens the database and builds the broker. settingsPath is the TOML file
// the classifier record is persisted to.
func New(settings *config.Settings, settingsPath string, opts ...Option) (*App, error) {
	a := &App{
		settings: settings,
		cfg:      config.NewFileStore(settingsPath),
		log:      logger.Named("app"),
	}
	for _, o := range opts {
		o(a)
	}

	if a.client == nil {
		var clientOpts []classifier.Option
		if settings.Storage.DumpExchanges {
			dir, err := store.ExchangeDir()
			if err != nil {
				return nil, err
			}
			clientOpts = append(clientOpts, classifier.WithExchangeDumps(dir))
		}
		a.client = classifier.New(clientOpts...)
	}

	dbPath, err := settings.DBPath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.cache = db.NewCache(settings.CacheTTL())

	a.broker = broker.New(a.cfg, a.cache, a.client, db,
		broker.WithInflightDedupe(settings.Storage.DedupeInflight),
	)

	cookiePath, err := auth.DefaultCookieStorePath()
	if err != nil {
		db.Close()
		return nil, err
	}
	a.authManager = auth.NewManager(auth.NewCookieStore(cookiePath))

	return a, nil
}

// Close releases the database
func (a *App) Close() error {
	return a.db.Close()
}

// Broker returns the privileged-side broker
func (a *App) Broker() *broker.Broker { return a.broker }

// Auth returns the session manager
func (a *App) Auth() *auth.Manager { return a.authManager }

// sender returns the channel page sides use. The in-process channel is
// served until ctx is done.
func (a *App) sender(ctx context.Context) broker.Sender {
	if a.bridgeURL != "" {
		return bridge.NewClient(a.bridgeURL, nil)
	}
	ch := broker.NewChannel(a.broker)
	go ch.Serve(ctx)
	return ch
}

// ScanDocument loads an HTML page, injects rows into its posts and scans
// all of them
func (a *App) ScanDocument(ctx context.Context, r io.Reader) ([]scanner.RowView, error) {
	doc, err := page.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := page.New(doc)
	go p.Run(ctx)

	s := scanner.New(p, a.sender(ctx))
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	views, err := s.ScanAll(ctx, a.settings.Scanner.MaxConcurrentScans)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("posts", len(views)).Msg("document scanned")
	return views, nil
}

// Watch mirrors the live feed and scans every post that shows up, until ctx
// is cancelled. It returns the rows that were still on the page at the end.
func (a *App) Watch(ctx context.Context) ([]scanner.RowView, error) {
	cookies, err := a.authManager.Cookies()
	if err != nil {
		return nil, err
	}

	doc, err := scraper.NewMirrorDocument()
	if err != nil {
		return nil, err
	}

	// the page outlives ctx long enough to collect the final rows
	pageCtx, stopPage := context.WithCancel(context.Background())
	defer stopPage()
	p := page.New(doc)
	go p.Run(pageCtx)

	s := scanner.New(p, a.sender(pageCtx)).WithRowListener(func(v scanner.RowView) {
		if v.State == scanner.StateScored {
			a.log.Info().Str("post", v.PostKey).Str("chip", v.Chip).Bool("cached", v.FromCache).Msg("post scored")
		}
	})
	if err := s.Start(pageCtx); err != nil {
		return nil, err
	}

	feed := scraper.New(a.settings.Scanner, p, s.Rows)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx, cookies) })
	g.Go(func() error { return a.autoScan(gctx, s) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Rows(finalCtx)
}

// autoScan scans idle rows as the feed brings them in
func (a *App) autoScan(ctx context.Context, s *scanner.Scanner) error {
	interval := time.Duration(a.settings.Scanner.ScrollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := scanIdle(ctx, s, a.settings.Scanner.MaxConcurrentScans); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func scanIdle(ctx context.Context, s *scanner.Scanner, limit int) error {
	rows, err := s.Rows(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, r := range rows {
		if r.State != scanner.StateIdle {
			continue
		}
		g.Go(func() error {
			_, err := s.Scan(gctx, r.ID)
			if errors.Is(err, scanner.ErrScanInProgress) || errors.Is(err, scanner.ErrRowGone) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Report renders views, saves the report and optionally opens it
func (a *App) Report(views []scanner.RowView, source string, open bool) (string, error) {
	b, err := report.New(0)
	if err != nil {
		return "", err
	}
	r, err := b.Build(views, source)
	if err != nil {
		return "", err
	}
	dir, err := report.Dir()
	if err != nil {
		return "", err
	}
	path, err := r.Save(dir)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	a.log.Info().Str("path", path).Int("fake", r.Stats.Fake).Int("scored", r.Stats.Scored).Msg("report saved")
	if open {
		if err := report.Open(path); err != nil {
			return path, fmt.Errorf("failed to open report: %w", err)
		}
	}
	return path, nil
}

// GetConfig returns the classifier record through the protocol
func (a *App) GetConfig(ctx context.Context) (config.Classifier, error) {
	resp, err := a.sender(ctx).Send(ctx, broker.Request{Type: broker.TypeGetConfig})
	if err != nil {
		return config.Classifier{}, err
	}
	if !resp.OK || resp.Cfg == nil {
		return config.Classifier{}, fmt.Errorf("getConfig failed: %s", resp.Error)
	}
	return *resp.Cfg, nil
}

// SetConfig merges p into the classifier record through the protocol
func (a *App) SetConfig(ctx context.Context, p config.Patch) (config.Classifier, error) {
	req, err := broker.NewRequest(broker.TypeSetConfig, p)
	if err != nil {
		return config.Classifier{}, err
	}
	resp, err := a.sender(ctx).Send(ctx, req)
	if err != nil {
		return config.Classifier{}, err
	}
	if !resp.OK || resp.Cfg == nil {
		return config.Classifier{}, fmt.Errorf("setConfig failed: %s", resp.Error)
	}
	return *resp.Cfg, nil
}

// Health asks the configured classifier whether it is up
func (a *App) Health(ctx context.Context) (string, error) {
	cfg, err := a.cfg.Get(ctx)
	if err != nil {
		return "", err
	}
	return a.client.Health(ctx, cfg)
}

// FlushFeedback re-sends queued feedback
func (a *App) FlushFeedback(ctx context.Context) (broker.FlushReport, error) {
	return a.broker.FlushOutbox(ctx)
}

// PurgeCache deletes expired cache entries
func (a *App) PurgeCache(ctx context.Context) (int64, error) {
	return a.cache.Purge(ctx)
}

// Serve runs the daemon: the HTTP bridge plus scheduled housekeeping, until
// ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	sched, err := scheduler.New(a.settings.Schedule.Timezone)
	if err != nil {
		return err
	}
	if err := sched.AddJob(scheduler.JobFeedbackFlush, a.settings.Schedule.FeedbackFlush, func(ctx context.Context) error {
		rep, err := a.FlushFeedback(ctx)
		if rep.Delivered > 0 || rep.Failed > 0 {
			a.log.Info().Int("delivered", rep.Delivered).Int("failed", rep.Failed).Msg("outbox flushed")
		}
		return err
	}); err != nil {
		return err
	}
	if err := sched.AddJob(scheduler.JobCachePurge, a.settings.Schedule.CachePurge, func(ctx context.Context) error {
		n, err := a.PurgeCache(ctx)
		if n > 0 {
			a.log.Info().Int64("entries", n).Msg("cache purged")
		}
		return err
	}); err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	srv := bridge.NewServer(a.broker, a.settings.Bridge)
	return srv.ListenAndServe(ctx)
}
