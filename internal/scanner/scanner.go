// Package scanner injects a scan affordance into every post of a page and
// drives each post through idle, scanning and a terminal verdict state.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/fauxpost/internal/broker"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/page"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// State is where a row sits in its scan lifecycle
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateScored   State = "scored"
	StateNoText   State = "no_text"
	StateError    State = "error"
)

// MinTextLength is the shortest text worth sending to the classifier, in runes
const MinTextLength = 5

var (
	ErrScanInProgress = errors.New("scan already in progress")
	ErrUnknownRow     = errors.New("unknown row")
	ErrRowGone        = errors.New("post left the page")
	ErrNotScored      = errors.New("row has no verdict")
	ErrNoDialog       = errors.New("feedback dialog is not open")
	ErrInvalidLabel   = errors.New("feedback label must be real or fake")
)

// row binds one injected bar to the post it was injected into
type row struct {
	id    string
	post  *html.Node
	btn   *html.Node
	chip  *html.Node
	wrong *html.Node

	state     State
	result    types.ClassificationResult
	fromCache bool
	text      string
	err       string

	dialog   *html.Node
	feedback *types.FeedbackPayload
}

// RowView is a copy of a row's state, safe to read off the page loop
type RowView struct {
	ID             string
	PostKey        string
	State          State
	Chip           string
	ButtonLabel    string
	ButtonDisabled bool
	WrongVisible   bool
	DialogOpen     bool
	Result         *types.ClassificationResult
	FromCache      bool
	Text           string
	Err            string
}

// Scanner owns the injected rows of one page. Everything except the broker
// round trip runs on the page loop.
type Scanner struct {
	page      *page.Page
	sender    broker.Sender
	rows      map[string]*row
	order     []*row
	listeners []func(RowView)
	ctx       context.Context
	log       *logger.Logger
}

// New creates a scanner for p that reaches the broker through sender
func New(p *page.Page, sender broker.Sender) *Scanner {
	return &Scanner{
		page:   p,
		sender: sender,
		rows:   make(map[string]*row),
		ctx:    context.Background(),
		log:    logger.Named("scanner"),
	}
}

// WithRowListener registers fn to receive a view after every render. fn runs
// on the page loop and must not block.
func (s *Scanner) WithRowListener(fn func(RowView)) *Scanner {
	s.listeners = append(s.listeners, fn)
	return s
}

// Start injects rows into the posts already on the page and watches for new
// ones. ctx bounds the broker calls issued by scans.
func (s *Scanner) Start(ctx context.Context) error {
	s.ctx = ctx
	s.page.Observe(s.onInserted)
	return s.page.Do(ctx, func() {
		n := s.process(s.page.Document().Root())
		s.log.Debug().Int("posts", n).Msg("initial discovery")
	})
}

func (s *Scanner) onInserted(added []*html.Node) {
	total := 0
	for _, n := range added {
		total += s.process(n)
	}
	if total > 0 {
		s.log.Debug().Int("posts", total).Msg("injected into new posts")
	}
}

// process injects into every post at or below root and returns how many were new
func (s *Scanner) process(root *html.Node) int {
	n := 0
	for _, post := range DiscoverPosts(root) {
		if s.inject(post) {
			n++
		}
	}
	return n
}

// inject adds the bar to post unless it already has one
func (s *Scanner) inject(post *html.Node) bool {
	if page.Attr(post, FlagAttr) == "1" {
		return false
	}
	page.SetAttr(post, FlagAttr, "1")

	// Pick a good insertion point; fallback to post end
	point := firstOf(post, InsertionPoints)
	if point == nil {
		point = post
	}

	id := uuid.NewString()
	doc := s.page.Document()
	nodes, err := doc.InsertHTML(point, barHTML(id))
	if err != nil || len(nodes) == 0 {
		s.log.Error().Err(err).Msg("failed to inject bar")
		return false
	}
	bar := nodes[0]

	r := &row{
		id:    id,
		post:  post,
		btn:   page.First(bar, buttonSelector),
		chip:  page.First(bar, chipSelector),
		wrong: page.First(bar, wrongSelector),
		state: StateIdle,
	}
	s.rows[id] = r
	s.order = append(s.order, r)
	s.render(r)
	return true
}

func (s *Scanner) forget(r *row) {
	delete(s.rows, r.id)
	for i, o := range s.order {
		if o == r {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Scanner) view(r *row) RowView {
	_, chip := chipFor(r)
	v := RowView{
		ID:             r.id,
		PostKey:        PostKey(r.post),
		State:          r.state,
		Chip:           chip,
		ButtonLabel:    buttonLabel,
		ButtonDisabled: r.state == StateScanning,
		WrongVisible:   r.state == StateScored,
		DialogOpen:     r.dialog != nil,
		FromCache:      r.fromCache,
		Text:           r.text,
		Err:            r.err,
	}
	if r.state == StateScanning {
		v.ButtonLabel = scanningLabel
	}
	if r.state == StateScored {
		res := r.result
		v.Result = &res
	}
	return v
}

// click starts a scan of r and returns a channel closed once it settles
func (s *Scanner) click(r *row) (<-chan struct{}, error) {
	if r.state == StateScanning {
		return nil, ErrScanInProgress
	}
	if r.dialog != nil || r.feedback != nil {
		// a verdict being replaced can no longer be corrected
		s.closeDialog(r)
	}
	settled := make(chan struct{})

	r.state = StateScanning
	r.err = ""
	r.fromCache = false
	s.render(r)

	snap := Extract(r.post)
	if utf8.RuneCountInString(snap.Text) < MinTextLength {
		r.state = StateNoText
		r.text = snap.Text
		s.render(r)
		close(settled)
		return settled, nil
	}

	req, err := broker.NewRequest(broker.TypePredict, broker.PredictPayload{Text: snap.Text, Hash: snap.Fingerprint})
	if err != nil {
		r.state = StateError
		r.err = err.Error()
		s.render(r)
		close(settled)
		return settled, nil
	}

	ctx := logger.WithRequest(s.ctx, uuid.NewString())
	go func() {
		resp, err := s.sender.Send(ctx, req)
		s.page.Post(func() {
			defer close(settled)
			s.complete(ctx, r, snap, resp, err)
		})
	}()
	return settled, nil
}

// complete applies a broker reply to r, unless its post has left the page
func (s *Scanner) complete(ctx context.Context, r *row, snap types.PostSnapshot, resp broker.Response, err error) {
	l := logger.C(ctx, s.log)

	if !s.page.Document().IsConnected(r.post) {
		l.Debug().Str("row", r.id).Msg("post removed while scanning, dropping result")
		s.forget(r)
		return
	}

	switch {
	case err != nil:
		r.state = StateError
		r.err = err.Error()
	case !resp.OK:
		r.state = StateError
		r.err = resp.Error
	case resp.Result == nil:
		r.state = StateError
		r.err = "reply without result"
	default:
		r.state = StateScored
		r.result = *resp.Result
		r.fromCache = resp.FromCache
		r.text = snap.Text
	}
	if r.state == StateError {
		l.Warn().Str("row", r.id).Str("error", r.err).Msg("predict failed")
	}
	s.render(r)
}

// Scan clicks the row's button and waits for the scan to settle
func (s *Scanner) Scan(ctx context.Context, rowID string) (RowView, error) {
	var (
		settled  <-chan struct{}
		clickErr error
	)
	if err := s.page.Do(ctx, func() {
		r, ok := s.rows[rowID]
		if !ok {
			clickErr = ErrUnknownRow
			return
		}
		settled, clickErr = s.click(r)
	}); err != nil {
		return RowView{}, err
	}
	if clickErr != nil {
		return RowView{}, clickErr
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return RowView{}, ctx.Err()
	}
	return s.Row(ctx, rowID)
}

// Row returns the current view of one row
func (s *Scanner) Row(ctx context.Context, rowID string) (RowView, error) {
	var (
		v  RowView
		ok bool
	)
	if err := s.page.Do(ctx, func() {
		var r *row
		if r, ok = s.rows[rowID]; ok {
			v = s.view(r)
		}
	}); err != nil {
		return RowView{}, err
	}
	if !ok {
		return RowView{ID: rowID}, ErrRowGone
	}
	return v, nil
}

// Rows returns the live rows in injection order. Rows whose post has left
// the page are forgotten.
func (s *Scanner) Rows(ctx context.Context) ([]RowView, error) {
	var views []RowView
	err := s.page.Do(ctx, func() {
		doc := s.page.Document()
		for _, r := range append([]*row(nil), s.order...) {
			if !doc.IsConnected(r.post) {
				if r.state != StateScanning {
					s.forget(r)
				}
				continue
			}
			views = append(views, s.view(r))
		}
	})
	return views, err
}

// ScanAll scans every live row with at most limit scans in flight
func (s *Scanner) ScanAll(ctx context.Context, limit int) ([]RowView, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	views := make([]RowView, len(rows))
	for i, rv := range rows {
		g.Go(func() error {
			v, err := s.Scan(gctx, rv.ID)
			switch {
			case errors.Is(err, ErrScanInProgress), errors.Is(err, ErrRowGone):
				views[i] = rv
				return nil
			case err != nil:
				return fmt.Errorf("failed to scan row %s: %w", rv.ID, err)
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// OpenFeedback shows the feedback dialog for a scored row, replacing any open one
func (s *Scanner) OpenFeedback(ctx context.Context, rowID string) error {
	var opErr error
	err := s.page.Do(ctx, func() {
		r, ok := s.rows[rowID]
		if !ok {
			opErr = ErrUnknownRow
			return
		}
		if r.state != StateScored {
			opErr = ErrNotScored
			return
		}

		doc := s.page.Document()
		for _, prev := range page.Find(r.post, dialogSelector) {
			doc.Remove(prev)
		}
		nodes, err := doc.InsertHTML(r.post, dialogHTML(r.id))
		if err != nil || len(nodes) == 0 {
			opErr = fmt.Errorf("failed to open feedback dialog: %w", err)
			return
		}
		r.dialog = nodes[0]
		// the dialog reports on the verdict it was opened for
		p := types.NewFeedbackPayload(r.text, r.result, "")
		r.feedback = &p
		s.render(r)
	})
	if err != nil {
		return err
	}
	return opErr
}

// CloseFeedback dismisses the dialog without sending anything
func (s *Scanner) CloseFeedback(ctx context.Context, rowID string) error {
	var opErr error
	err := s.page.Do(ctx, func() {
		r, ok := s.rows[rowID]
		if !ok {
			opErr = ErrUnknownRow
			return
		}
		s.closeDialog(r)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Scanner) closeDialog(r *row) {
	if r.dialog != nil {
		s.page.Document().Remove(r.dialog)
	}
	r.dialog = nil
	r.feedback = nil
	s.render(r)
}

// SubmitFeedback closes the dialog and reports label as the correct verdict.
// It returns the broker's acknowledgement data.
func (s *Scanner) SubmitFeedback(ctx context.Context, rowID string, label types.Label) (json.RawMessage, error) {
	if label != types.LabelReal && label != types.LabelFake {
		return nil, ErrInvalidLabel
	}

	var (
		payload types.FeedbackPayload
		opErr   error
	)
	err := s.page.Do(ctx, func() {
		r, ok := s.rows[rowID]
		if !ok {
			opErr = ErrUnknownRow
			return
		}
		if r.dialog == nil || r.feedback == nil {
			opErr = ErrNoDialog
			return
		}
		payload = *r.feedback
		payload.UserLabel = label
		s.closeDialog(r)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	req, err := broker.NewRequest(broker.TypeFeedback, payload)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithRequest(ctx, uuid.NewString())
	resp, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.C(ctx, s.log).Info().Bool("ok", resp.OK).RawJSON("data", orNull(resp.Data)).Msg("feedback resp")
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}

func orNull(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
