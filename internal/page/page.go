package page

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/fauxpost/internal/logger"
)

// ErrClosed is returned when a task is submitted to a page whose loop has exited
var ErrClosed = errors.New("page loop closed")

// Observer receives the element nodes inserted by a task, after the task ends
type Observer func(added []*html.Node)

// Page runs every piece of document work on one goroutine. Tasks execute in
// submission order; after each task the nodes it inserted are delivered to
// the observers, and insertions made by observers are delivered in turn.
type Page struct {
	doc *Document

	mu        sync.Mutex
	queue     []task
	observers []Observer

	wake chan struct{}
	done chan struct{}
	once sync.Once
	log  *logger.Logger
}

type task struct {
	fn   func()
	done chan struct{}
}

// New creates a page around doc. Call Run to start its loop.
func New(doc *Document) *Page {
	return &Page{
		doc:  doc,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  logger.Named("page"),
	}
}

// Document returns the page's document. Only touch it from inside a task.
func (p *Page) Document() *Document { return p.doc }

// Observe registers fn for every future batch of insertions
func (p *Page) Observe(fn Observer) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Run executes tasks until ctx is cancelled
func (p *Page) Run(ctx context.Context) error {
	defer p.once.Do(func() { close(p.done) })

	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()

		for _, t := range batch {
			p.runTask(t)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
	}
}

// Post queues fn without waiting for it. Tasks posted after the loop exits are dropped.
func (p *Page) Post(fn func()) {
	p.enqueue(task{fn: fn})
}

func (p *Page) enqueue(t task) {
	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it (and the observer delivery after it) to finish
func (p *Page) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	p.enqueue(task{fn: fn, done: finished})

	select {
	case <-finished:
		return nil
	case <-p.done:
		// the loop may have run the task right before exiting
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every task queued before the call has run
func (p *Page) Sync(ctx context.Context) error {
	return p.Do(ctx, func() {})
}

func (p *Page) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
		}
		if t.done != nil {
			close(t.done)
		}
	}()
	t.fn()
	p.deliver()
}

// deliver hands pending insertions to observers until none remain
func (p *Page) deliver() {
	p.mu.Lock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for {
		added := p.doc.TakeAdded()
		if len(added) == 0 {
			return
		}
		for _, obs := range observers {
			obs(added)
		}
	}
}
