package aggregator

import (
	"context"
	"sync"
	"sync/atomic"

	"pricestate/internal/price"
	"pricestate/pkg/stream"

	"go.uber.org/zap"
)

// Aggregator folds a price update stream and a reset stream into a single
// shared stream of price tables.
//
// The upstream sources are subscribed when the first observer arrives and
// released when the last one leaves. Each such connection starts from an
// empty table. Observers that join a live connection first receive the
// table as it stands, then every subsequent snapshot.
type Aggregator struct {
	updates stream.Source[price.Update]
	resets  stream.Source[price.Reset]
	extra   stream.Source[price.Reset]
	logger  *zap.Logger

	// emitMu is held across fold + fan-out and while a new observer is seeded,
	// so no observer can miss or double-see an event around its join point.
	emitMu sync.Mutex

	mu     sync.Mutex
	conn   *connection
	connID uint64
}

type connection struct {
	id     uint64
	cancel context.CancelFunc
	table  price.Table
	subs   map[*Subscription]struct{}
}

// Subscription is one observer's attachment to the aggregate stream.
type Subscription struct {
	agg      *Aggregator
	conn     *connection
	observer Observer

	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
	err    error
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithExternalResets adds a reset source driven independently of the
// updates, such as a scheduler. updates and resets should come from the same
// producer: each is read by the fold loop directly, so one producer's
// interleaving is preserved. src is read the same way, but it has no order
// relative to that producer.
func WithExternalResets(src stream.Source[price.Reset]) Option {
	return func(a *Aggregator) {
		a.extra = src
	}
}

func New(updates stream.Source[price.Update], resets stream.Source[price.Reset], logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		updates: updates,
		resets:  resets,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe attaches o and delivers the current table to it before returning.
func (a *Aggregator) Subscribe(o Observer) *Subscription {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	c := a.conn
	if c == nil {
		c = a.connect()
	}
	sub := &Subscription{
		agg:      a,
		conn:     c,
		observer: o,
		done:     make(chan struct{}),
	}
	c.subs[sub] = struct{}{}
	current := c.table
	a.mu.Unlock()

	o.OnSnapshot(current.Clone())
	return sub
}

// Subscribers returns the number of observers on the live connection.
func (a *Aggregator) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return 0
	}
	return len(a.conn.subs)
}

// connect subscribes to both upstreams. Caller holds a.mu.
func (a *Aggregator) connect() *connection {
	ctx, cancel := context.WithCancel(context.Background())
	a.connID++
	c := &connection{
		id:     a.connID,
		cancel: cancel,
		table:  price.Empty(),
		subs:   make(map[*Subscription]struct{}),
	}
	a.conn = c

	updates, updateErrs := a.updates.Subscribe(ctx)
	resets, resetErrs := a.resets.Subscribe(ctx)
	in := inputs{
		updates: updates, updateErrs: updateErrs,
		resets: resets, resetErrs: resetErrs,
	}
	if a.extra != nil {
		// nil channels otherwise, which never fire
		in.extra, in.extraErrs = a.extra.Subscribe(ctx)
	}
	go a.run(ctx, c, in)

	a.logger.Info("price upstreams connected", zap.Uint64("conn", c.id))
	return c
}

// inputs are one connection's upstream channels.
type inputs struct {
	updates    <-chan price.Update
	updateErrs <-chan error
	resets     <-chan price.Reset
	resetErrs  <-chan error
	extra      <-chan price.Reset
	extraErrs  <-chan error
}

func (a *Aggregator) run(ctx context.Context, c *connection, in inputs) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in.updates:
			if !ok {
				a.finish(c, nil, "updates")
				return
			}
			a.apply(c, UpdateEvent{Update: u})
		case _, ok := <-in.resets:
			if !ok {
				a.finish(c, nil, "resets")
				return
			}
			a.apply(c, ResetEvent{})
		case _, ok := <-in.extra:
			if !ok {
				a.finish(c, nil, "external resets")
				return
			}
			a.apply(c, ResetEvent{})
		case err := <-in.updateErrs:
			a.finish(c, err, "updates")
			return
		case err := <-in.resetErrs:
			a.finish(c, err, "resets")
			return
		case err := <-in.extraErrs:
			a.finish(c, err, "external resets")
			return
		}
	}
}

// apply folds ev into c's table and fans the result out.
func (a *Aggregator) apply(c *connection, ev Event) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if a.conn != c {
		// released while ev was in flight
		a.mu.Unlock()
		return
	}
	c.table = Fold(c.table, ev)
	next := c.table
	targets := c.subscribers()
	a.mu.Unlock()

	for _, sub := range targets {
		if sub.closed.Load() {
			continue
		}
		sub.observer.OnSnapshot(next.Clone())
	}
}

// finish tears c down after an upstream completed (err == nil) or failed.
func (a *Aggregator) finish(c *connection, err error, upstream string) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if a.conn != c {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	targets := c.subscribers()
	c.subs = make(map[*Subscription]struct{})
	a.mu.Unlock()

	c.cancel()

	if err != nil {
		a.logger.Error("price upstream failed",
			zap.Uint64("conn", c.id), zap.String("upstream", upstream), zap.Error(err))
	} else {
		a.logger.Info("price upstream completed",
			zap.Uint64("conn", c.id), zap.String("upstream", upstream))
	}

	for _, sub := range targets {
		if !sub.end(err) {
			continue
		}
		if err != nil {
			sub.observer.OnError(err)
		} else {
			sub.observer.OnComplete()
		}
	}
}

func (a *Aggregator) unsubscribe(sub *Subscription) {
	a.mu.Lock()
	c := sub.conn
	delete(c.subs, sub)
	release := a.conn == c && len(c.subs) == 0
	if release {
		a.conn = nil
	}
	a.mu.Unlock()

	if release {
		c.cancel()
		a.logger.Info("price upstreams released", zap.Uint64("conn", c.id))
	}
}

// subscribers lists c's observers. Caller holds a.mu.
func (c *connection) subscribers() []*Subscription {
	out := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		out = append(out, sub)
	}
	return out
}

// Unsubscribe detaches the observer. It is safe to call more than once and
// from inside an Observer callback.
func (s *Subscription) Unsubscribe() {
	if s.end(nil) {
		s.agg.unsubscribe(s)
	}
}

// Done is closed once the subscription has ended, whether by Unsubscribe or
// because the upstream completed or failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the upstream error that ended the subscription, if any.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) end(err error) bool {
	ended := false
	s.once.Do(func() {
		s.err = err
		s.closed.Store(true)
		close(s.done)
		ended = true
	})
	return ended
}
