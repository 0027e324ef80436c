//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_subscriber.go -package=mocks

// Package broadcast fans typed events out to live subscribers grouped by key.
//
// A Registry keeps one group per key, each guarded by its own mutex, so
// traffic on one chat never blocks another. Publish snapshots the group's
// subscribers and queues the event; a per-group drain goroutine delivers
// queued events strictly in order, with a bounded timeout per delivery. A
// subscriber whose delivery fails is removed from every group and closed.
//
// The registry never checks membership. Callers authorize before they
// subscribe, and when access ends they take the subscriber out with
// UnsubscribeID or close the whole key with Retire.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultDeliveryTimeout bounds one Deliver call when Options leaves it zero.
const DefaultDeliveryTimeout = 5 * time.Second

// Subscriber is a live connection handle. Deliver may be called from several
// goroutines at once (one per group the subscriber is in) and must honour
// ctx. Close may be called more than once.
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, ev Event) error
	Close() error
}

type Options struct {
	// Name labels logs and metrics, e.g. "chats" or "inboxes".
	Name            string
	DeliveryTimeout time.Duration
	Logger          *zap.Logger
	Metrics         *Metrics
}

type Registry[K comparable] struct {
	name    string
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics

	groups sync.Map // K -> *group
	index  sync.Map // subscriber id -> *subscription[K]
}

type group struct {
	mu       sync.Mutex
	subs     map[string]Subscriber
	queue    []pending
	draining bool
	// retiring is set by Retire. The group takes no new subscribers or
	// events and is dropped once its queue is empty.
	retiring bool
	// dead is set once the group has been removed from the map. Anyone
	// holding a stale pointer must look the key up again.
	dead bool
}

type pending struct {
	ev      Event
	targets []Subscriber
}

// subscription is the reverse index of one subscriber: every key it is
// subscribed to. removed marks a record dropped by UnsubscribeAll.
type subscription[K comparable] struct {
	mu      sync.Mutex
	keys    map[K]struct{}
	removed bool
}

func New[K comparable](opts Options) *Registry[K] {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry[K]{
		name:    opts.Name,
		timeout: opts.DeliveryTimeout,
		logger:  opts.Logger.With(zap.String("registry", opts.Name)),
		metrics: opts.Metrics,
	}
}

// Subscribe adds sub to key's group. It is idempotent and reports whether
// sub was newly added.
func (r *Registry[K]) Subscribe(key K, sub Subscriber) bool {
	for {
		v, _ := r.index.LoadOrStore(sub.ID(), &subscription[K]{keys: make(map[K]struct{})})
		rec := v.(*subscription[K])

		rec.mu.Lock()
		if rec.removed {
			rec.mu.Unlock()
			continue
		}
		added, member := r.addToGroup(key, sub)
		if member {
			rec.keys[key] = struct{}{}
		}
		rec.mu.Unlock()

		if added {
			r.metrics.subscribers(r.name, 1)
		}
		return added
	}
}

// addToGroup reports whether sub was added and whether it is in the group
// afterwards. A retiring group refuses everyone.
func (r *Registry[K]) addToGroup(key K, sub Subscriber) (added, member bool) {
	for {
		v, _ := r.groups.LoadOrStore(key, &group{subs: make(map[string]Subscriber)})
		g := v.(*group)

		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		if g.retiring {
			g.mu.Unlock()
			return false, false
		}
		if _, ok := g.subs[sub.ID()]; ok {
			g.mu.Unlock()
			return false, true
		}
		g.subs[sub.ID()] = sub
		g.mu.Unlock()
		return true, true
	}
}

// Unsubscribe removes sub from key's group. It is idempotent and reports
// whether sub was present. Events already queued for the group are not
// delivered to sub once this returns.
func (r *Registry[K]) Unsubscribe(key K, sub Subscriber) bool {
	return r.UnsubscribeID(key, sub.ID())
}

// UnsubscribeID is Unsubscribe for callers that hold only the subscriber's
// id, such as one taken from Subscribers on another registry.
func (r *Registry[K]) UnsubscribeID(key K, id string) bool {
	if v, ok := r.index.Load(id); ok {
		rec := v.(*subscription[K])
		rec.mu.Lock()
		delete(rec.keys, key)
		rec.mu.Unlock()
	}
	return r.removeFromGroup(key, id)
}

// UnsubscribeAll removes sub from every group it is in and returns how many
// that was. Sessions call it on termination.
func (r *Registry[K]) UnsubscribeAll(sub Subscriber) int {
	v, ok := r.index.LoadAndDelete(sub.ID())
	if !ok {
		return 0
	}
	rec := v.(*subscription[K])

	rec.mu.Lock()
	rec.removed = true
	keys := lo.Keys(rec.keys)
	rec.keys = nil
	rec.mu.Unlock()

	n := 0
	for _, k := range keys {
		if r.removeFromGroup(k, sub.ID()) {
			n++
		}
	}
	return n
}

func (r *Registry[K]) removeFromGroup(key K, id string) bool {
	v, ok := r.groups.Load(key)
	if !ok {
		return false
	}
	g := v.(*group)

	g.mu.Lock()
	_, present := g.subs[id]
	delete(g.subs, id)
	r.pruneLocked(key, g)
	g.mu.Unlock()

	if present {
		r.metrics.subscribers(r.name, -1)
	}
	return present
}

// pruneLocked drops an idle, empty group from the map. g.mu must be held.
func (r *Registry[K]) pruneLocked(key K, g *group) {
	if len(g.subs) == 0 && !g.draining && !g.dead {
		g.dead = true
		r.groups.CompareAndDelete(key, g)
	}
}

// Retire closes key's group for good. Events already queued are still
// delivered; after that every subscriber is dropped and the group removed.
// From the moment Retire is called, Publish reaches nobody and Subscribe
// refuses the key. It is meant for keys that never come back, such as the
// id of a deleted chat.
func (r *Registry[K]) Retire(key K) {
	v, ok := r.groups.Load(key)
	if !ok {
		return
	}
	g := v.(*group)

	g.mu.Lock()
	if g.dead || g.retiring {
		g.mu.Unlock()
		return
	}
	g.retiring = true
	var dropped []string
	if !g.draining {
		dropped = r.dropLocked(key, g)
	}
	g.mu.Unlock()

	r.forget(key, dropped)
}

// dropLocked empties a retiring group and removes it from the map. It
// returns the ids it removed. g.mu must be held.
func (r *Registry[K]) dropLocked(key K, g *group) []string {
	ids := lo.Keys(g.subs)
	clear(g.subs)
	g.dead = true
	r.groups.CompareAndDelete(key, g)
	return ids
}

// forget removes key from the reverse index of every id. It takes the
// subscription locks, so no group lock may be held.
func (r *Registry[K]) forget(key K, ids []string) {
	for _, id := range ids {
		if v, ok := r.index.Load(id); ok {
			rec := v.(*subscription[K])
			rec.mu.Lock()
			delete(rec.keys, key)
			rec.mu.Unlock()
		}
	}
	if len(ids) > 0 {
		r.metrics.subscribers(r.name, -float64(len(ids)))
	}
}

// Publish queues ev for everyone subscribed to key right now and returns
// the number of targets. It never blocks on delivery and never fails: a
// broken subscriber is logged and evicted, the publisher is not told.
//
// Events published for the same key are delivered in Publish order.
func (r *Registry[K]) Publish(key K, ev Event) int {
	r.metrics.published(r.name, ev.Name())

	v, ok := r.groups.Load(key)
	if !ok {
		return 0
	}
	g := v.(*group)

	g.mu.Lock()
	if g.dead || g.retiring || len(g.subs) == 0 {
		g.mu.Unlock()
		return 0
	}
	targets := lo.Values(g.subs)
	g.queue = append(g.queue, pending{ev: ev, targets: targets})
	start := !g.draining
	g.draining = true
	g.mu.Unlock()

	if start {
		go r.drain(key, g)
	}
	return len(targets)
}

func (r *Registry[K]) drain(key K, g *group) {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			var dropped []string
			if g.retiring {
				dropped = r.dropLocked(key, g)
			} else {
				r.pruneLocked(key, g)
			}
			g.mu.Unlock()
			r.forget(key, dropped)
			return
		}
		p := g.queue[0]
		g.queue[0] = pending{}
		g.queue = g.queue[1:]

		// Skip targets that unsubscribed after the snapshot was taken.
		targets := p.targets[:0]
		for _, s := range p.targets {
			if _, ok := g.subs[s.ID()]; ok {
				targets = append(targets, s)
			}
		}
		g.mu.Unlock()

		r.fanOut(key, p.ev, targets)
	}
}

// fanOut delivers ev to every target concurrently and waits for all of them,
// so the next event for the group cannot overtake this one.
func (r *Registry[K]) fanOut(key K, ev Event, targets []Subscriber) {
	if len(targets) == 0 {
		return
	}
	start := time.Now()

	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			if err := r.deliver(s, ev); err != nil {
				r.metrics.failed(r.name)
				r.logger.Warn("delivery failed, evicting subscriber",
					zap.String("subscriber", s.ID()),
					zap.Any("key", key),
					zap.String("event", ev.Name()),
					zap.Error(err),
				)
				r.evict(s)
				return
			}
			r.metrics.delivered(r.name)
		}(s)
	}
	wg.Wait()

	r.metrics.fanout(r.name, time.Since(start).Seconds())
}

// deliver runs one Deliver call with its own timeout. The call gets a fresh
// context: delivery outlives whatever request triggered the publish.
func (r *Registry[K]) deliver(s Subscriber, ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Deliver(ctx, ev) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrDelivery, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: timed out after %s", apperr.ErrDelivery, r.timeout)
	}
}

func (r *Registry[K]) evict(s Subscriber) {
	r.UnsubscribeAll(s)
	if err := s.Close(); err != nil {
		r.logger.Debug("close evicted subscriber", zap.String("subscriber", s.ID()), zap.Error(err))
	}
}

// Subscribers returns the ids currently subscribed to key.
func (r *Registry[K]) Subscribers(key K) []string {
	v, ok := r.groups.Load(key)
	if !ok {
		return nil
	}
	g := v.(*group)

	g.mu.Lock()
	defer g.mu.Unlock()
	return lo.Keys(g.subs)
}

// Keys returns every key sub is subscribed to.
func (r *Registry[K]) Keys(sub Subscriber) []K {
	v, ok := r.index.Load(sub.ID())
	if !ok {
		return nil
	}
	rec := v.(*subscription[K])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return lo.Keys(rec.keys)
}
