package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

// DefaultInterval is the animation timer period.
const DefaultInterval = 3 * time.Second

// ErrStopped is returned by controller calls made after Run has returned.
var ErrStopped = errors.New("controller stopped")

// DirectionsProvider computes a driving route for a request.
type DirectionsProvider interface {
	Route(ctx context.Context, req types.DirectionsRequest) (types.Route, error)
}

// Ticker is a cancellable periodic timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Options configures a Controller.
type Options struct {
	Directions DirectionsProvider
	Animator   Animator

	// Device is sampled once when Run starts. With SeedOrigin set that sample
	// becomes the first waypoint ahead of the first added one.
	Device     LocationSource
	SeedOrigin bool

	Interval  time.Duration
	NewTicker func(time.Duration) Ticker
	Logger    *slog.Logger
}

// Controller owns a State and serializes every mutation through one event loop:
// waypoint additions, tracking starts, timer ticks and directions results.
type Controller struct {
	opts Options
	log  *slog.Logger
	inst *instruments

	// loop-owned
	state  State
	origin *types.Coordinate
	ticker Ticker
	tickC  <-chan time.Time
	runCtx context.Context

	events  chan func()
	done    chan struct{}
	running atomic.Bool
	latest  atomic.Pointer[Snapshot]

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

func NewController(opts Options) (*Controller, error) {
	if opts.Directions == nil {
		return nil, fmt.Errorf("directions provider is required")
	}
	if opts.Animator == nil {
		return nil, fmt.Errorf("animator is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	inst, err := newInstruments(meter())
	if err != nil {
		return nil, err
	}

	c := &Controller{
		opts:   opts,
		log:    opts.Logger.With("strategy", string(opts.Animator.Strategy())),
		inst:   inst,
		events: make(chan func()),
		done:   make(chan struct{}),
		subs:   make(map[int]chan Snapshot),
	}
	snap := c.state.Snapshot(opts.Animator.Strategy())
	c.latest.Store(&snap)
	return c, nil
}

// Run processes events until ctx is done. The timer is released and all
// subscriptions are closed before it returns. Run may only be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("controller already running")
	}
	c.runCtx = ctx

	defer close(c.done)
	defer c.closeSubscribers()
	defer c.releaseTimer()

	c.sampleOrigin(ctx)
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("controller stopping", "tracking", c.state.Tracking())
			return nil
		case fn := <-c.events:
			fn()
		case <-c.tickC:
			c.onTick(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// AddWaypoint appends a clicked point and, with two or more points, requests a
// new route. It blocks until the loop has taken the click.
func (c *Controller) AddWaypoint(ctx context.Context, pt types.Coordinate) error {
	if !pt.Valid() {
		return fmt.Errorf("%w: %s", types.ErrInvalidCoordinate, pt)
	}
	return c.call(ctx, func() { c.addWaypoint(pt) })
}

// StartTracking moves Idle -> Tracking. Without a route, or while already
// tracking, nothing changes and ErrNoRoute or ErrAlreadyTracking is returned.
func (c *Controller) StartTracking(ctx context.Context) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.startTracking() }); callErr != nil {
		return callErr
	}
	return err
}

// Snapshot reads the state on the loop, after every event queued before it.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() { snap = c.state.Snapshot(c.opts.Animator.Strategy()) })
	return snap, err
}

// Latest returns the most recently published snapshot without waiting on the loop.
func (c *Controller) Latest() Snapshot {
	return *c.latest.Load()
}

// Subscribe returns a channel carrying the latest snapshot after every state
// change. Slow readers only miss intermediate snapshots. The channel is closed
// by cancel or when Run returns.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- *c.latest.Load()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// call runs fn on the loop and waits for it to finish.
func (c *Controller) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// post queues fn without waiting. It is dropped if the loop has exited.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Controller) sampleOrigin(ctx context.Context) {
	if c.opts.Device == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, c.opts.Interval)
	defer cancel()

	pos, err := c.opts.Device.CurrentPosition(sctx)
	if err != nil {
		c.log.Warn("device location unavailable, first click becomes the origin", "error", err)
		return
	}
	c.origin = &pos
	c.log.Info("device location", "position", pos.String())
}

func (c *Controller) addWaypoint(pt types.Coordinate) {
	if c.opts.SeedOrigin && c.state.WaypointCount() == 0 && c.origin != nil {
		c.state.AddWaypoint(*c.origin)
		c.log.Info("origin seeded from device location", "origin", c.origin.String())
	}

	req, ok := c.state.AddWaypoint(pt)
	c.log.Info("waypoint added", "point", pt.String(), "waypoints", c.state.WaypointCount())
	if ok {
		c.requestDirections(req)
	}
	c.publish()
}

func (c *Controller) requestDirections(req types.DirectionsRequest) {
	ctx := c.runCtx
	c.inst.requests.Add(ctx, 1)
	c.log.Debug("requesting directions", "seq", req.Seq, "origin", req.Origin.String(),
		"destination", req.Destination.String(), "via", len(req.Waypoints))

	go func() {
		route, err := c.opts.Directions.Route(ctx, req)
		c.post(func() { c.applyDirections(req, route, err) })
	}()
}

func (c *Controller) applyDirections(req types.DirectionsRequest, route types.Route, err error) {
	if req.Seq != c.state.LatestSeq() {
		c.inst.stale.Add(c.runCtx, 1)
		c.log.Debug("discarding superseded directions", "seq", req.Seq, "latest", c.state.LatestSeq())
		return
	}
	if err != nil {
		c.inst.failures.Add(c.runCtx, 1)
		c.log.Error("directions request failed", "seq", req.Seq, "error", err)
		return
	}

	c.state.SetRoute(req.Seq, route)
	c.log.Info("route updated", "seq", req.Seq, "legs", len(route.Legs),
		"steps", len(route.Steps()), "distance_m", route.Distance)

	if c.state.Tracking() {
		if err := c.opts.Animator.Begin(&c.state); err != nil {
			c.log.Warn("new route cannot be tracked", "error", err)
			c.stopTracking()
		}
	}
	c.publish()
}

func (c *Controller) startTracking() error {
	if err := c.state.StartTracking(); err != nil {
		return err
	}
	if err := c.opts.Animator.Begin(&c.state); err != nil {
		c.state.StopTracking()
		return err
	}

	c.acquireTimer()
	c.log.Info("tracking started", "interval", c.opts.Interval)
	c.publish()
	return nil
}

func (c *Controller) stopTracking() {
	c.state.StopTracking()
	c.releaseTimer()
	c.log.Info("tracking stopped", "cursor", c.state.Cursor())
}

func (c *Controller) onTick(ctx context.Context) {
	if !c.state.Tracking() {
		c.releaseTimer()
		return
	}
	c.inst.ticks.Add(ctx, 1)

	tctx, cancel := context.WithTimeout(ctx, c.opts.Interval)
	err := c.opts.Animator.Tick(tctx, &c.state)
	cancel()

	if err != nil {
		c.inst.locationFailures.Add(ctx, 1)
		c.log.Warn("location sample failed, tick skipped", "error", err)
	}
	if v, ok := c.state.Vehicle(); ok && err == nil {
		c.log.Debug("vehicle moved", "position", v.String(), "cursor", c.state.Cursor())
	}
	if !c.state.Tracking() {
		c.stopTracking()
	}
	c.publish()
}

func (c *Controller) acquireTimer() {
	c.releaseTimer()
	c.ticker = c.opts.NewTicker(c.opts.Interval)
	c.tickC = c.ticker.C()
}

func (c *Controller) releaseTimer() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tickC = nil
}

func (c *Controller) publish() {
	snap := c.state.Snapshot(c.opts.Animator.Strategy())
	c.latest.Store(&snap)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.closed = true
}
