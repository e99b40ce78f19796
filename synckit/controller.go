package synckit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
)

// Connectivity is the connectivity collaborator.
type Connectivity interface {
	// Offline reports whether the device currently has no connection.
	Offline() bool
	// Foreground reports whether the application is in the foreground.
	Foreground() bool
}

// Session reports whether a user is authenticated.
type Session interface {
	LoggedIn() bool
}

// StatusSource exposes the derived views the controller gates on.
type StatusSource interface {
	UnsyncedIDs() []string
	ErrorIDs() []string
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Status       StatusSource
	Connectivity Connectivity
	Session      Session

	// Push drains pending local edits. Pull fetches and merges the full
	// dataset. Either may be nil.
	Push func(ctx context.Context) error
	Pull func(ctx context.Context) error

	PullInterval         time.Duration
	TickInterval         time.Duration
	ConnectivityDebounce time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// Evaluation is the outcome of one controller tick.
type Evaluation struct {
	Offline bool
	Pushed  bool
	Pulled  bool
	PushErr error
	PullErr error
}

// Controller coordinates pushes and pulls. Each tick it updates the pull
// policy from connectivity, errors and the clock, pushes pending edits when
// possible, and dispatches a pull only when the gate allows it.
type Controller struct {
	opts   ControllerOptions
	policy *PullPolicy
	logger *slog.Logger

	evalMu   sync.Mutex
	debounce debouncer

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	trigger chan struct{}
}

// NewController validates opts and returns a stopped controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Status == nil || opts.Connectivity == nil || opts.Session == nil {
		return nil, syncErrors.E(syncErrors.OpSync, syncErrors.Component("controller"), syncErrors.KindInvalid,
			errors.New("status, connectivity and session are required"))
	}
	if opts.TickInterval <= 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpSync,
			fmt.Errorf("tick interval must be positive, got %v", opts.TickInterval))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent(logging.Component("sync-controller")).Logger
	}

	return &Controller{
		opts:     opts,
		policy:   NewPullPolicy(opts.PullInterval),
		logger:   opts.Logger,
		debounce: debouncer{window: opts.ConnectivityDebounce},
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Policy returns the controller's pull request policy.
func (c *Controller) Policy() *PullPolicy {
	return c.policy
}

// Activate marks the first activation, requesting an initial pull.
func (c *Controller) Activate() {
	c.policy.Activate(c.opts.Clock())
}

// Evaluate runs one tick synchronously. Concurrent calls are serialised.
func (c *Controller) Evaluate(ctx context.Context) Evaluation {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	now := c.opts.Clock()
	var eval Evaluation

	eval.Offline = c.debounce.observe(c.opts.Connectivity.Offline(), now)
	c.policy.ObserveConnectivity(eval.Offline)
	c.policy.ObserveErrors(c.opts.Status.ErrorIDs())
	c.policy.Tick(now)

	state := GateState{
		LoggedIn:    c.opts.Session.LoggedIn(),
		Offline:     eval.Offline,
		Foreground:  c.opts.Connectivity.Foreground(),
		UnsyncedIDs: c.opts.Status.UnsyncedIDs(),
	}

	if c.opts.Push != nil && CanDispatchPush(state) {
		eval.Pushed = true
		if err := c.opts.Push(ctx); err != nil {
			eval.PushErr = err
			c.logger.Warn("Push cycle failed", "error", err)
		}
		state.UnsyncedIDs = c.opts.Status.UnsyncedIDs()
	}

	state.PullRequested = c.policy.Requested()
	if c.opts.Pull != nil && CanDispatchPull(state) {
		c.policy.Clear(now)
		eval.Pulled = true
		if err := c.opts.Pull(ctx); err != nil {
			eval.PullErr = err
			c.policy.Request()
			c.logger.Warn("Pull failed, will retry on next tick", "error", err)
		}
	}

	return eval
}

// Trigger asks a running controller to evaluate as soon as possible instead
// of waiting for the next tick. It never blocks.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Start activates the controller and runs the tick loop until Stop is called
// or ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.stop != nil {
		select {
		case <-c.done:
			// the previous loop ended with its context
		default:
			return syncErrors.New(syncErrors.OpSync, errors.New("controller is already running"))
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	c.Activate()
	go c.run(ctx, stop, done)

	c.logger.Info("Sync controller started",
		"tick_interval", c.opts.TickInterval,
		"pull_interval", c.opts.PullInterval)
	return nil
}

func (c *Controller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer func() {
		ticker.Stop()
		close(done)
		c.logger.Info("Sync controller loop stopped")
	}()

	c.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.Evaluate(ctx)
		case <-c.trigger:
			c.Evaluate(ctx)
		}
	}
}

// Stop stops the tick loop and waits for an in-progress tick to finish.
// Stopping a controller that is not running is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the tick loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
