// Package flow coordinates a popup sign-in: it opens the popup, listens
// on the bridge for the relay page's message, watches the popup for a
// manual close and makes sure exactly one of those outcomes finalizes
// the flow.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexjbarnes/backoffice/internal/bridge"
	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/alexjbarnes/backoffice/internal/popup"
	"github.com/google/uuid"
)

// State is where a flow is in its lifecycle.
type State int32

const (
	Idle State = iota
	AwaitingCallback
	Processing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCallback:
		return "awaiting_callback"
	case Processing:
		return "processing"
	case Done:
		return "done"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// Outcomes reported to the Observer.
const (
	OutcomeSuccess       = "success"
	OutcomeProviderError = "provider_error"
	OutcomeExchangeError = "exchange_error"
	OutcomeTimeout       = "timeout"
	OutcomeCancelled     = "cancelled"
)

// DefaultPollInterval is how often the popup is checked for a manual close.
const DefaultPollInterval = time.Second

// Callbacks receive the result of a flow. At most one of OnSuccess and
// OnError is called, and neither is called when the operator closes the
// popup. OnState sees every transition. All are optional.
type Callbacks struct {
	OnSuccess func(res *models.LoginResult)
	OnError   func(err error)
	OnState   func(flowID string, s State)
}

// Config holds the dependencies and tunables of a Coordinator.
type Config struct {
	// Origin is the application's own origin. Messages from any other
	// origin are discarded.
	Origin string

	// PollInterval is the liveness check period. Defaults to one second.
	PollInterval time.Duration

	// Timeout abandons a flow still waiting for its callback. Zero
	// disables it.
	Timeout time.Duration

	Opener    popup.Opener
	Bus       *bridge.Bus
	Exchanger Exchanger
	Session   SessionWriter
	Observer  Observer
}

// Coordinator starts flows. Only one flow is active at a time; starting
// a new one tears the previous one down first.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	startMu sync.Mutex

	mu     sync.Mutex
	active *Flow
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Coordinator{
		cfg:    cfg,
		logger: logger,
	}
}

// Active returns the running flow, or nil.
func (c *Coordinator) Active() *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}

// StartFlow opens a popup at authorizationURL and arms the listener and
// liveness monitor. It fails with ErrPopupBlocked when the popup could
// not be opened, in which case no flow exists.
func (c *Coordinator) StartFlow(ctx context.Context, authorizationURL string, cb Callbacks) (*Flow, error) {
	u, err := url.Parse(authorizationURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, apperrors.ErrInvalidAuthorizationURL
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	if prev := c.Active(); prev != nil {
		c.logger.Info("replacing active sign-in", slog.String("flow", prev.id))
		prev.Cancel()
	}

	win, err := c.cfg.Opener.Open(ctx, authorizationURL)
	if err != nil {
		return nil, fmt.Errorf("opening popup: %w", err)
	}

	if win == nil {
		return nil, apperrors.ErrPopupBlocked
	}

	f := newFlow(ctx, c, win, cb)

	c.mu.Lock()
	c.active = f
	c.mu.Unlock()

	if c.cfg.Observer != nil {
		c.cfg.Observer.FlowStarted()
	}

	f.arm()

	c.logger.Info("sign-in started", slog.String("flow", f.id))

	return f, nil
}

// Close tears down the active flow and interrupts an exchange that is
// still in flight. Used on shutdown.
func (c *Coordinator) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if f := c.Active(); f != nil {
		f.Cancel()
		f.cancelCtx()
	}
}

func (c *Coordinator) release(f *Flow) {
	c.mu.Lock()
	if c.active == f {
		c.active = nil
	}
	c.mu.Unlock()
}

// Flow is one sign-in attempt.
type Flow struct {
	id      string
	c       *Coordinator
	window  popup.Window
	cb      Callbacks
	started time.Time
	logger  *slog.Logger

	// guard is the processing guard: whoever flips it first owns
	// finalization.
	guard atomic.Bool
	state atomic.Int32

	ctx       context.Context
	cancelCtx context.CancelFunc

	subMu       sync.Mutex
	unsubscribe func()
	released    bool
	stopMonitor chan struct{}
	popupClosed chan struct{}
	releaseOnce sync.Once
	done        chan struct{}
}

func newFlow(ctx context.Context, c *Coordinator, win popup.Window, cb Callbacks) *Flow {
	// The exchange must survive the request that started the flow.
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := uuid.NewString()

	f := &Flow{
		id:          id,
		c:           c,
		window:      win,
		cb:          cb,
		started:     time.Now(),
		logger:      c.logger.With(slog.String("flow", id)),
		ctx:         fctx,
		cancelCtx:   cancel,
		stopMonitor: make(chan struct{}),
		done:        make(chan struct{}),
	}
	f.state.Store(int32(Idle))

	return f
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// State returns the current state.
func (f *Flow) State() State { return State(f.state.Load()) }

// Window returns the popup handle.
func (f *Flow) Window() popup.Window { return f.window }

// Done is closed once the flow has finalized, whichever way.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Cancel tears the flow down without reporting a result, as if the
// popup had been closed. It does nothing once the flow is being
// processed; an exchange already in flight runs to completion.
func (f *Flow) Cancel() {
	if !f.guard.CompareAndSwap(false, true) {
		return
	}

	f.logger.Debug("sign-in cancelled")
	f.release()
	f.finish(Idle, OutcomeCancelled, nil, nil)
}

// arm registers the listener and starts the liveness monitor.
func (f *Flow) arm() {
	f.setState(AwaitingCallback)

	// Windows that can report their own close wake the monitor directly
	// instead of waiting for the next tick.
	if n, ok := f.window.(interface{ OnClose(func()) }); ok {
		ch := make(chan struct{})
		var once sync.Once
		f.popupClosed = ch
		n.OnClose(func() { once.Do(func() { close(ch) }) })
	}

	unsubscribe := f.c.cfg.Bus.Subscribe(f.onMessage)

	// A message can win the guard and release the flow before Subscribe
	// returns.
	f.subMu.Lock()
	if f.released {
		f.subMu.Unlock()
		unsubscribe()
	} else {
		f.unsubscribe = unsubscribe
		f.subMu.Unlock()
	}

	go f.monitor(f.c.cfg.PollInterval, f.c.cfg.Timeout)
}

// release closes the popup, removes the listener and stops the monitor.
// The three always go together.
func (f *Flow) release() {
	f.releaseOnce.Do(func() {
		f.subMu.Lock()
		f.released = true
		unsubscribe := f.unsubscribe
		f.subMu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}

		close(f.stopMonitor)

		if err := f.window.Close(); err != nil {
			f.logger.Debug("closing popup", slog.String("error", err.Error()))
		}
	})
}

// onMessage is the bridge listener. It runs on the posting goroutine.
func (f *Flow) onMessage(m bridge.Message) {
	if m.Origin != f.c.cfg.Origin {
		f.logger.Debug("ignoring message from foreign origin", slog.String("origin", m.Origin))
		return
	}

	msg, ok := bridge.DecodeAuthMessage(m.Data)
	if !ok {
		return
	}

	if !f.guard.CompareAndSwap(false, true) {
		f.logger.Debug("ignoring duplicate auth message")
		return
	}

	f.setState(Processing)
	f.release()

	go f.process(msg)
}

func (f *Flow) process(msg bridge.AuthMessage) {
	if msg.Kind == bridge.KindError {
		var err error = &apperrors.ProviderError{Reason: msg.Reason}
		outcome := OutcomeProviderError

		if msg.Reason == apperrors.ErrMalformedCallback.Error() {
			err = &apperrors.ExchangeError{Message: msg.Reason, Err: apperrors.ErrMalformedCallback}
			outcome = OutcomeExchangeError
		}

		f.logger.Info("sign-in rejected", slog.String("reason", msg.Reason))
		f.finish(Done, outcome, nil, err)

		return
	}

	res, err := f.c.cfg.Exchanger.ExchangeCode(f.ctx, msg.Code)
	if err != nil {
		var exErr *apperrors.ExchangeError
		if !errors.As(err, &exErr) {
			err = &apperrors.ExchangeError{Message: err.Error(), Err: err}
		}

		f.logger.Warn("code exchange failed", slog.String("error", err.Error()))
		f.finish(Done, OutcomeExchangeError, nil, err)

		return
	}

	if f.c.cfg.Session != nil {
		if err := f.c.cfg.Session.SetLogin(res); err != nil {
			f.logger.Warn("saving session failed", slog.String("error", err.Error()))
			f.finish(Done, OutcomeExchangeError, nil, fmt.Errorf("saving session: %w", err))

			return
		}
	}

	f.logger.Info("signed in",
		slog.String("user_id", res.User.ID.String()),
		slog.Bool("new_user", res.IsNewUser),
	)
	f.finish(Done, OutcomeSuccess, res, nil)
}

// monitor polls the popup while the flow waits for its callback.
func (f *Flow) monitor(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		select {
		case <-f.stopMonitor:
			return
		case <-f.popupClosed:
			f.popupGone()
			return
		case <-ticker.C:
			if f.guard.Load() {
				return
			}

			if f.window.Closed() {
				f.popupGone()
				return
			}
		case <-timeoutC:
			f.timedOut()
			return
		}
	}
}

// popupGone handles a popup closed before any message arrived. This is
// a cancellation and is not reported to the callbacks.
func (f *Flow) popupGone() {
	if !f.guard.CompareAndSwap(false, true) {
		return
	}

	f.logger.Info("popup closed before sign-in completed")
	f.release()
	f.finish(Idle, OutcomeCancelled, nil, nil)
}

func (f *Flow) timedOut() {
	if !f.guard.CompareAndSwap(false, true) {
		return
	}

	f.logger.Warn("sign-in timed out")
	f.release()
	f.finish(Done, OutcomeTimeout, nil, apperrors.ErrFlowTimeout)
}

// finish records the final state, reports the result and wakes Done
// waiters. Only the guard winner gets here, so it runs once.
func (f *Flow) finish(s State, outcome string, res *models.LoginResult, err error) {
	f.setState(s)

	switch {
	case err != nil:
		if f.cb.OnError != nil {
			f.cb.OnError(err)
		}
	case res != nil:
		if f.cb.OnSuccess != nil {
			f.cb.OnSuccess(res)
		}
	}

	if f.c.cfg.Observer != nil {
		f.c.cfg.Observer.FlowFinished(outcome, time.Since(f.started))
	}

	f.c.release(f)
	f.cancelCtx()
	close(f.done)
}

func (f *Flow) setState(s State) {
	f.state.Store(int32(s))

	if f.cb.OnState != nil {
		f.cb.OnState(f.id, s)
	}
}
