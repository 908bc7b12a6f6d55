package barrier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
)

type command int

const (
	cmdGrant command = iota
	cmdClose
	cmdReset
)

// Options tune one controller's timers.
type Options struct {
	// OpenTime is how long the gate stays open before auto-closing.
	OpenTime time.Duration
	// ActuationTimeout bounds how long a motion may wait for sensor
	// confirmation before it is treated as complete (fail-open).
	ActuationTimeout time.Duration
	// OnFault, when set, is invoked once each time the controller latches
	// a fault. Called from the run loop; keep it non-blocking.
	OnFault func(barrierID, detail string)
}

// Controller drives one physical barrier. It exclusively owns the barrier's
// state; all hardware commands are issued from its run loop, never from
// callers.
type Controller struct {
	id   string
	hw   Hardware
	opts Options
	log  zerolog.Logger

	cmds chan command

	mu    sync.Mutex
	state gate.BarrierState
}

func NewController(id string, hw Hardware, opts Options, log zerolog.Logger) *Controller {
	return &Controller{
		id:    id,
		hw:    hw,
		opts:  opts,
		log:   log.With().Str("component", "barrier").Str("barrier_id", id).Logger(),
		cmds:  make(chan command, 8),
		state: gate.BarrierClosed,
	}
}

func (c *Controller) ID() string { return c.id }

// State returns the last state published by the run loop.
func (c *Controller) State() gate.BarrierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Grant requests an open cycle for an authorized pass. Ignored while the
// barrier is moving; restarts the auto-close timer if already open.
func (c *Controller) Grant() { c.cmds <- cmdGrant }

// RequestClose closes the gate ahead of the auto-close timer.
func (c *Controller) RequestClose() { c.cmds <- cmdClose }

// Reset clears a latched fault. The gate returns to Closed.
func (c *Controller) Reset() { c.cmds <- cmdReset }

func (c *Controller) setState(s gate.BarrierState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.Info().Str("from", string(prev)).Str("to", string(s)).Msg("barrier state change")
	}
}

// Run processes commands, hardware signals and timers until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	actuation := time.NewTimer(time.Hour)
	stopTimer(actuation)
	defer actuation.Stop()

	autoClose := time.NewTimer(time.Hour)
	stopTimer(autoClose)
	defer autoClose.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-c.cmds:
			c.handleCommand(cmd, actuation, autoClose)

		case ev := <-c.hw.Events():
			c.handleHardwareEvent(ev, actuation, autoClose)

		case <-actuation.C:
			c.handleActuationTimeout(autoClose)

		case <-autoClose.C:
			if c.State() == gate.BarrierOpen {
				c.beginClosing(actuation, autoClose)
			}
		}
	}
}

func (c *Controller) handleCommand(cmd command, actuation, autoClose *time.Timer) {
	state := c.State()

	switch cmd {
	case cmdGrant:
		switch state {
		case gate.BarrierClosed:
			if err := c.hw.Open(); err != nil {
				c.log.Error().Err(err).Msg("open command failed, latching fault")
				c.enterFault(actuation, autoClose, "open command failed: "+err.Error())
				return
			}
			c.setState(gate.BarrierOpening)
			resetTimer(actuation, c.opts.ActuationTimeout)
		case gate.BarrierOpen:
			// Vehicle still passing: keep the gate up a full cycle.
			resetTimer(autoClose, c.opts.OpenTime)
		default:
			c.log.Debug().Str("state", string(state)).Msg("grant ignored")
		}

	case cmdClose:
		if state == gate.BarrierOpen {
			stopTimer(autoClose)
			c.beginClosing(actuation, autoClose)
		}

	case cmdReset:
		if state != gate.BarrierFault {
			return
		}
		if err := c.hw.Close(); err != nil {
			c.log.Error().Err(err).Msg("close on reset failed")
		}
		c.setState(gate.BarrierClosed)
		c.log.Info().Msg("fault cleared by external reset")
	}
}

func (c *Controller) handleHardwareEvent(ev HardwareEvent, actuation, autoClose *time.Timer) {
	switch ev.Kind {
	case FaultSignal:
		c.log.Error().Str("detail", ev.Detail).Msg("hardware fault signal")
		c.enterFault(actuation, autoClose, ev.Detail)

	case SensorOpened:
		if c.State() == gate.BarrierOpening {
			stopTimer(actuation)
			c.setState(gate.BarrierOpen)
			resetTimer(autoClose, c.opts.OpenTime)
		}

	case SensorClosed:
		if c.State() == gate.BarrierClosing {
			stopTimer(actuation)
			c.setState(gate.BarrierClosed)
		}
	}
}

// handleActuationTimeout applies the fail-open policy: a motion that never
// confirmed is treated as having completed.
func (c *Controller) handleActuationTimeout(autoClose *time.Timer) {
	switch c.State() {
	case gate.BarrierOpening:
		c.log.Warn().Msg("open confirmation timed out, assuming open")
		c.setState(gate.BarrierOpen)
		resetTimer(autoClose, c.opts.OpenTime)
	case gate.BarrierClosing:
		c.log.Warn().Msg("close confirmation timed out, assuming closed")
		c.setState(gate.BarrierClosed)
	}
}

func (c *Controller) beginClosing(actuation, autoClose *time.Timer) {
	if err := c.hw.Close(); err != nil {
		c.log.Error().Err(err).Msg("close command failed, latching fault")
		c.enterFault(actuation, autoClose, "close command failed: "+err.Error())
		return
	}
	c.setState(gate.BarrierClosing)
	resetTimer(actuation, c.opts.ActuationTimeout)
}

// enterFault latches the fault state. No open or close command is issued
// again until an external Reset.
func (c *Controller) enterFault(actuation, autoClose *time.Timer, detail string) {
	stopTimer(actuation)
	stopTimer(autoClose)
	c.setState(gate.BarrierFault)
	if c.opts.OnFault != nil {
		c.opts.OnFault(c.id, detail)
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
