package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parkgate/internal/aggregate"
	"parkgate/internal/camera"
	"parkgate/internal/domain/gate"
	"parkgate/internal/parking"
	"parkgate/internal/recognize"
)

// CameraPipeline is one camera's independent chain: source → bounded frame
// queue → recognizer pool → aggregator. All of it tears down together when
// the camera's context is cancelled.
type CameraPipeline struct {
	source camera.Source
	queue  *camera.FrameQueue
	pool   *recognize.Pool
	agg    *aggregate.Aggregator
	log    zerolog.Logger
}

func NewCameraPipeline(source camera.Source, queue *camera.FrameQueue, pool *recognize.Pool, agg *aggregate.Aggregator, log zerolog.Logger) *CameraPipeline {
	return &CameraPipeline{
		source: source,
		queue:  queue,
		pool:   pool,
		agg:    agg,
		log:    log.With().Str("component", "pipeline").Str("camera_id", source.ID()).Logger(),
	}
}

// Run drives the chain until ctx is cancelled. Events are fanned into the
// shared events channel.
func (p *CameraPipeline) Run(ctx context.Context, events chan<- gate.RecognitionEvent) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.queue.Close()
		p.capture(ctx)
	}()

	candidates := make(chan gate.PlateCandidate, 32)
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pool.Run(ctx, p.queue.Frames(), candidates)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.agg.Run(ctx, candidates, events)
	}()

	wg.Wait()
	if err := p.source.Close(); err != nil {
		p.log.Error().Err(err).Msg("closing camera source")
	}
}

func (p *CameraPipeline) capture(ctx context.Context) {
	for {
		frame, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("frame capture failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.queue.Push(frame)
	}
}

// Authorizer yields an access decision for a recognition event.
type Authorizer interface {
	Authorize(ev gate.RecognitionEvent) gate.AccessDecision
}

// EventStore persists recognition events and access decisions.
type EventStore interface {
	SaveRecognitionEvent(ctx context.Context, ev gate.RecognitionEvent) error
	SaveAccessDecision(ctx context.Context, d gate.AccessDecision) error
}

// SessionHandler pairs entry/exit events into parking sessions.
type SessionHandler interface {
	HandleEntry(ctx context.Context, plate string, at time.Time) (*gate.ParkingSession, error)
	HandleExit(ctx context.Context, plate string, at time.Time) (*gate.ParkingSession, error)
}

// Gate accepts grants for one barrier.
type Gate interface {
	Grant()
}

// Notifier receives structured event payloads; implemented by the webhook
// dispatcher.
type Notifier interface {
	NotifyDecision(d gate.AccessDecision)
	NotifySessionCompleted(s *gate.ParkingSession)
}

// Route binds a camera to its lane direction and barrier.
type Route struct {
	Direction gate.Direction
	Barrier   Gate
}

// Dispatcher consumes the shared event stream: persist, authorize, actuate,
// and track sessions. Audit writes never block the decision.
type Dispatcher struct {
	auth     Authorizer
	store    EventStore
	sessions SessionHandler
	notifier Notifier
	routes   map[string]Route
	log      zerolog.Logger
}

func NewDispatcher(auth Authorizer, store EventStore, sessions SessionHandler, notifier Notifier, routes map[string]Route, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		auth:     auth,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		routes:   routes,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Run processes events until the channel closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan gate.RecognitionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev gate.RecognitionEvent) {
	if err := d.store.SaveRecognitionEvent(ctx, ev); err != nil {
		// An audit write failure must not stop the vehicle.
		d.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to persist recognition event")
	}

	decision := d.auth.Authorize(ev)

	if err := d.store.SaveAccessDecision(ctx, decision); err != nil {
		d.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to persist access decision")
	}
	if d.notifier != nil {
		d.notifier.NotifyDecision(decision)
	}

	if !decision.Granted {
		return
	}

	route, ok := d.routes[ev.CameraID]
	if !ok {
		d.log.Warn().Str("camera_id", ev.CameraID).Msg("granted event from unrouted camera")
		return
	}
	if route.Barrier != nil {
		route.Barrier.Grant()
	}

	switch route.Direction {
	case gate.DirectionEntry:
		if _, err := d.sessions.HandleEntry(ctx, ev.Plate, ev.EventTime); err != nil {
			d.log.Error().Err(err).Str("plate", ev.Plate).Msg("entry session update failed")
		}
	case gate.DirectionExit:
		session, err := d.sessions.HandleExit(ctx, ev.Plate, ev.EventTime)
		switch {
		case err == nil:
			if d.notifier != nil {
				d.notifier.NotifySessionCompleted(session)
			}
		case errors.Is(err, parking.ErrAnomalousExit):
			// Already counted and logged by the session manager.
		default:
			d.log.Error().Err(err).Str("plate", ev.Plate).Msg("exit session update failed")
		}
	}
}
