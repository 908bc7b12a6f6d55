package authorize

import (
	"time"

	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
)

// Engine turns recognition events into access decisions against the current
// registry snapshot. Read-only with respect to the registry.
type Engine struct {
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time
}

func NewEngine(registry *Registry, log zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		log:      log.With().Str("component", "authorize").Logger(),
		now:      time.Now,
	}
}

// Authorize grants iff a registry entry exists for the event's plate, is
// authorized, and the current time falls within its validity window.
// Open-ended bounds are treated as unbounded.
func (e *Engine) Authorize(ev gate.RecognitionEvent) gate.AccessDecision {
	now := e.now()
	decision := gate.AccessDecision{
		Event:     ev,
		DecidedAt: now,
	}

	snap := e.registry.Current()
	vehicle, ok := snap.Vehicles[ev.Plate]
	switch {
	case !ok:
		decision.Reason = gate.ReasonUnknownPlate
	case !vehicle.Authorized:
		decision.Reason = gate.ReasonRevoked
	case vehicle.ValidFrom != nil && now.Before(*vehicle.ValidFrom),
		vehicle.ValidUntil != nil && now.After(*vehicle.ValidUntil):
		decision.Reason = gate.ReasonExpired
	default:
		decision.Granted = true
		decision.Reason = gate.ReasonGranted
	}

	e.log.Info().
		Str("plate", ev.Plate).
		Str("camera_id", ev.CameraID).
		Bool("granted", decision.Granted).
		Str("reason", string(decision.Reason)).
		Msg("access decision")

	return decision
}
