package aggregate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
	"parkgate/internal/utils"
)

// Options bound one camera's sliding window and its duplicate suppression.
type Options struct {
	// PassTimeout closes the window once no new candidate arrives for this
	// long.
	PassTimeout time.Duration
	// MaxFrames closes the window early once this many candidates have
	// accumulated.
	MaxFrames int
	// Cooldown suppresses repeat events for the same normalized plate from
	// the same camera.
	Cooldown time.Duration
}

// Aggregator merges the noisy per-frame candidate stream of one camera into
// one RecognitionEvent per physical vehicle pass.
type Aggregator struct {
	cameraID string
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	window      []gate.PlateCandidate
	lastEmitted map[string]time.Time
}

func New(cameraID string, opts Options, log zerolog.Logger) *Aggregator {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = 10
	}
	return &Aggregator{
		cameraID:    cameraID,
		opts:        opts,
		log:         log.With().Str("component", "aggregator").Str("camera_id", cameraID).Logger(),
		now:         time.Now,
		lastEmitted: make(map[string]time.Time),
	}
}

// Run consumes candidates until ctx is cancelled, emitting voted events on
// out. A partially collected window is discarded on cancellation, never
// emitted.
func (a *Aggregator) Run(ctx context.Context, in <-chan gate.PlateCandidate, out chan<- gate.RecognitionEvent) {
	// The timer stays stopped while the window is empty.
	timer := time.NewTimer(a.opts.PassTimeout)
	stopTimer(timer)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(a.window) > 0 {
				a.log.Debug().Int("discarded", len(a.window)).Msg("pipeline torn down, discarding partial window")
				a.window = nil
			}
			return

		case cand, ok := <-in:
			if !ok {
				return
			}
			a.window = append(a.window, cand)
			if len(a.window) >= a.opts.MaxFrames {
				a.closeWindow(ctx, out)
				stopTimer(timer)
				continue
			}
			stopTimer(timer)
			timer.Reset(a.opts.PassTimeout)

		case <-timer.C:
			if len(a.window) > 0 {
				a.closeWindow(ctx, out)
			}
		}
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

// closeWindow votes over the collected candidates and emits the winner,
// unless it falls inside the per-plate cool-down.
func (a *Aggregator) closeWindow(ctx context.Context, out chan<- gate.RecognitionEvent) {
	window := a.window
	a.window = nil

	ev := a.vote(window)

	now := a.now()

	// Entries past their cool-down can never suppress again; drop them so
	// the map stays bounded by recently seen plates.
	for plate, last := range a.lastEmitted {
		if now.Sub(last) >= a.opts.Cooldown {
			delete(a.lastEmitted, plate)
		}
	}

	if last, ok := a.lastEmitted[ev.Plate]; ok && now.Sub(last) < a.opts.Cooldown {
		a.log.Debug().
			Str("plate", ev.Plate).
			Time("last_emitted", last).
			Msg("duplicate pass suppressed by cool-down")
		return
	}

	select {
	case out <- ev:
		// The cool-down starts only once the event actually reached the
		// consumer; an emit lost to teardown must not suppress the next
		// pass.
		a.lastEmitted[ev.Plate] = now
		a.log.Info().
			Str("plate", ev.Plate).
			Float64("confidence", ev.Confidence).
			Int("candidates", len(ev.Candidates)).
			Msg("recognition event emitted")
	case <-ctx.Done():
	}
}

// vote performs confidence-weighted plurality voting over normalized
// candidate text. Ties break on highest single-candidate confidence, then on
// the most recent candidate.
func (a *Aggregator) vote(window []gate.PlateCandidate) gate.RecognitionEvent {
	type tally struct {
		weight float64
		sum    float64
		best   float64
		latest time.Time
		raw    string
	}
	tallies := make(map[string]*tally)

	for _, c := range window {
		key := utils.NormalizePlate(c.Text)
		t, ok := tallies[key]
		if !ok {
			t = &tally{}
			tallies[key] = t
		}
		t.weight += c.Confidence
		t.sum += c.Confidence * c.Confidence
		if c.Confidence > t.best {
			t.best = c.Confidence
			t.raw = c.Text
		}
		if c.FrameTime.After(t.latest) {
			t.latest = c.FrameTime
		}
	}

	var winner string
	var wt *tally
	for key, t := range tallies {
		if wt == nil {
			winner, wt = key, t
			continue
		}
		switch {
		case t.weight > wt.weight:
			winner, wt = key, t
		case t.weight == wt.weight && t.best > wt.best:
			winner, wt = key, t
		case t.weight == wt.weight && t.best == wt.best && t.latest.After(wt.latest):
			winner, wt = key, t
		}
	}

	confidence := 0.0
	if wt.weight > 0 {
		confidence = wt.sum / wt.weight
	}

	return gate.RecognitionEvent{
		ID:         uuid.NewString(),
		CameraID:   a.cameraID,
		Plate:      winner,
		RawPlate:   wt.raw,
		Confidence: confidence,
		EventTime:  a.now(),
		Candidates: window,
	}
}
