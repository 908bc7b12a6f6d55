package recognize

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
)

// Recognizer runs frames through the preferred engine with a permanent
// degrade to the fallback on hardware fault, then postprocesses raw reads
// into candidates.
type Recognizer struct {
	preferred Engine
	fallback  Engine
	post      *Postprocessor
	store     FrameStore
	log       zerolog.Logger

	degraded atomic.Bool
}

// NewRecognizer wires the engine strategy resolved at pipeline startup.
// preferred may be nil when only the classical path is configured; store may
// be nil when image retention is disabled.
func NewRecognizer(preferred, fallback Engine, post *Postprocessor, store FrameStore, log zerolog.Logger) *Recognizer {
	return &Recognizer{
		preferred: preferred,
		fallback:  fallback,
		post:      post,
		store:     store,
		log:       log.With().Str("component", "recognize").Logger(),
	}
}

// Degraded reports whether the accelerated path has been abandoned.
func (r *Recognizer) Degraded() bool { return r.degraded.Load() }

// Recognize produces zero or more candidates for one frame. Engine faults
// are recovered locally and never surface to the caller.
func (r *Recognizer) Recognize(ctx context.Context, frame gate.Frame) []gate.PlateCandidate {
	engine := r.preferred
	if engine == nil || r.degraded.Load() {
		engine = r.fallback
	}

	reads, err := engine.Recognize(ctx, frame)
	if err != nil && ctx.Err() != nil {
		// A timed-out or cancelled frame is dropped, not an engine fault.
		r.log.Debug().Str("camera_id", frame.CameraID).Msg("recognition cancelled, frame dropped")
		return nil
	}
	if err != nil && engine == r.preferred && r.fallback != nil {
		if r.degraded.CompareAndSwap(false, true) {
			r.log.Warn().Err(err).
				Str("camera_id", frame.CameraID).
				Msg("accelerated path faulted, degrading to classical OCR")
		}
		engine = r.fallback
		reads, err = engine.Recognize(ctx, frame)
	}
	if err != nil {
		r.log.Error().Err(err).Str("camera_id", frame.CameraID).Msg("recognition failed, frame dropped")
		return nil
	}

	var candidates []gate.PlateCandidate
	for _, read := range reads {
		cand, ok := r.post.Candidate(read, frame, engine.Method())
		if !ok {
			r.log.Debug().
				Str("text", read.Text).
				Float64("confidence", read.Confidence).
				Msg("candidate discarded by postprocessing")
			continue
		}
		candidates = append(candidates, cand)
	}

	if r.store != nil && len(candidates) > 0 {
		if err := r.store.Save(ctx, frame); err != nil {
			r.log.Error().Err(err).Str("camera_id", frame.CameraID).Msg("frame retention failed")
		}
	}
	return candidates
}

// Close releases engine resources.
func (r *Recognizer) Close() error {
	var first error
	if r.preferred != nil {
		if err := r.preferred.Close(); err != nil {
			first = err
		}
	}
	if r.fallback != nil {
		if err := r.fallback.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
