package recognize

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
)

// Pool fans one camera's frame stream across a bounded set of recognizer
// workers. A frame that exceeds FrameTimeout is dropped rather than stalling
// the camera pipeline.
type Pool struct {
	rec          *Recognizer
	workers      int
	frameTimeout time.Duration
	log          zerolog.Logger
}

func NewPool(rec *Recognizer, workers int, frameTimeout time.Duration, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		rec:          rec,
		workers:      workers,
		frameTimeout: frameTimeout,
		log:          log.With().Str("component", "recognize_pool").Logger(),
	}
}

// Run consumes frames until in closes or ctx is cancelled, then closes out.
func (p *Pool) Run(ctx context.Context, in <-chan gate.Frame, out chan<- gate.PlateCandidate) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, in, out)
		}()
	}
	wg.Wait()
	close(out)
}

func (p *Pool) worker(ctx context.Context, in <-chan gate.Frame, out chan<- gate.PlateCandidate) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			fctx := ctx
			var cancel context.CancelFunc
			if p.frameTimeout > 0 {
				fctx, cancel = context.WithTimeout(ctx, p.frameTimeout)
			}
			candidates := p.rec.Recognize(fctx, frame)
			expired := fctx.Err() != nil
			if cancel != nil {
				cancel()
			}
			if expired {
				// The engine may have kept working past the deadline
				// (cgo OCR behind a mutex cannot be interrupted); its
				// results are stale now, so the frame is dropped.
				if len(candidates) > 0 {
					p.log.Debug().
						Str("camera_id", frame.CameraID).
						Int("discarded", len(candidates)).
						Msg("frame exceeded recognition deadline, candidates dropped")
				}
				continue
			}
			for _, c := range candidates {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
