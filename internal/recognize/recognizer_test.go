package recognize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkgate/internal/domain/gate"
)

// fakeEngine serves canned reads or a fixed error and counts invocations.
type fakeEngine struct {
	mu     sync.Mutex
	method gate.Method
	reads  []Read
	err    error
	calls  int
}

func (f *fakeEngine) Method() gate.Method { return f.method }

func (f *fakeEngine) Recognize(context.Context, gate.Frame) ([]Read, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reads, f.err
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func passAllPostprocessor(t *testing.T, threshold float64) *Postprocessor {
	t.Helper()
	p, err := NewPostprocessor(Options{
		MinPlateLength:      2,
		MaxPlateLength:      10,
		ConfidenceThreshold: threshold,
	})
	require.NoError(t, err)
	return p
}

func TestThresholdFiltersCandidates(t *testing.T) {
	engine := &fakeEngine{
		method: gate.MethodClassical,
		reads: []Read{
			{Text: "AB12CDE", Confidence: 0.6},
			{Text: "AB12CDE", Confidence: 0.75},
			{Text: "AB12CDE", Confidence: 0.8},
			{Text: "AB12CDE", Confidence: 0.55},
			{Text: "AB12CDE", Confidence: 0.9},
		},
	}
	r := NewRecognizer(nil, engine, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())

	cands := r.Recognize(context.Background(), gate.Frame{CameraID: "cam-1", Capture: time.Now()})
	require.Len(t, cands, 3, "only reads at or above the threshold survive")
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.Confidence, 0.7)
		assert.Equal(t, "AB12CDE", c.Text)
	}
}

func TestAcceleratedFaultDegradesToClassical(t *testing.T) {
	accel := &fakeEngine{method: gate.MethodAccelerated, err: errors.New("npu hardware fault")}
	classical := &fakeEngine{
		method: gate.MethodClassical,
		reads:  []Read{{Text: "AB12CDE", Confidence: 0.9}},
	}
	r := NewRecognizer(accel, classical, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())

	frame := gate.Frame{CameraID: "cam-1", Capture: time.Now()}

	cands := r.Recognize(context.Background(), frame)
	require.Len(t, cands, 1)
	assert.Equal(t, gate.MethodClassical, cands[0].Method)
	assert.True(t, r.Degraded())

	// The accelerated path is abandoned for good, not retried per frame.
	r.Recognize(context.Background(), frame)
	r.Recognize(context.Background(), frame)
	assert.Equal(t, 1, accel.callCount())
	assert.Equal(t, 3, classical.callCount())
}

func TestBothPathsFailingDropsFrame(t *testing.T) {
	accel := &fakeEngine{method: gate.MethodAccelerated, err: errors.New("npu fault")}
	classical := &fakeEngine{method: gate.MethodClassical, err: errors.New("decode failure")}
	r := NewRecognizer(accel, classical, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())

	cands := r.Recognize(context.Background(), gate.Frame{CameraID: "cam-1"})
	assert.Empty(t, cands)
}

// recordingStore captures retained frames.
type recordingStore struct {
	mu     sync.Mutex
	frames []gate.Frame
}

func (s *recordingStore) Save(_ context.Context, f gate.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func TestRetentionOnlyOnHits(t *testing.T) {
	store := &recordingStore{}
	engine := &fakeEngine{method: gate.MethodClassical}
	r := NewRecognizer(nil, engine, passAllPostprocessor(t, 0.7), store, zerolog.Nop())

	// No candidates: nothing retained.
	r.Recognize(context.Background(), gate.Frame{CameraID: "cam-1"})
	assert.Empty(t, store.frames)

	engine.reads = []Read{{Text: "AB12CDE", Confidence: 0.9}}
	r.Recognize(context.Background(), gate.Frame{CameraID: "cam-1"})
	assert.Len(t, store.frames, 1)
}

// slowEngine sleeps through its deadline before answering, like cgo OCR work
// that cannot be interrupted mid-call.
type slowEngine struct {
	delay time.Duration
	reads []Read
}

func (s *slowEngine) Method() gate.Method { return gate.MethodClassical }

func (s *slowEngine) Recognize(context.Context, gate.Frame) ([]Read, error) {
	time.Sleep(s.delay)
	return s.reads, nil
}

func (s *slowEngine) Close() error { return nil }

func TestPoolDropsFrameExceedingDeadline(t *testing.T) {
	engine := &slowEngine{
		delay: 200 * time.Millisecond,
		reads: []Read{{Text: "AB12CDE", Confidence: 0.9}},
	}
	r := NewRecognizer(nil, engine, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())
	pool := NewPool(r, 1, 20*time.Millisecond, zerolog.Nop())

	in := make(chan gate.Frame, 1)
	out := make(chan gate.PlateCandidate, 16)
	in <- gate.Frame{CameraID: "cam-1", Capture: time.Now()}
	close(in)

	pool.Run(context.Background(), in, out)

	assert.Empty(t, out, "candidates produced past the frame deadline must be dropped")
}

func TestFrameTimeoutDoesNotDegradeAcceleratedPath(t *testing.T) {
	accel := &fakeEngine{method: gate.MethodAccelerated, err: context.DeadlineExceeded}
	classical := &fakeEngine{
		method: gate.MethodClassical,
		reads:  []Read{{Text: "AB12CDE", Confidence: 0.9}},
	}
	r := NewRecognizer(accel, classical, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cands := r.Recognize(ctx, gate.Frame{CameraID: "cam-1"})
	assert.Empty(t, cands)
	assert.False(t, r.Degraded(), "a cancelled frame is not a hardware fault")
	assert.Zero(t, classical.callCount())

	// The accelerated path is still the preferred engine afterwards.
	accel.err = nil
	accel.reads = []Read{{Text: "AB12CDE", Confidence: 0.9}}
	cands = r.Recognize(context.Background(), gate.Frame{CameraID: "cam-1"})
	require.Len(t, cands, 1)
	assert.Equal(t, gate.MethodAccelerated, cands[0].Method)
}

func TestPoolForwardsCandidates(t *testing.T) {
	engine := &fakeEngine{
		method: gate.MethodClassical,
		reads:  []Read{{Text: "AB12CDE", Confidence: 0.9}},
	}
	r := NewRecognizer(nil, engine, passAllPostprocessor(t, 0.7), nil, zerolog.Nop())
	pool := NewPool(r, 2, 100*time.Millisecond, zerolog.Nop())

	in := make(chan gate.Frame)
	out := make(chan gate.PlateCandidate, 16)
	go pool.Run(context.Background(), in, out)

	for i := 0; i < 5; i++ {
		in <- gate.Frame{CameraID: "cam-1", Capture: time.Now()}
	}
	close(in)

	var got []gate.PlateCandidate
	for c := range out {
		got = append(got, c)
	}
	assert.Len(t, got, 5)
}
