package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"parkgate/internal/domain/gate"
)

// RTSPSource samples frames from a network camera stream at a fixed
// interval. The stream URL (including credentials) comes from camera
// discovery, which is handled upstream.
type RTSPSource struct {
	id       string
	url      string
	interval time.Duration

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	last    time.Time
}

func NewRTSPSource(id, url string, interval time.Duration) (*RTSPSource, error) {
	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("open stream for camera %s: %w", id, err)
	}
	return &RTSPSource{
		id:       id,
		url:      url,
		interval: interval,
		capture:  capture,
		mat:      gocv.NewMat(),
	}, nil
}

func (s *RTSPSource) ID() string { return s.id }

// Next reads from the stream until the sampling interval has elapsed, then
// returns the current frame encoded as JPEG.
//
// Cancellation is checked between reads: capture.Read has no deadline, so a
// stalled stream delays teardown until it yields a frame or errors. Live
// RTSP streams produce frames continuously, keeping that window to one
// frame interval.
func (s *RTSPSource) Next(ctx context.Context) (gate.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return gate.Frame{}, err
		}
		if !s.capture.Read(&s.mat) {
			return gate.Frame{}, fmt.Errorf("camera %s: stream read failed", s.id)
		}
		if s.mat.Empty() {
			continue
		}

		now := time.Now()
		if now.Sub(s.last) < s.interval {
			// Drain the stream at native rate but only sample at the
			// configured interval.
			continue
		}
		s.last = now

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
		if err != nil {
			return gate.Frame{}, fmt.Errorf("camera %s: encode frame: %w", s.id, err)
		}
		frame := gate.Frame{
			CameraID: s.id,
			Capture:  now,
			Image:    append([]byte(nil), buf.GetBytes()...),
			Width:    s.mat.Cols(),
			Height:   s.mat.Rows(),
		}
		buf.Close()
		return frame, nil
	}
}

func (s *RTSPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.capture.Close()
}
