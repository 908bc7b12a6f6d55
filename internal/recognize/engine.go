package recognize

import (
	"context"

	"parkgate/internal/domain/gate"
)

// Read is a raw engine result before postprocessing.
type Read struct {
	Text       string
	Confidence float64
	// CharConfidences holds per-character local confidence in [0,1],
	// aligned with Text. Nil when the engine reports only a whole-plate
	// score.
	CharConfidences []float64
	Box             gate.BoundingBox
}

// Engine is one detection+OCR path. Implementations: the classical Tesseract
// path and the NPU-accelerated YOLOv8+LPRNet path. An error return signals a
// hardware or decode fault, not an empty frame; "no plate found" is an empty
// slice.
type Engine interface {
	Method() gate.Method
	Recognize(ctx context.Context, frame gate.Frame) ([]Read, error)
	Close() error
}

// Options configure the recognizer stack. Populated from the service config.
type Options struct {
	// Accelerated enables the NPU path when the runtime probe succeeds.
	Accelerated bool
	DetectModel string
	OCRModel    string

	Language      string
	PageSegMode   int
	CharWhitelist string

	// PlatePattern is the per-region plate format validator. Empty
	// disables format validation.
	PlatePattern   string
	MinPlateLength int
	MaxPlateLength int

	ConfidenceThreshold     float64
	CharConfidenceThreshold float64

	// MaxImageWidth bounds preprocessing resize; 0 keeps the source size.
	MaxImageWidth int
}
