package recognize

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"parkgate/internal/domain/gate"
)

// ClassicalEngine runs Tesseract OCR over the whole preprocessed frame. It
// is the fallback path when no hardware accelerator is present.
type ClassicalEngine struct {
	// gosseract clients are not safe for concurrent use.
	mu       sync.Mutex
	client   *gosseract.Client
	maxWidth int
}

func NewClassicalEngine(opts Options) (*ClassicalEngine, error) {
	client := gosseract.NewClient()

	lang := opts.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("set tesseract language: %w", err)
	}
	if opts.CharWhitelist != "" {
		if err := client.SetWhitelist(opts.CharWhitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tesseract whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("set tesseract page seg mode: %w", err)
	}

	return &ClassicalEngine{client: client, maxWidth: opts.MaxImageWidth}, nil
}

func (e *ClassicalEngine) Method() gate.Method { return gate.MethodClassical }

func (e *ClassicalEngine) Recognize(ctx context.Context, frame gate.Frame) ([]Read, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := prepare(frame, e.maxWidth)
	if err != nil {
		return nil, fmt.Errorf("preprocess frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame for ocr: %w", err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	// The frame deadline may have elapsed while waiting on the shared
	// client; skip the OCR work instead of producing a stale read.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("load frame into tesseract: %w", err)
	}

	words, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition: %w", err)
	}
	symbols, err := e.client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return nil, fmt.Errorf("tesseract symbol confidences: %w", err)
	}

	reads := make([]Read, 0, len(words))
	for _, w := range words {
		if w.Word == "" {
			continue
		}
		read := Read{
			Text:       w.Word,
			Confidence: w.Confidence / 100,
			Box: gate.BoundingBox{
				X:      w.Box.Min.X,
				Y:      w.Box.Min.Y,
				Width:  w.Box.Dx(),
				Height: w.Box.Dy(),
			},
			CharConfidences: charConfidences(w, symbols),
		}
		reads = append(reads, read)
	}
	return reads, nil
}

// charConfidences collects per-symbol confidences inside the word's box, in
// reading order. Returns nil when the symbol count disagrees with the word
// length, leaving the whole-word score in effect.
func charConfidences(word gosseract.BoundingBox, symbols []gosseract.BoundingBox) []float64 {
	var confs []float64
	for _, s := range symbols {
		if s.Box.In(word.Box) || s.Box.Overlaps(word.Box) {
			confs = append(confs, s.Confidence/100)
		}
	}
	if len(confs) != len([]rune(word.Word)) {
		return nil
	}
	return confs
}

func (e *ClassicalEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
