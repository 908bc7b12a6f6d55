package recognize

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/swdee/go-rknnlite"
	"github.com/swdee/go-rknnlite/postprocess"
	"github.com/swdee/go-rknnlite/preprocess"
	"github.com/swdee/go-rknnlite/render"
	"gocv.io/x/gocv"

	"parkgate/internal/domain/gate"
)

const (
	yoloInputWidth  = 640
	yoloInputHeight = 640
	lprInputWidth   = 94
	lprInputHeight  = 24
	lprPositions    = 18
)

// lprCharset matches the character set the bundled LPRNet model was trained
// with.
var lprCharset = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"A", "B", "C", "D", "E", "F", "G", "H", "J", "K",
	"L", "M", "N", "P", "Q", "R", "S", "T", "U", "V",
	"W", "X", "Y", "Z", "I", "O", "-",
}

// AcceleratedEngine runs plate detection and OCR on the NPU: a YOLOv8n
// detector crops plate regions, LPRNet reads them. Constructing the engine
// doubles as the hardware capability probe; a missing or faulty NPU fails
// here and the caller falls back to the classical path.
type AcceleratedEngine struct {
	mu     sync.Mutex
	yoloRT *rknnlite.Runtime
	lprRT  *rknnlite.Runtime
	yolo   *postprocess.YOLOv8
	lpr    *postprocess.LPRNet
}

func NewAcceleratedEngine(opts Options) (*AcceleratedEngine, error) {
	yoloRT, err := rknnlite.NewRuntime(opts.DetectModel, rknnlite.NPUCoreAuto)
	if err != nil {
		return nil, fmt.Errorf("init detector runtime: %w", err)
	}
	yoloRT.SetWantFloat(false)

	lprRT, err := rknnlite.NewRuntime(opts.OCRModel, rknnlite.NPUCoreAuto)
	if err != nil {
		yoloRT.Close()
		return nil, fmt.Errorf("init ocr runtime: %w", err)
	}

	return &AcceleratedEngine{
		yoloRT: yoloRT,
		lprRT:  lprRT,
		yolo: postprocess.NewYOLOv8(postprocess.YOLOv8Params{
			BoxThreshold:    0.25,
			NMSThreshold:    0.45,
			ObjectClassNum:  1, // plate detection only
			MaxObjectNumber: 8,
		}),
		lpr: postprocess.NewLPRNet(postprocess.LPRNetParams{
			PlatePositions: lprPositions,
			PlateChars:     lprCharset,
		}),
	}, nil
}

func (e *AcceleratedEngine) Method() gate.Method { return gate.MethodAccelerated }

func (e *AcceleratedEngine) Recognize(ctx context.Context, frame gate.Frame) ([]Read, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(frame.Image, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, errEmptyFrame
	}
	defer img.Close()

	rgb := gocv.NewMat()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)
	defer rgb.Close()

	resizer := preprocess.NewResizer(img.Cols(), img.Rows(), yoloInputWidth, yoloInputHeight)
	boxed := rgb.Clone()
	defer boxed.Close()
	resizer.LetterBoxResize(rgb, &boxed, render.Black)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Waiting on the NPU runtimes can outlast the frame deadline.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs, err := e.yoloRT.Inference([]gocv.Mat{boxed})
	if err != nil {
		return nil, fmt.Errorf("detector inference: %w", err)
	}
	detections := e.yolo.DetectObjects(outputs, resizer).GetDetectResults()
	if err := outputs.Free(); err != nil {
		return nil, fmt.Errorf("free detector outputs: %w", err)
	}

	reads := make([]Read, 0, len(detections))
	for _, det := range detections {
		rect := image.Rect(det.Box.Left, det.Box.Top, det.Box.Right, det.Box.Bottom)
		text, err := e.readPlate(img, rect)
		if err != nil {
			return reads, err
		}
		if text == "" {
			continue
		}
		reads = append(reads, Read{
			Text:       text,
			Confidence: float64(det.Probability),
			Box: gate.BoundingBox{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
		})
	}
	return reads, nil
}

// readPlate crops one detected region and runs LPRNet over it.
func (e *AcceleratedEngine) readPlate(img gocv.Mat, rect image.Rectangle) (string, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return "", nil
	}

	region := img.Region(rect)
	defer region.Close()

	crop := gocv.NewMat()
	defer crop.Close()
	gocv.Resize(region, &crop, image.Pt(lprInputWidth, lprInputHeight), 0, 0, gocv.InterpolationArea)

	outputs, err := e.lprRT.Inference([]gocv.Mat{crop})
	if err != nil {
		return "", fmt.Errorf("ocr inference: %w", err)
	}
	plates := e.lpr.ReadPlates(outputs)
	if err := outputs.Free(); err != nil {
		return "", fmt.Errorf("free ocr outputs: %w", err)
	}

	if len(plates) != 1 {
		return "", nil
	}
	return plates[0], nil
}

func (e *AcceleratedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.yoloRT.Close(); err != nil {
		return fmt.Errorf("close detector runtime: %w", err)
	}
	if err := e.lprRT.Close(); err != nil {
		return fmt.Errorf("close ocr runtime: %w", err)
	}
	return nil
}
