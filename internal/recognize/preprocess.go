package recognize

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"parkgate/internal/domain/gate"
)

var errEmptyFrame = errors.New("frame decoded to empty image")

// prepare decodes a frame buffer and normalizes it for OCR: grayscale,
// contrast equalization, light denoise, optional downscale. The caller owns
// the returned Mat and must Close it.
func prepare(frame gate.Frame, maxWidth int) (gocv.Mat, error) {
	img, err := gocv.IMDecode(frame.Image, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, err
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, errEmptyFrame
	}
	defer img.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	equalized := gocv.NewMat()
	gocv.EqualizeHist(gray, &equalized)
	gray.Close()

	denoised := gocv.NewMat()
	gocv.BilateralFilter(equalized, &denoised, 9, 75, 75)
	equalized.Close()

	if maxWidth > 0 && denoised.Cols() > maxWidth {
		scaled := gocv.NewMat()
		h := denoised.Rows() * maxWidth / denoised.Cols()
		gocv.Resize(denoised, &scaled, image.Pt(maxWidth, h), 0, 0, gocv.InterpolationArea)
		denoised.Close()
		return scaled, nil
	}
	return denoised, nil
}
