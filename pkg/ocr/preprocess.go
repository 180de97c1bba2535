package ocr

import (
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// prepareImage applies the preprocessing chain that works best on phone
// photos of disbursement receipts: grayscale, mild contrast and sharpen,
// upscale small images, then a global threshold. Returns the path of a temp
// PNG (caller removes it) or the original path when preprocessing fails.
func prepareImage(path string) (string, func()) {
	img, err := imaging.Open(path)
	if err != nil {
		return path, func() {}
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	bin := binarize(gray, 210)

	tmpFile, err := os.CreateTemp("", "bukti-ocr-*.png")
	if err != nil {
		return path, func() {}
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	if err := imaging.Save(bin, tmp); err != nil {
		_ = os.Remove(tmp)
		return path, func() {}
	}
	return tmp, func() { _ = os.Remove(tmp) }
}

// binarize performs a simple global threshold on a grayscale image.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			gray := uint8((r + g + bb) / 3 >> 8)
			var v uint8 = 255
			if gray <= threshold {
				v = 0
			}
			out.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
