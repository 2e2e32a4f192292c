package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"golang.org/x/image/draw"
)

// Normalization maps 8-bit RGB to network input:
//
//	v = (pixel/255 - Offset - Mean[c]) / Std[c]
type Normalization struct {
	Offset float32
	Mean   [3]float32
	Std    [3]float32
}

// DefaultNormalization is the KITTI setting: centre around 0.5, then
// subtract the per-channel means of the training sequences.
func DefaultNormalization() Normalization {
	return Normalization{
		Offset: 0.5,
		Mean:   [3]float32{-0.14968217, -0.12941663, -0.13206103},
		Std:    [3]float32{1, 1, 1},
	}
}

// LoadFrame decodes a PNG or JPEG file and returns it as normalized
// [3, height, width] float32 data.
func LoadFrame(path string, height, width int, norm Normalization) ([]float32, error) {
	//nolint:gosec // G304: frame paths come from the dataset root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return ImageToCHW(img, height, width, norm), nil
}

// ImageToCHW resizes img with bilinear filtering and converts it to
// normalized planar RGB.
func ImageToCHW(img image.Image, height, width int, norm Normalization) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := height * width
	out := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[i+c]) / 255
				std := norm.Std[c]
				if std == 0 {
					std = 1
				}
				out[c*plane+y*width+x] = (v - norm.Offset - norm.Mean[c]) / std
			}
		}
	}
	return out
}
