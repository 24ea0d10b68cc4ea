// Package analyze computes the pixel-level signals of the verification
// pipeline: brightness/sharpness/skin statistics, document-structure scoring,
// text-line detection, and the best-effort barcode search.
package analyze

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// maxAnalysisEdge caps the longer edge before analysis. Images are never
// upscaled.
const maxAnalysisEdge = 1600

// raster is a dense RGBA view of a decoded image with cheap pixel access.
type raster struct {
	img    *image.RGBA
	width  int
	height int
}

// decodeRaster decodes image bytes and resizes so the longer edge is at most
// maxEdge, preserving aspect ratio.
func decodeRaster(data []byte, maxEdge int) (*raster, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Some intake clients mislabel JPEGs; retry the specific decoder
		// before giving up.
		img, err = jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("invalid_image_dimensions")
	}

	dstW, dstH := srcW, srcH
	if srcW > maxEdge || srcH > maxEdge {
		if srcW >= srcH {
			dstW = maxEdge
			dstH = srcH * maxEdge / srcW
		} else {
			dstH = maxEdge
			dstW = srcW * maxEdge / srcH
		}
		if dstW < 1 {
			dstW = 1
		}
		if dstH < 1 {
			dstH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	return &raster{img: dst, width: dstW, height: dstH}, nil
}

// rgb returns the 8-bit channel values at (x, y).
func (r *raster) rgb(x, y int) (uint8, uint8, uint8) {
	i := r.img.PixOffset(x, y)
	p := r.img.Pix[i : i+3 : i+3]
	return p[0], p[1], p[2]
}

// luma returns the BT.601-weighted grayscale value at (x, y), 0..255.
func (r *raster) luma(x, y int) float64 {
	cr, cg, cb := r.rgb(x, y)
	return 0.299*float64(cr) + 0.587*float64(cg) + 0.114*float64(cb)
}

// grayscale flattens the raster to one luma value per pixel.
func (r *raster) grayscale() []float64 {
	out := make([]float64, r.width*r.height)
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			out[y*r.width+x] = r.luma(x, y)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
