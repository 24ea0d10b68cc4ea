package analyze

import (
	"log/slog"

	"github.com/your-org/idverify/internal/models"
)

// Text-line detection parameters. Tuned low on purpose: text on a worn or
// blurry card can be subtle, and absence of text is a strong blocking signal
// so false negatives are expensive.
const (
	textRowStep           = 2
	textEdgeThreshold     = 20.0
	textEdgeDensityMin    = 0.08
	textTransitionDensity = 0.1
	textMinLineFraction   = 0.2 // contiguous high-edge span vs row width
	textMinLines          = 2
	textMinHeightSpread   = 0.2
	textDarkLevel         = 128.0
)

// DetectTextPatterns scans a document image for horizontal, line-like edge
// bands characteristic of printed text. The image is re-rendered grayscale,
// contrast-normalized and sharpened before row scanning.
func DetectTextPatterns(data []byte) (models.TextPatterns, error) {
	r, err := decodeRaster(data, maxAnalysisEdge)
	if err != nil {
		return models.TextPatterns{}, err
	}

	gray := r.grayscale()
	normalizeContrast(gray)
	gray = sharpen(gray, r.width, r.height)

	width, height := r.width, r.height
	minLineLength := int(float64(width) * textMinLineFraction)

	textLineCount := 0
	firstRow, lastRow := -1, -1

	for y := 0; y < height; y += textRowStep {
		edgeCount := 0
		transitions := 0
		lineStart, lineEnd := -1, -1

		for x := 0; x < width-1; x++ {
			cur := gray[y*width+x]
			next := gray[y*width+x+1]

			if abs(cur-next) > textEdgeThreshold {
				edgeCount++
				if lineStart == -1 {
					lineStart = x
				}
				lineEnd = x
			}

			if (cur < textDarkLevel) != (next < textDarkLevel) {
				transitions++
			}
		}

		edgeDensity := float64(edgeCount) / float64(width)
		transitionDensity := float64(transitions) / float64(width)
		lineLength := lineEnd - lineStart

		if (edgeDensity > textEdgeDensityMin || transitionDensity > textTransitionDensity) &&
			lineLength > minLineLength {
			textLineCount++
			if firstRow == -1 {
				firstRow = y
			}
			lastRow = y
		}
	}

	// Rows spread across a fifth of the image height count even when few:
	// card text is distributed, glare artifacts cluster.
	spread := textLineCount >= textMinLines &&
		float64(lastRow-firstRow) > float64(height)*textMinHeightSpread

	patterns := models.TextPatterns{
		HasText:       textLineCount >= textMinLines || spread,
		TextLineCount: textLineCount,
	}

	slog.Debug("text pattern detection completed",
		"text_lines", patterns.TextLineCount,
		"has_text", patterns.HasText,
		"width", width,
		"height", height,
	)

	return patterns, nil
}

// normalizeContrast stretches the luma histogram to the full 0..255 range.
func normalizeContrast(gray []float64) {
	if len(gray) == 0 {
		return
	}
	lo, hi := gray[0], gray[0]
	for _, v := range gray {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		return
	}
	for i := range gray {
		gray[i] = (gray[i] - lo) * 255 / span
	}
}

// sharpen applies a 3x3 unsharp kernel to enhance text edges.
func sharpen(gray []float64, width, height int) []float64 {
	out := make([]float64, len(gray))
	copy(out, gray)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			v := 5*gray[i] - gray[i-1] - gray[i+1] - gray[i-width] - gray[i+width]
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			out[i] = v
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
