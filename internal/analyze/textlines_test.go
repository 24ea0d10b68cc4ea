package analyze

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

// textBand fills rows [y0, y1) with an alternating dark/light segment
// pattern, approximating a printed line of characters.
func textBand(img *image.RGBA, y0, y1, segment int) {
	bounds := img.Bounds()
	dark := color.RGBA{R: 10, G: 10, B: 10, A: 255}
	light := color.RGBA{R: 245, G: 245, B: 245, A: 255}
	for y := y0; y < y1; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if (x/segment)%2 == 0 {
				img.SetRGBA(x, y, dark)
			} else {
				img.SetRGBA(x, y, light)
			}
		}
	}
}

func TestDetectTextPatternsBlankImage(t *testing.T) {
	white := color.RGBA{R: 245, G: 245, B: 245, A: 255}
	data := encodePNG(t, solidImage(200, 100, white))

	patterns, err := DetectTextPatterns(data)
	require.NoError(t, err)
	require.False(t, patterns.HasText)
	require.Equal(t, 0, patterns.TextLineCount)
}

func TestDetectTextPatternsFindsLines(t *testing.T) {
	img := solidImage(200, 100, color.RGBA{R: 245, G: 245, B: 245, A: 255})
	textBand(img, 20, 26, 4)
	textBand(img, 50, 56, 4)
	textBand(img, 78, 84, 4)
	data := encodePNG(t, img)

	patterns, err := DetectTextPatterns(data)
	require.NoError(t, err)
	require.True(t, patterns.HasText)
	require.GreaterOrEqual(t, patterns.TextLineCount, textMinLines)
}

func TestDetectTextPatternsRejectsGarbage(t *testing.T) {
	_, err := DetectTextPatterns([]byte{0x00, 0x01})
	require.Error(t, err)
}
