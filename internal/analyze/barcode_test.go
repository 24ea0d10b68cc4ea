package analyze

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchPlanIsBoundedAndDeterministic(t *testing.T) {
	plan := searchPlan()
	require.NotEmpty(t, plan)
	require.Equal(t,
		len(coarseRotations)*len(rotationJitter)*len(barcodeTransforms())*len(barcodeRegions()),
		len(plan))

	// The plan starts with the cheapest tuple so easy decodes exit early.
	require.Equal(t, 0, plan[0].rotation)
	require.Equal(t, "identity", plan[0].transform.name)
	require.Equal(t, "full", plan[0].region.name)

	again := searchPlan()
	for i := range plan {
		require.Equal(t, plan[i].rotation, again[i].rotation)
		require.Equal(t, plan[i].transform.name, again[i].transform.name)
		require.Equal(t, plan[i].region.name, again[i].region.name)
	}
}

func TestDecodeSkipsFlatImages(t *testing.T) {
	d := NewBarcodeDecoder(220)
	data := encodePNG(t, solidImage(300, 200, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	require.Nil(t, d.Decode(data))
}

func TestDecodeUndecodableInput(t *testing.T) {
	d := NewBarcodeDecoder(220)
	require.Nil(t, d.Decode([]byte("junk")))
	require.Nil(t, d.Decode(nil))
}

func TestDecodeRespectsAttemptBudget(t *testing.T) {
	// A zero budget never invokes a reader, so any image yields nil.
	d := NewBarcodeDecoder(0)
	img := solidImage(300, 200, color.RGBA{R: 250, G: 250, B: 250, A: 255})
	textBand(img, 40, 160, 3) // enough variance to pass the flatness skip
	require.Nil(t, d.Decode(encodePNG(t, img)))
}

func TestGradientROI(t *testing.T) {
	t.Run("flat image has no ROI", func(t *testing.T) {
		g := grayImage{pix: make([]float64, 100*100), width: 100, height: 100}
		for i := range g.pix {
			g.pix[i] = 128
		}
		_, ok := gradientROI(g)
		require.False(t, ok)
	})

	t.Run("tiny planes are rejected", func(t *testing.T) {
		g := grayImage{pix: make([]float64, 16*16), width: 16, height: 16}
		_, ok := gradientROI(g)
		require.False(t, ok)
	})
}

func TestGrayImageCrop(t *testing.T) {
	g := grayImage{pix: make([]float64, 10*10), width: 10, height: 10}
	for i := range g.pix {
		g.pix[i] = float64(i)
	}

	crop, ok := g.crop(2, 3, 4, 5)
	require.True(t, ok)
	require.Equal(t, 4, crop.width)
	require.Equal(t, 5, crop.height)
	require.Equal(t, g.pix[3*10+2], crop.pix[0])

	_, ok = g.crop(8, 8, 4, 4)
	require.False(t, ok)
}

func TestRotateGray(t *testing.T) {
	g := grayImage{pix: make([]float64, 6*4), width: 6, height: 4}

	r90 := rotateGray(g, 90)
	require.Equal(t, 4, r90.width)
	require.Equal(t, 6, r90.height)

	r0 := rotateGray(g, 360)
	require.Equal(t, g.width, r0.width)
	require.Equal(t, g.height, r0.height)
}
