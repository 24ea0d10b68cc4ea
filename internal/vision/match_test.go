package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	t.Run("identical vectors score one", func(t *testing.T) {
		require.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	})

	t.Run("orthogonal vectors score zero", func(t *testing.T) {
		require.Equal(t, 0.0, CosineSimilarity(a, b))
	})

	t.Run("opposite vectors score minus one", func(t *testing.T) {
		neg := []float32{-1, 0, 0}
		require.InDelta(t, -1.0, CosineSimilarity(a, neg), 1e-9)
	})

	t.Run("unnormalized vectors still score by angle", func(t *testing.T) {
		scaled := []float32{5, 0, 0}
		require.InDelta(t, 1.0, CosineSimilarity(a, scaled), 1e-9)
	})

	t.Run("degenerate inputs score zero", func(t *testing.T) {
		require.Equal(t, 0.0, CosineSimilarity(nil, nil))
		require.Equal(t, 0.0, CosineSimilarity(a, []float32{1, 2}))
		require.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}))
	})
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	require.Equal(t, []float32{0, 0}, zero)
}

func TestBestDetection(t *testing.T) {
	detections := []Detection{
		{Confidence: 0.4},
		{Confidence: 0.9},
		{Confidence: 0.6},
	}

	best, found := bestDetection(detections, 0.5)
	require.True(t, found)
	require.Equal(t, float32(0.9), best.Confidence)

	_, found = bestDetection(detections, 0.95)
	require.False(t, found)

	_, found = bestDetection(nil, 0.1)
	require.False(t, found)
}

func TestEstimatePose(t *testing.T) {
	// Symmetric frontal landmarks: eyes level, nose centered.
	lm := [5][2]float32{
		{40, 40},  // left eye
		{80, 40},  // right eye
		{60, 60},  // nose
		{45, 80},  // mouth left
		{75, 80},  // mouth right
	}

	yaw, pitch, roll := estimatePose(lm)
	require.InDelta(t, 0.0, yaw, 1e-6)
	require.InDelta(t, 0.0, pitch, 1e-6)
	require.InDelta(t, 0.0, roll, 1e-6)

	// Shift the nose right of center: positive yaw.
	lm[2] = [2]float32{75, 60}
	yaw, _, _ = estimatePose(lm)
	require.Greater(t, yaw, 0.0)
}

func TestNMSSuppressesOverlaps(t *testing.T) {
	detections := []Detection{
		{BBox: [4]float32{0, 0, 100, 100}, Confidence: 0.9},
		{BBox: [4]float32{5, 5, 105, 105}, Confidence: 0.8}, // heavy overlap
		{BBox: [4]float32{200, 200, 300, 300}, Confidence: 0.7},
	}

	kept := nms(detections, 0.4)
	require.Len(t, kept, 2)
	require.Equal(t, float32(0.9), kept[0].Confidence)
	require.Equal(t, float32(0.7), kept[1].Confidence)
}
