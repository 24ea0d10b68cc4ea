package analyze

import (
	"math"

	"github.com/your-org/idverify/internal/models"
)

// Sampling and edge-classification parameters. These are analysis internals,
// not decision thresholds; the decision-level bands live in config.
const (
	documentSampleStep = 4 // coarser stride for documents to bound cost
	selfieSampleStep   = 2

	// edgeMagnitudeMin is the gradient magnitude above which a pixel counts
	// toward document-structure classification.
	edgeMagnitudeMin = 15.0

	// horizontalDominance: |gx| must exceed |gy| by this factor for an edge to
	// count as horizontal (a text-line stroke).
	horizontalDominance = 1.5

	// minStructureEdges is the edge count below which the structure score is
	// forced low. Cards have rich, structured edge content; flat photographs
	// do not.
	minStructureEdges = 50

	structureFloorScore = 0.2

	// Card-like horizontal-edge band and diagonal ceiling for the structure
	// score.
	structureHorizontalMin = 0.2
	structureHorizontalMax = 0.7
	structureDiagonalMax   = 0.35
	offBandPenalty         = 0.4
	diagonalPenalty        = 0.6
)

// ComputeImageStats measures brightness, edge strength and skin ratio on a
// stride-sampled raster. For document images it additionally classifies edge
// directions and derives the document-structure score.
func ComputeImageStats(data []byte, imageCtx models.ImageContext) (models.ImageStats, error) {
	r, err := decodeRaster(data, maxAnalysisEdge)
	if err != nil {
		return models.ImageStats{}, err
	}

	step := selfieSampleStep
	if imageCtx == models.ContextDocumentFront {
		step = documentSampleStep
	}

	var (
		brightnessTotal float64
		edgeTotal       float64
		edgeSamples     int
		skinPixels      int
		totalSamples    int

		horizontalEdges int
		diagonalEdges   int
		totalEdges      int
	)

	for y := 0; y < r.height; y += step {
		for x := 0; x < r.width; x += step {
			cr, cg, cb := r.rgb(x, y)
			gray := 0.299*float64(cr) + 0.587*float64(cg) + 0.114*float64(cb)
			brightnessTotal += gray / 255
			totalSamples++

			if isLikelySkin(cr, cg, cb) {
				skinPixels++
			}

			if x > 0 && y > 0 && x < r.width-1 && y < r.height-1 {
				gx := r.luma(x+1, y) - r.luma(x-1, y)
				gy := r.luma(x, y+1) - r.luma(x, y-1)
				edgeTotal += gx*gx + gy*gy
				edgeSamples++

				if imageCtx == models.ContextDocumentFront {
					magnitude := math.Sqrt(gx*gx + gy*gy)
					if magnitude > edgeMagnitudeMin {
						totalEdges++
						if math.Abs(gx) > math.Abs(gy)*horizontalDominance {
							horizontalEdges++
						} else {
							diagonalEdges++
						}
					}
				}
			}
		}
	}

	if totalSamples == 0 {
		totalSamples = 1
	}

	stats := models.ImageStats{
		Width:             r.width,
		Height:            r.height,
		AverageBrightness: brightnessTotal / float64(totalSamples),
		SkinPixelRatio:    float64(skinPixels) / float64(totalSamples),
	}
	if edgeSamples > 0 {
		stats.EdgeStrength = edgeTotal / float64(edgeSamples)
	}

	if imageCtx == models.ContextDocumentFront {
		stats.HorizontalEdgeRatio, stats.DocumentStructureScore =
			structureScore(horizontalEdges, diagonalEdges, totalEdges)
	}

	return stats, nil
}

// structureScore rates how card-like the edge layout is. The score is high
// only when the horizontal-edge ratio sits in the card band and diagonal
// edges are scarce; too few edges overall forces the floor.
func structureScore(horizontal, diagonal, total int) (horizontalRatio, score float64) {
	if total > 0 {
		horizontalRatio = float64(horizontal) / float64(total)
	}
	if total <= minStructureEdges {
		return horizontalRatio, structureFloorScore
	}

	bandFactor := offBandPenalty
	if horizontalRatio >= structureHorizontalMin && horizontalRatio <= structureHorizontalMax {
		bandFactor = 1
	}
	diagonalFactor := diagonalPenalty
	if float64(diagonal)/float64(total) < structureDiagonalMax {
		diagonalFactor = 1
	}
	return horizontalRatio, clamp01(bandFactor * diagonalFactor)
}

// isLikelySkin checks normalized RGB ratios and YCbCr chroma against an
// empirically tuned skin-tone band.
func isLikelySkin(r, g, b uint8) bool {
	sum := float64(r) + float64(g) + float64(b)
	if sum == 0 {
		return false
	}
	nr := float64(r) / sum
	ng := float64(g) / sum
	nb := float64(b) / sum
	if nr < 0.32 || nr > 0.62 {
		return false
	}
	if ng < 0.23 || ng > 0.46 {
		return false
	}
	if nb < 0.13 || nb > 0.38 {
		return false
	}

	cb := 128 - 0.168736*float64(r) - 0.331364*float64(g) + 0.5*float64(b)
	cr := 128 + 0.5*float64(r) - 0.418688*float64(g) - 0.081312*float64(b)
	return cb > 77 && cb < 127 && cr > 133 && cr < 173
}
