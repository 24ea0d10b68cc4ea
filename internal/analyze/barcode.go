package analyze

import (
	"image"
	"log/slog"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/pdf417"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/your-org/idverify/internal/models"
	"github.com/your-org/idverify/internal/observability"
)

// BarcodeDecoder runs a best-effort search for a back-of-card style barcode.
// Failure to decode is informational only; the decision engine never turns it
// into a failure reason.
type BarcodeDecoder struct {
	maxAttempts int
	hintSets    []hintSet
}

// hintSet pairs a named group of format hints with the readers that decode
// them, mirroring the PDF417 / 1D / 2D grouping used on licence backs.
type hintSet struct {
	name    string
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

func NewBarcodeDecoder(maxAttempts int) *BarcodeDecoder {
	tryHarder := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &BarcodeDecoder{
		maxAttempts: maxAttempts,
		hintSets: []hintSet{
			{
				name:    "pdf417",
				readers: []gozxing.Reader{pdf417.NewPDF417Reader()},
				hints:   tryHarder,
			},
			{
				name:    "oned",
				readers: []gozxing.Reader{oned.NewMultiFormatUPCEANReader(tryHarder), oned.NewCode128Reader(), oned.NewCode39Reader(), oned.NewCode93Reader(), oned.NewCodaBarReader()},
				hints:   tryHarder,
			},
			{
				name:    "matrix",
				readers: []gozxing.Reader{datamatrix.NewDataMatrixReader(), qrcode.NewQRCodeReader(), aztec.NewAztecReader(), pdf417.NewPDF417Reader()},
				hints:   tryHarder,
			},
		},
	}
}

// grayImage is a grayscale plane the search rotates, transforms and crops.
type grayImage struct {
	pix    []float64
	width  int
	height int
}

// transform is one named contrast/threshold/sharpen variant of the plane.
type transform struct {
	name  string
	apply func(grayImage) grayImage
}

// region is one named crop of the plane.
type region struct {
	name    string
	extract func(grayImage) (grayImage, bool)
}

// searchStep is one (rotation, transform, region) tuple of the search plan.
// Binarizer, inversion and hint-set iteration happen inside the decode of a
// single step; the budget counts individual reader invocations.
type searchStep struct {
	rotation  int
	transform transform
	region    region
}

var coarseRotations = []int{0, 90, 180, 270}
var rotationJitter = []int{0, -8, 8}

// searchPlan enumerates the rotation x transform x region tuples in the order
// they are tried. The plan is deterministic so the budget cuts the same
// tail every run.
func searchPlan() []searchStep {
	var steps []searchStep
	for _, base := range coarseRotations {
		for _, jitter := range rotationJitter {
			for _, tr := range barcodeTransforms() {
				for _, re := range barcodeRegions() {
					steps = append(steps, searchStep{
						rotation:  base + jitter,
						transform: tr,
						region:    re,
					})
				}
			}
		}
	}
	return steps
}

// Decode attempts to read a barcode from raw image bytes, bounded by the
// attempt budget. Returns nil when nothing decodes; errors are swallowed
// since the decoder is best-effort by contract.
func (d *BarcodeDecoder) Decode(data []byte) *models.BarcodeResult {
	r, err := decodeRaster(data, maxAnalysisEdge)
	if err != nil {
		slog.Debug("barcode decode skipped", "error", err)
		return nil
	}

	base := grayImage{pix: r.grayscale(), width: r.width, height: r.height}

	attempts := 0
	defer func() { observability.BarcodeAttempts.Observe(float64(attempts)) }()

	for _, step := range searchPlan() {
		if attempts >= d.maxAttempts {
			slog.Debug("barcode decode attempt limit reached", "attempts", attempts)
			return nil
		}

		plane := rotateGray(base, step.rotation)
		plane = step.transform.apply(plane)
		cropped, ok := step.region.extract(plane)
		if !ok || cropped.width < 16 || cropped.height < 16 {
			continue
		}

		// Near-flat crops cannot contain a barcode.
		if stddev(cropped.pix) < 2.5 {
			continue
		}

		if result := d.decodePlane(cropped, &attempts); result != nil {
			return result
		}

		if roi, ok := gradientROI(cropped); ok {
			if result := d.decodePlane(roi, &attempts); result != nil {
				return result
			}
		}
	}

	if attempts > 0 {
		slog.Debug("barcode decode exhausted without matches", "attempts", attempts)
	}
	return nil
}

// decodePlane runs every binarizer x inversion x hint-set combination over
// one plane, charging each reader invocation against the budget.
func (d *BarcodeDecoder) decodePlane(plane grayImage, attempts *int) *models.BarcodeResult {
	for _, inverted := range []bool{false, true} {
		img := plane.toImage(inverted)
		source := gozxing.NewLuminanceSourceFromImage(img)

		binarizers := []gozxing.Binarizer{
			gozxing.NewHybridBinarizer(source),
			gozxing.NewGlobalHistgramBinarizer(source),
		}

		for _, binarizer := range binarizers {
			bmp, err := gozxing.NewBinaryBitmap(binarizer)
			if err != nil {
				continue
			}
			for _, hs := range d.hintSets {
				for _, reader := range hs.readers {
					if *attempts >= d.maxAttempts {
						return nil
					}
					*attempts++
					result, err := reader.Decode(bmp, hs.hints)
					reader.Reset()
					if err == nil && result != nil {
						return &models.BarcodeResult{
							Text:   result.GetText(),
							Format: result.GetBarcodeFormat().String(),
						}
					}
				}
			}
		}
	}
	return nil
}

func barcodeTransforms() []transform {
	return []transform{
		{name: "identity", apply: func(g grayImage) grayImage { return g }},
		{name: "normalize", apply: func(g grayImage) grayImage {
			out := g.clone()
			normalizeContrast(out.pix)
			return out
		}},
		{name: "boost", apply: func(g grayImage) grayImage {
			return g.linear(1.35, -28)
		}},
		{name: "soften_boost", apply: func(g grayImage) grayImage {
			out := g.boxBlur()
			return out.linear(2.2, -140)
		}},
		{name: "threshold", apply: func(g grayImage) grayImage {
			return g.threshold(160)
		}},
		{name: "sharpen", apply: func(g grayImage) grayImage {
			out := g.clone()
			out.pix = sharpen(out.pix, out.width, out.height)
			return out
		}},
	}
}

func barcodeRegions() []region {
	return []region{
		{name: "full", extract: func(g grayImage) (grayImage, bool) { return g, true }},
		{name: "margin_trim", extract: func(g grayImage) (grayImage, bool) {
			mx, my := g.width/20, g.height/20
			return g.crop(mx, my, g.width-2*mx, g.height-2*my)
		}},
		{name: "bottom_band", extract: func(g grayImage) (grayImage, bool) {
			h := maxInt(24, g.height*45/100)
			return g.crop(0, g.height-h, g.width, h)
		}},
		{name: "center_band", extract: func(g grayImage) (grayImage, bool) {
			h := maxInt(24, g.height*60/100)
			return g.crop(0, (g.height-h)/2, g.width, h)
		}},
		{name: "bottom_right", extract: func(g grayImage) (grayImage, bool) {
			w := maxInt(24, g.width*70/100)
			h := maxInt(24, g.height*60/100)
			return g.crop(g.width-w, g.height-h, w, h)
		}},
	}
}

// gradientROI derives a crop from row/column gradient energy: rows and
// columns whose mean gradient exceeds mean+0.75*stddev bound the candidate
// barcode area.
func gradientROI(g grayImage) (grayImage, bool) {
	if g.width < 32 || g.height < 32 {
		return grayImage{}, false
	}

	rowScores := make([]float64, g.height)
	colScores := make([]float64, g.width)
	for y := 0; y < g.height; y++ {
		var rowSum float64
		for x := 0; x < g.width-1; x++ {
			grad := abs(g.pix[y*g.width+x+1] - g.pix[y*g.width+x])
			rowSum += grad
			colScores[x] += grad
		}
		rowScores[y] = rowSum / float64(g.width-1)
	}
	colScores[g.width-1] = colScores[g.width-2]

	top, bottom, ok1 := energyBounds(rowScores, maxInt(12, g.height*15/100))
	left, right, ok2 := energyBounds(colScores, maxInt(16, g.width*20/100))
	if !ok1 || !ok2 {
		return grayImage{}, false
	}

	w := right - left + 1
	h := bottom - top + 1
	if w < 24 || h < 24 || (w >= g.width && h >= g.height) {
		return grayImage{}, false
	}

	roi, ok := g.crop(left, top, w, h)
	if !ok || stddev(roi.pix) < 2 {
		return grayImage{}, false
	}
	return roi, true
}

func energyBounds(scores []float64, minSpan int) (int, int, bool) {
	n := len(scores)
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(n)

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	std := math.Sqrt(variance / float64(n))

	threshold := mean
	if std > 0 {
		threshold = mean + std*0.75
	}

	start, end := -1, -1
	for i, s := range scores {
		if s >= threshold {
			if start == -1 {
				start = i
			}
			end = i
		}
	}
	if start == -1 || end-start+1 < minSpan {
		return 0, 0, false
	}

	pad := maxInt(2, n/50)
	start = maxInt(0, start-pad)
	end = minInt(n-1, end+pad)
	return start, end, true
}

// --- grayImage operations ---

func (g grayImage) clone() grayImage {
	pix := make([]float64, len(g.pix))
	copy(pix, g.pix)
	return grayImage{pix: pix, width: g.width, height: g.height}
}

func (g grayImage) linear(a, b float64) grayImage {
	out := g.clone()
	for i, v := range out.pix {
		v = a*v + b
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out.pix[i] = v
	}
	return out
}

func (g grayImage) threshold(level float64) grayImage {
	out := g.clone()
	for i, v := range out.pix {
		if v > level {
			out.pix[i] = 255
		} else {
			out.pix[i] = 0
		}
	}
	return out
}

func (g grayImage) boxBlur() grayImage {
	out := g.clone()
	for y := 1; y < g.height-1; y++ {
		for x := 1; x < g.width-1; x++ {
			i := y*g.width + x
			sum := g.pix[i] + g.pix[i-1] + g.pix[i+1] + g.pix[i-g.width] + g.pix[i+g.width]
			out.pix[i] = sum / 5
		}
	}
	return out
}

func (g grayImage) crop(x, y, w, h int) (grayImage, bool) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > g.width || y+h > g.height {
		return grayImage{}, false
	}
	pix := make([]float64, w*h)
	for row := 0; row < h; row++ {
		copy(pix[row*w:(row+1)*w], g.pix[(y+row)*g.width+x:(y+row)*g.width+x+w])
	}
	return grayImage{pix: pix, width: w, height: h}, true
}

// toImage renders the plane as an 8-bit grayscale image, optionally inverted.
func (g grayImage) toImage(inverted bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.width, g.height))
	for i, v := range g.pix {
		p := uint8(v)
		if inverted {
			p = 255 - p
		}
		img.Pix[i] = p
	}
	return img
}

// rotateGray rotates by an arbitrary angle around the center with a white
// background, via inverse nearest-neighbour mapping.
func rotateGray(g grayImage, degrees int) grayImage {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return g
	}

	rad := float64(degrees) * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	w, h := g.width, g.height
	outW := int(math.Ceil(abs(float64(w)*cos) + abs(float64(h)*sin)))
	outH := int(math.Ceil(abs(float64(w)*sin) + abs(float64(h)*cos)))

	out := grayImage{pix: make([]float64, outW*outH), width: outW, height: outH}
	cx, cy := float64(w)/2, float64(h)/2
	ocx, ocy := float64(outW)/2, float64(outH)/2

	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			// Inverse rotation back into the source plane.
			dx := float64(x) - ocx
			dy := float64(y) - ocy
			sx := int(math.Round(dx*cos + dy*sin + cx))
			sy := int(math.Round(-dx*sin + dy*cos + cy))
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				out.pix[y*outW+x] = g.pix[sy*w+sx]
			} else {
				out.pix[y*outW+x] = 255
			}
		}
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
