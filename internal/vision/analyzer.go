package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/idverify/internal/config"
	"github.com/your-org/idverify/internal/models"
)

// Detection floors applied when choosing a candidate face. Documents carry
// small, sometimes stylised portraits so the selfie floor is slightly lower
// still. The stricter acceptance floors live in the decision thresholds.
const (
	documentDetectFloor = 0.30
	selfieDetectFloor   = 0.25
)

// FaceAnalyzer finds the most confident face in an image and describes it.
// An image with no usable face yields Detected=false and a nil error;
// errors are reserved for infrastructure failures (decode, inference).
type FaceAnalyzer interface {
	// EnsureReady loads models if they are not loaded yet. Safe to call
	// concurrently and repeatedly.
	EnsureReady(ctx context.Context) error
	Analyze(ctx context.Context, imageData []byte, imageCtx models.ImageContext) (models.FaceMetrics, error)
	Close()
}

// ONNXAnalyzer runs RetinaFace detection and ArcFace embedding through ONNX
// Runtime. Model loading is deferred to the first call so the worker can
// start accepting work before the runtime warms up.
type ONNXAnalyzer struct {
	cfg  config.VisionConfig
	opts *ort.SessionOptions

	once    sync.Once
	initErr error

	// ORT sessions hold preallocated input/output tensors, so inference
	// is serialized.
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

func NewONNXAnalyzer(cfg config.VisionConfig, opts *ort.SessionOptions) *ONNXAnalyzer {
	return &ONNXAnalyzer{cfg: cfg, opts: opts}
}

func (a *ONNXAnalyzer) EnsureReady(_ context.Context) error {
	a.once.Do(func() {
		detPath := filepath.Join(a.cfg.ModelsDir, "det_10g.onnx")
		embPath := filepath.Join(a.cfg.ModelsDir, "w600k_r50.onnx")

		slog.Info("loading detection model", "path", detPath)
		det, err := NewDetector(detPath, float32(a.cfg.DetectionThreshold), a.opts)
		if err != nil {
			a.initErr = fmt.Errorf("load detector: %w", err)
			return
		}

		slog.Info("loading embedding model", "path", embPath)
		emb, err := NewEmbedder(embPath, a.opts)
		if err != nil {
			det.Close()
			a.initErr = fmt.Errorf("load embedder: %w", err)
			return
		}

		a.detector = det
		a.embedder = emb
		slog.Info("face analyzer ready")
	})
	return a.initErr
}

// Analyze detects the most confident face, extracts its embedding and
// estimates head pose from the five landmarks.
func (a *ONNXAnalyzer) Analyze(ctx context.Context, imageData []byte, imageCtx models.ImageContext) (models.FaceMetrics, error) {
	if err := a.EnsureReady(ctx); err != nil {
		return models.FaceMetrics{}, err
	}

	img, err := decodeImage(imageData)
	if err != nil {
		return models.FaceMetrics{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()
	if origW == 0 || origH == 0 {
		return models.FaceMetrics{}, fmt.Errorf("empty image")
	}

	floor := float32(documentDetectFloor)
	if imageCtx == models.ContextSelfie {
		floor = selfieDetectFloor
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	detInput := preprocessForDetection(img, a.detector.inputW, a.detector.inputH)
	detections, err := a.detector.Detect(detInput, origW, origH)
	if err != nil {
		return models.FaceMetrics{}, fmt.Errorf("detect: %w", err)
	}

	best, found := bestDetection(detections, floor)
	if !found {
		return models.FaceMetrics{Detected: false}, nil
	}

	metrics := models.FaceMetrics{
		Detected:   true,
		Confidence: float64(best.Confidence),
	}

	if ratio, ok := boxAreaRatio(best, origW, origH); ok {
		metrics.BoxAreaRatio = &ratio
	}

	yaw, pitch, roll := estimatePose(best.Landmarks)
	metrics.Yaw = &yaw
	metrics.Pitch = &pitch
	metrics.Roll = &roll

	faceCrop := cropFace(img, best.BBox)
	if faceCrop == nil {
		slog.Warn("face crop collapsed to empty region", "context", imageCtx)
		return metrics, nil
	}

	embInput := preprocessForEmbedding(faceCrop, a.embedder.inputW, a.embedder.inputH)
	embedding, err := a.embedder.Extract(embInput)
	if err != nil {
		// Keep the detection; the caller records the missing descriptor.
		slog.Warn("embedding extraction failed", "context", imageCtx, "error", err)
		return metrics, nil
	}
	metrics.Embedding = embedding

	return metrics, nil
}

// Close releases the ONNX sessions.
func (a *ONNXAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		a.detector.Close()
		a.detector = nil
	}
	if a.embedder != nil {
		a.embedder.Close()
		a.embedder = nil
	}
}

func bestDetection(detections []Detection, floor float32) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range detections {
		if d.Confidence < floor {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}

// boxAreaRatio relates the face box to the whole frame. A degenerate box
// falls back to the landmark envelope.
func boxAreaRatio(d Detection, origW, origH int) (float64, bool) {
	imgArea := float64(origW) * float64(origH)
	if imgArea <= 0 {
		return 0, false
	}

	w := float64(d.BBox[2] - d.BBox[0])
	h := float64(d.BBox[3] - d.BBox[1])
	if w <= 0 || h <= 0 {
		minX, minY := d.Landmarks[0][0], d.Landmarks[0][1]
		maxX, maxY := minX, minY
		for _, lm := range d.Landmarks[1:] {
			if lm[0] < minX {
				minX = lm[0]
			}
			if lm[0] > maxX {
				maxX = lm[0]
			}
			if lm[1] < minY {
				minY = lm[1]
			}
			if lm[1] > maxY {
				maxY = lm[1]
			}
		}
		// Landmarks cover roughly half of the face extent.
		w = float64(maxX-minX) * 2
		h = float64(maxY-minY) * 2
	}
	if w <= 0 || h <= 0 {
		return 0, false
	}
	return (w * h) / imgArea, true
}

// estimatePose derives approximate head angles in degrees from the five
// RetinaFace landmarks (left eye, right eye, nose, mouth corners).
func estimatePose(lm [5][2]float32) (yaw, pitch, roll float64) {
	leftEye := lm[0]
	rightEye := lm[1]
	nose := lm[2]
	mouthMidY := (lm[3][1] + lm[4][1]) / 2

	eyeMidX := float64(leftEye[0]+rightEye[0]) / 2
	eyeMidY := float64(leftEye[1]+rightEye[1]) / 2

	roll = math.Atan2(float64(rightEye[1]-leftEye[1]), float64(rightEye[0]-leftEye[0])) * 180 / math.Pi

	eyeDist := math.Hypot(float64(rightEye[0]-leftEye[0]), float64(rightEye[1]-leftEye[1]))
	if eyeDist > 0 {
		yaw = clampDeg((float64(nose[0])-eyeMidX)/eyeDist*60, 90)
	}

	faceSpan := float64(mouthMidY) - eyeMidY
	if faceSpan > 0 {
		center := eyeMidY + faceSpan*0.5
		pitch = clampDeg((float64(nose[1])-center)/faceSpan*60, 90)
	}

	return yaw, pitch, roll
}

func clampDeg(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// decodeImage tries JPEG first since that is the dominant upload format.
func decodeImage(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// --- Model input preprocessing ---

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// imageToFloat32CHW converts an image to CHW float32 format with normalization:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			// CHW layout: [C][H][W]
			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}

	return data
}

// resizeImage performs nearest-neighbour resize (fast, good enough for ML input).
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	return dst
}

// cropFace extracts a face region from the image given a bounding box,
// padded by 10% on each side.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1 := int(bbox[0])
	y1 := int(bbox[1])
	x2 := int(bbox[2])
	y2 := int(bbox[3])

	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	padW := int(float32(w) * 0.1)
	padH := int(float32(h) * 0.1)
	x1 -= padW
	y1 -= padH
	x2 += padW
	y2 += padH

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}

	return crop
}
