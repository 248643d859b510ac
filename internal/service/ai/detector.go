package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// DefaultConfidence matches the detector library's own default threshold.
	DefaultConfidence = 0.25
	// DefaultIoUThreshold is the overlap above which NMS drops the weaker box.
	DefaultIoUThreshold = 0.45
	// DefaultInputSize is the square side the network was exported with.
	DefaultInputSize = 640
)

// ErrEmptyFrame is returned when Predict is handed an empty Mat.
var ErrEmptyFrame = errors.New("frame is empty")

// PredictOptions tunes a single Predict call.
type PredictOptions struct {
	Confidence float64
	IoU        float64
}

func (o PredictOptions) withDefaults() PredictOptions {
	if o.Confidence <= 0 || o.Confidence > 1 {
		o.Confidence = DefaultConfidence
	}
	if o.IoU <= 0 || o.IoU > 1 {
		o.IoU = DefaultIoUThreshold
	}
	return o
}

// Detector wraps a YOLO network exported to ONNX.
// gocv.Net is not safe for concurrent use, so Predict is serialized.
type Detector struct {
	net        gocv.Net
	labels     []string
	inputSize  int
	weightPath string
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetector loads the weights and the class names and sets backend/target preferences.
// A missing labels file is not fatal: detections are then labelled class<N>.
func NewDetector(weightsPath, labelsPath string, inputSize int, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if inputSize <= 0 {
		inputSize = DefaultInputSize
	}

	net := gocv.ReadNetFromONNX(weightsPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", weightsPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	labels, err := LoadLabels(labelsPath)
	if err != nil {
		logger.Warning("Could not read class names from %s: %v", labelsPath, err)
	}

	logger.Info("Detection network %s initialized with %d classes", weightsPath, len(labels))
	return &Detector{
		net:        net,
		labels:     labels,
		inputSize:  inputSize,
		weightPath: weightsPath,
		logger:     logger,
	}, nil
}

// Labels returns the class names known to the detector.
func (d *Detector) Labels() []string {
	return d.labels
}

// Predict runs the network on a BGR frame and returns detections in frame coordinates.
func (d *Detector) Predict(frame gocv.Mat, opts PredictOptions) ([]model.Detection, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	opts = opts.withDefaults()

	rows, cols := frame.Rows(), frame.Cols()
	side := max(rows, cols)

	// Pad to a square so the aspect ratio survives the resize to inputSize.
	square := gocv.NewMatWithSize(side, side, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, cols, rows))
	frame.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	scale := float32(side) / float32(d.inputSize)
	candidates := decodeOutput(data, dims[1], dims[2], scale, float32(opts.Confidence))
	if len(candidates) == 0 {
		return []model.Detection{}, nil
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = offsetByClass(c.box, c.classID)
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, float32(opts.Confidence), float32(opts.IoU))

	bounds := image.Rect(0, 0, cols, rows)
	results := make([]model.Detection, 0, len(keep))
	for _, idx := range keep {
		c := candidates[idx]
		box := c.box.Intersect(bounds)
		if box.Empty() {
			continue
		}
		results = append(results, model.Detection{
			Label:      labelFor(d.labels, c.classID),
			ClassID:    c.classID,
			Confidence: float64(c.score),
			X:          box.Min.X,
			Y:          box.Min.Y,
			Width:      box.Dx(),
			Height:     box.Dy(),
		})
	}

	return results, nil
}

// Plot draws detections on the frame in place.
func (d *Detector) Plot(frame *gocv.Mat, detections []model.Detection) error {
	return Plot(frame, detections)
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
