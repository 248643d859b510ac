package ai

import (
	"errors"
	"fmt"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"

	"gocv.io/x/gocv"
)

// ErrImageDecode is returned when an uploaded image cannot be opened.
var ErrImageDecode = errors.New("error occurred while opening the image")

// ImageResult is the outcome of a single-image detection.
type ImageResult struct {
	Annotated  []byte // JPEG
	Detections []model.Detection
	Width      int
	Height     int
}

// DetectorService runs single images through the detector of a task.
type DetectorService struct {
	loader *Loader
	logger *logger.Logger
}

func NewDetectorService(loader *Loader, logger *logger.Logger) *DetectorService {
	return &DetectorService{loader: loader, logger: logger}
}

// Loader exposes the model loader shared with the video and stream handlers.
func (s *DetectorService) Loader() *Loader {
	return s.loader
}

// DetectImage decodes the image, runs the task's detector and returns the annotated JPEG.
func (s *DetectorService) DetectImage(task model.Task, imageBytes []byte, opts PredictOptions) (*ImageResult, error) {
	det, err := s.loader.Load(task)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("%w: decoded image is empty", ErrImageDecode)
	}

	detections, err := det.Predict(mat, opts)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	for _, d := range detections {
		s.logger.Info("Detected %s (%.2f)", d.Label, d.Confidence)
	}

	if err := det.Plot(&mat, detections); err != nil {
		return nil, err
	}

	annotated, err := EncodeJPEG(mat)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}

	return &ImageResult{
		Annotated:  annotated,
		Detections: detections,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
	}, nil
}

// EncodeJPEG re-encodes a frame into a caller-owned JPEG buffer.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
