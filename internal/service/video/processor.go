package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"roadwatch/internal/config"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// predictDir mirrors the detector library's <project>/predict output layout.
const predictDir = "predict"

// savedCodec is the fourcc of the intermediate annotated file.
const savedCodec = "MJPG"

// Result describes a processed stored video.
type Result struct {
	Name       string // File name of the playable video inside the predict directory
	OutputPath string
	Frames     int
	Tally      model.Tally
}

// Processor batch-processes stored videos and prepares them for browser playback.
// Every run clears the save directory, so runs are processed one at a time.
type Processor struct {
	saveDir string
	codec   string
	logger  *logger.Logger
	mu      sync.Mutex
}

func NewProcessor(cfg *config.Config, logger *logger.Logger) *Processor {
	return &Processor{
		saveDir: cfg.SaveDirectory,
		codec:   cfg.VideoCodec,
		logger:  logger,
	}
}

// OutputDir is where playable results are written.
func (p *Processor) OutputDir() string {
	return filepath.Join(p.saveDir, predictDir)
}

// ResetSaveDir removes the working directory and recreates the predict directory.
func (p *Processor) ResetSaveDir() error {
	if err := os.RemoveAll(p.saveDir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", p.saveDir, err)
	}
	if err := os.MkdirAll(p.OutputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", p.OutputDir(), err)
	}
	return nil
}

// Process annotates every frame of the input into <save>/predict/<name>.avi and
// transcodes that file to <name>.mp4.
func (p *Processor) Process(ctx context.Context, det capture.Predictor, input string, opts ai.PredictOptions) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ResetSaveDir(); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	saved := filepath.Join(p.OutputDir(), stem+".avi")

	frames, tally, err := p.annotate(ctx, det, input, saved, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Saved %d annotated frames to %s", frames, saved)

	output, err := Transcode(saved, p.codec)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Conversion completed: %s to %s", saved, output)

	return &Result{
		Name:       filepath.Base(output),
		OutputPath: output,
		Frames:     frames,
		Tally:      tally,
	}, nil
}

func (p *Processor) annotate(ctx context.Context, det capture.Predictor, input, saved string, opts ai.PredictOptions) (int, model.Tally, error) {
	vc, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return 0, nil, fmt.Errorf("%w %s: %v", ErrVideoOpen, input, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return 0, nil, fmt.Errorf("%w %s", ErrVideoOpen, input)
	}

	width := int(vc.Get(gocv.VideoCaptureFrameWidth))
	height := int(vc.Get(gocv.VideoCaptureFrameHeight))
	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}

	writer, err := gocv.VideoWriterFile(saved, savedCodec, fps, width, height, true)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s: %w", saved, err)
	}
	defer writer.Close()

	tally := model.Tally{}
	frame := gocv.NewMat()
	defer frame.Close()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return frames, tally, ctx.Err()
		default:
		}

		if !vc.Read(&frame) || frame.Empty() {
			break
		}

		detections, err := det.Predict(frame, opts)
		if err != nil {
			return frames, tally, fmt.Errorf("prediction failed on frame %d: %w", frames, err)
		}
		if err := det.Plot(&frame, detections); err != nil {
			return frames, tally, err
		}
		if err := writer.Write(frame); err != nil {
			return frames, tally, fmt.Errorf("failed to write frame %d: %w", frames, err)
		}
		tally.Add(detections)
		frames++
	}

	return frames, tally, nil
}
