package capture

import (
	"context"
	"fmt"
	"image"
	"roadwatch/internal/model"
	"roadwatch/internal/service/ai"

	"gocv.io/x/gocv"
)

// Predictor is the part of the detector the frame loop needs.
type Predictor interface {
	Predict(frame gocv.Mat, opts ai.PredictOptions) ([]model.Detection, error)
	Plot(frame *gocv.Mat, detections []model.Detection) error
}

// Frame is one annotated frame handed to viewers.
type Frame struct {
	Index      int
	JPEG       []byte
	Detections []model.Detection
}

// FrameSink receives annotated frames as they are produced.
type FrameSink interface {
	Publish(frame Frame)
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(frame Frame)

func (f SinkFunc) Publish(frame Frame) { f(frame) }

// LoopOptions configures the frame-acquisition loop.
type LoopOptions struct {
	Width   int
	Height  int
	Predict ai.PredictOptions
	Track   bool
}

// Stats summarizes a finished loop.
type Stats struct {
	Frames int
	Tally  model.Tally
}

// Run reads frames until the source is exhausted, the context is cancelled or a frame fails.
// Each frame is resized, run through the predictor, annotated and published.
// The source is always closed before Run returns.
func Run(ctx context.Context, src FrameSource, p Predictor, sink FrameSink, opts LoopOptions) (Stats, error) {
	defer src.Close()

	stats := Stats{Tally: model.Tally{}}
	var tracker *ai.Tracker
	if opts.Track {
		tracker = ai.NewTracker()
	}

	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if ok := src.Read(&img); !ok || img.Empty() {
			return stats, nil
		}

		frame := img
		if opts.Width > 0 && opts.Height > 0 {
			if err := gocv.Resize(img, &resized, image.Pt(opts.Width, opts.Height), 0, 0, gocv.InterpolationLinear); err != nil {
				return stats, fmt.Errorf("failed to resize frame: %w", err)
			}
			frame = resized
		}

		detections, err := p.Predict(frame, opts.Predict)
		if err != nil {
			return stats, fmt.Errorf("prediction failed on frame %d: %w", stats.Frames, err)
		}
		if tracker != nil {
			detections = tracker.Update(detections)
		}

		if err := p.Plot(&frame, detections); err != nil {
			return stats, err
		}
		jpeg, err := ai.EncodeJPEG(frame)
		if err != nil {
			return stats, err
		}

		stats.Tally.Add(detections)
		sink.Publish(Frame{Index: stats.Frames, JPEG: jpeg, Detections: detections})
		stats.Frames++
	}
}
