package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrCaptureOpen is returned when a capture handle cannot be opened.
	ErrCaptureOpen = errors.New("failed to open capture")
	// ErrInvalidURL is returned for stream URLs that do not fit the source kind.
	ErrInvalidURL = errors.New("invalid stream url")
)

// FrameSource is a capture handle the frame loop reads from.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// StreamResolver turns a page URL into a URL the capture backend can open.
type StreamResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// OpenFunc opens a device index or a file/stream path.
type OpenFunc func(device interface{}) (FrameSource, error)

// Opener opens the capture handle matching a source kind.
type Opener struct {
	webcamPath string
	resolver   StreamResolver
	open       OpenFunc
	logger     *logger.Logger
}

func NewOpener(webcamPath string, resolver StreamResolver, logger *logger.Logger) *Opener {
	return &Opener{
		webcamPath: webcamPath,
		resolver:   resolver,
		open:       openVideoCapture,
		logger:     logger,
	}
}

// WithOpenFunc replaces the capture backend.
func (o *Opener) WithOpenFunc(open OpenFunc) *Opener {
	o.open = open
	return o
}

// Open resolves the target for the kind and opens a capture handle on it.
// For the webcam the target is ignored in favour of the configured device.
func (o *Opener) Open(ctx context.Context, kind model.SourceKind, target string) (FrameSource, error) {
	var device interface{}

	switch kind {
	case model.SourceWebcam:
		device = WebcamDevice(o.webcamPath)
	case model.SourceRTSP:
		if err := ValidateRTSP(target); err != nil {
			return nil, err
		}
		device = target
	case model.SourceYouTube:
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("%w: empty YouTube url", ErrInvalidURL)
		}
		if o.resolver == nil {
			return nil, fmt.Errorf("no stream resolver configured")
		}
		streamURL, err := o.resolver.Resolve(ctx, target)
		if err != nil {
			return nil, err
		}
		device = streamURL
	case model.SourceVideo:
		if target == "" {
			return nil, fmt.Errorf("%w: empty video path", ErrCaptureOpen)
		}
		device = target
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownSource, kind)
	}

	o.logger.Info("Opening %s capture", kind)
	return o.open(device)
}

// WebcamDevice turns a numeric webcam path into a device index.
func WebcamDevice(path string) interface{} {
	if id, err := strconv.Atoi(strings.TrimSpace(path)); err == nil {
		return id
	}
	return path
}

// ValidateRTSP checks that the URL names an RTSP server.
func ValidateRTSP(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("%w: scheme must be rtsp, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

func openVideoCapture(device interface{}) (FrameSource, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureOpen, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %v", ErrCaptureOpen, device)
	}
	return vc, nil
}
