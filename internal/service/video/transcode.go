package video

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ErrVideoOpen is returned when a video file cannot be read.
var ErrVideoOpen = errors.New("cannot open video file")

const defaultFPS = 30

// TranscodedPath is the .mp4 sibling of a saved prediction file.
func TranscodedPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".mp4"
}

// Transcode rewrites a video with the given fourcc into an .mp4 next to it,
// keeping the source fps and frame size.
func Transcode(input, codec string) (string, error) {
	output := TranscodedPath(input)
	if output == input {
		return "", fmt.Errorf("input %s is already an mp4", input)
	}

	vc, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrVideoOpen, input, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return "", fmt.Errorf("%w %s", ErrVideoOpen, input)
	}

	width := int(vc.Get(gocv.VideoCaptureFrameWidth))
	height := int(vc.Get(gocv.VideoCaptureFrameHeight))
	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}

	writer, err := gocv.VideoWriterFile(output, codec, fps, width, height, true)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer writer.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	for vc.Read(&frame) {
		if frame.Empty() {
			break
		}
		if err := writer.Write(frame); err != nil {
			return "", fmt.Errorf("failed to write frame to %s: %w", output, err)
		}
	}

	return output, nil
}
