package model

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	// ErrUnknownSource is returned for a source kind outside SourcesList.
	ErrUnknownSource = errors.New("please select a valid source type")
)

// Task selects which pre-trained detector is used.
type Task string

const (
	TaskTrafficSign Task = "Traffic Sign"
	TaskDrowsiness  Task = "Drowsiness Detection"
)

// Tasks lists the tasks in sidebar order.
var Tasks = []Task{TaskTrafficSign, TaskDrowsiness}

// ParseTask accepts the display name of a task.
func ParseTask(s string) (Task, error) {
	for _, t := range Tasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, s)
}

// SourceKind is the kind of media a detection runs on.
type SourceKind string

const (
	SourceImage   SourceKind = "Image"
	SourceVideo   SourceKind = "Video"
	SourceWebcam  SourceKind = "Webcam"
	SourceRTSP    SourceKind = "RTSP"
	SourceYouTube SourceKind = "YouTube"
)

// SourcesList lists the source kinds in sidebar order.
var SourcesList = []SourceKind{SourceImage, SourceVideo, SourceWebcam, SourceRTSP, SourceYouTube}

// ParseSourceKind accepts the display name of a source kind.
func ParseSourceKind(s string) (SourceKind, error) {
	for _, k := range SourcesList {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// IsLive reports whether the source is read frame by frame until it ends or is stopped.
func (k SourceKind) IsLive() bool {
	return k == SourceWebcam || k == SourceRTSP || k == SourceYouTube
}
