package dto

import "roadwatch/internal/model"

// ImageDetectionResult is returned by the image detection endpoint.
type ImageDetectionResult struct {
	Task       model.Task        `json:"task"`
	Image      string            `json:"image"` // base64 annotated JPEG
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []model.Detection `json:"detections"`
	RunID      int64             `json:"runId,omitempty"`
}

// VideoDetectionResult is returned once a stored video has been processed and transcoded.
type VideoDetectionResult struct {
	Task     model.Task `json:"task"`
	VideoURL string     `json:"videoUrl"`
	Frames   int        `json:"frames"`
	RunID    int64      `json:"runId,omitempty"`
}

// StartStreamRequest starts a live source for the caller's session.
type StartStreamRequest struct {
	Task       string  `json:"task"`
	Source     string  `json:"source"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
	Track      bool    `json:"track"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
