package dto

import "roadwatch/internal/model"

// FrameMessage carries one annotated frame to the viewers of a session.
type FrameMessage struct {
	Type       string            `json:"type"` // "frame"
	Session    string            `json:"session"`
	Index      int               `json:"index"`
	Frame      string            `json:"frame"` // base64 JPEG
	Detections []model.Detection `json:"detections"`
}

// StatusMessage tells viewers that the session's loop changed state.
type StatusMessage struct {
	Type    string `json:"type"` // "status"
	Session string `json:"session"`
	Status  string `json:"status"`
	Frames  int    `json:"frames"`
	Error   string `json:"error,omitempty"`
}
