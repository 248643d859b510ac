package dto

import "roadwatch/internal/model"

// SessionState is the server-side UI state of one browser session.
type SessionState struct {
	ID             string            `json:"id"`
	Task           model.Task        `json:"task"`
	Source         model.SourceKind  `json:"source"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Frames         int               `json:"frames"`
	RunID          int64             `json:"runId,omitempty"`
	LastDetections []model.Detection `json:"lastDetections"`
	Viewers        int               `json:"viewers"`
}
