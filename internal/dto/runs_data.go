package dto

import (
	"encoding/json"
	"roadwatch/internal/model"
	"time"
)

// RunInfo is a run history row as shown in the UI.
type RunInfo struct {
	ID         int64             `json:"id"`
	Task       model.Task        `json:"task"`
	Source     model.SourceKind  `json:"source"`
	Input      string            `json:"input"`
	Status     model.RunStatus   `json:"status"`
	Error      string            `json:"error,omitempty"`
	Frames     int               `json:"frames"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Objects    []model.RunObject `json:"objects"`
}

// MarshalJSON formats the timestamps for display.
func (r RunInfo) MarshalJSON() ([]byte, error) {
	type Alias RunInfo
	finished := ""
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.Format("02-01-2006 15:04:05")
	}
	return json.Marshal(&struct {
		StartedAt  string `json:"startedAt"`
		FinishedAt string `json:"finishedAt"`
		Alias
	}{
		StartedAt:  r.StartedAt.Format("02-01-2006 15:04:05"),
		FinishedAt: finished,
		Alias:      (Alias)(r),
	})
}

// RunsData is a paginated response payload for the run history.
type RunsData struct {
	Runs        []RunInfo `json:"runs"`
	Objects     []string  `json:"objects"`
	Length      int       `json:"length"`
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
	Limit       int       `json:"pageSize"`
}
