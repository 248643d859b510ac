package model

import (
	"sort"
	"time"
)

// RunStatus describes where a detection run is in its lifecycle.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunStopped  RunStatus = "stopped"
	RunFailed   RunStatus = "failed"
)

// Run represents one detection action recorded in the history.
type Run struct {
	ID         int64      `json:"id"`
	SessionID  string     `json:"session_id"`
	Task       Task       `json:"task"`
	Source     SourceKind `json:"source"`
	Input      string     `json:"input"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Frames     int        `json:"frames"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// RunObject is the per-label tally of a run.
type RunObject struct {
	ID             int64   `json:"id"`
	RunID          int64   `json:"run_id"`
	ObjectName     string  `json:"object_name"`
	Count          int     `json:"count"`
	BestConfidence float64 `json:"best_confidence"`
}

// RunFilter contains filtering options for querying runs.
type RunFilter struct {
	Task   string
	Source string
	Object string
	Limit  int
	Offset int
}

// Tally accumulates per-label counts over the frames of a run.
type Tally map[string]*RunObject

// Add counts every detection of a frame.
func (t Tally) Add(detections []Detection) {
	for _, d := range detections {
		obj, ok := t[d.Label]
		if !ok {
			obj = &RunObject{ObjectName: d.Label}
			t[d.Label] = obj
		}
		obj.Count++
		if d.Confidence > obj.BestConfidence {
			obj.BestConfidence = d.Confidence
		}
	}
}

// Objects returns the tally as rows for a run, ordered by name.
func (t Tally) Objects(runID int64) []RunObject {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RunObject, 0, len(names))
	for _, name := range names {
		obj := *t[name]
		obj.RunID = runID
		out = append(out, obj)
	}
	return out
}
