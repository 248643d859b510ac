package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/repository"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"
	"sync"
	"time"

	"github.com/hybridgroup/mjpeg"
)

// Session statuses besides the run statuses.
const (
	StatusIdle    = "idle"
	StatusRunning = string(model.RunRunning)
)

// ErrNotLive is returned when a live loop is requested for an upload-only source.
var ErrNotLive = errors.New("source is not a live stream")

// PredictorLoader returns the detector for a task.
type PredictorLoader interface {
	Load(task model.Task) (capture.Predictor, error)
}

// LoaderFunc adapts a function to PredictorLoader.
type LoaderFunc func(task model.Task) (capture.Predictor, error)

func (f LoaderFunc) Load(task model.Task) (capture.Predictor, error) { return f(task) }

// SourceOpener opens capture handles for live sources.
type SourceOpener interface {
	Open(ctx context.Context, kind model.SourceKind, target string) (capture.FrameSource, error)
}

// Broadcaster delivers messages to the viewers of a session.
type Broadcaster interface {
	Broadcast(data []byte, session string)
	GetClientCount(session string) int
}

// LoopSettings are the frame-loop parameters shared by every session.
type LoopSettings struct {
	Width  int
	Height int
	IoU    float64
}

// StreamRequest describes a live detection the user asked for.
type StreamRequest struct {
	Task       model.Task
	Source     model.SourceKind
	URL        string
	Confidence float64
	Track      bool
}

// Session is the explicit per-browser state object.
type Session struct {
	id     string
	task   model.Task
	source model.SourceKind
	status string
	err    string
	frames int
	runID  int64
	last   []model.Detection
	stream *mjpeg.Stream

	// control serializes actions that start or stop the loop.
	control sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

type Manager struct {
	loader   PredictorLoader
	opener   SourceOpener
	hub      Broadcaster
	runs     repository.RunRepository
	objects  repository.ObjectRepository
	settings LoopSettings
	logger   *logger.Logger

	sessions map[string]*Session
	mu       sync.Mutex
}

func NewManager(loader PredictorLoader, opener SourceOpener, hub Broadcaster, runs repository.RunRepository,
	objects repository.ObjectRepository, settings LoopSettings, logger *logger.Logger) *Manager {
	return &Manager{
		loader:   loader,
		opener:   opener,
		hub:      hub,
		runs:     runs,
		objects:  objects,
		settings: settings,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// session returns the state of id, creating it when absent. Caller holds m.mu.
func (m *Manager) session(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{
			id:     id,
			task:   model.TaskTrafficSign,
			source: model.SourceImage,
			status: StatusIdle,
			stream: mjpeg.NewStream(),
		}
		m.sessions[id] = s
		m.logger.Info("Created session %s", id)
	}
	return s
}

func (m *Manager) lookup(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session(id)
}

// Select records the sidebar choices of a session. Changing the task or the
// source stops the running loop, since it was started for the old choice.
func (m *Manager) Select(id string, task model.Task, source model.SourceKind) {
	s := m.lookup(id)
	s.control.Lock()
	defer s.control.Unlock()

	m.mu.Lock()
	changed := s.task != task || s.source != source
	m.mu.Unlock()
	if changed {
		m.stop(s)
	}
	m.assign(s, task, source)
}

func (m *Manager) assign(s *Session, task model.Task, source model.SourceKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.task = task
	s.source = source
}

// State returns a snapshot of the session.
func (m *Manager) State(id string) dto.SessionState {
	m.mu.Lock()
	s := m.session(id)
	state := dto.SessionState{
		ID:             s.id,
		Task:           s.task,
		Source:         s.source,
		Status:         s.status,
		Error:          s.err,
		Frames:         s.frames,
		RunID:          s.runID,
		LastDetections: append([]model.Detection{}, s.last...),
	}
	m.mu.Unlock()

	if m.hub != nil {
		state.Viewers = m.hub.GetClientCount(id)
	}
	return state
}

// MJPEG returns the pull stream of a session.
func (m *Manager) MJPEG(id string) *mjpeg.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session(id).stream
}

// Start stops whatever the session was running, opens the requested source and
// runs the frame loop in the background. Load and open failures are returned directly.
func (m *Manager) Start(id string, req StreamRequest) error {
	if !req.Source.IsLive() {
		return fmt.Errorf("%w: %s", ErrNotLive, req.Source)
	}

	s := m.lookup(id)
	s.control.Lock()
	defer s.control.Unlock()

	m.stop(s)
	m.assign(s, req.Task, req.Source)

	predictor, err := m.loader.Load(req.Task)
	if err != nil {
		m.fail(id, err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	src, err := m.opener.Open(ctx, req.Source, req.URL)
	if err != nil {
		cancel()
		m.fail(id, err)
		return err
	}

	run := &model.Run{
		SessionID: id,
		Task:      req.Task,
		Source:    req.Source,
		Input:     req.URL,
		Status:    model.RunRunning,
		StartedAt: time.Now(),
	}
	m.insertRun(run)

	done := make(chan struct{})
	m.mu.Lock()
	s.status = StatusRunning
	s.err = ""
	s.frames = 0
	s.last = nil
	s.runID = run.ID
	s.cancel = cancel
	s.done = done
	stream := s.stream
	m.mu.Unlock()

	opts := capture.LoopOptions{
		Width:   m.settings.Width,
		Height:  m.settings.Height,
		Predict: ai.PredictOptions{Confidence: req.Confidence, IoU: m.settings.IoU},
		Track:   req.Track,
	}
	sink := capture.SinkFunc(func(frame capture.Frame) {
		m.publish(id, stream, frame)
	})

	m.logger.Info("Session %s: %s loop started (%s)", id, req.Source, req.Task)
	go func() {
		defer close(done)
		defer cancel()

		stats, err := capture.Run(ctx, src, predictor, sink, opts)
		m.finish(id, run, stats, err)
	}()

	return nil
}

// Stop cancels the session's loop and waits until its capture handle is released.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	s.control.Lock()
	defer s.control.Unlock()
	m.stop(s)
}

// stop cancels the loop of s, if any, and waits for it. Caller holds s.control.
func (m *Manager) stop(s *Session) {
	m.mu.Lock()
	cancel, done := s.cancel, s.done
	m.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done
}

// Shutdown stops every running loop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
	m.logger.Info("All frame loops stopped")
}

// Record stores a completed single-shot run (image or stored video) in the history.
// A live loop still running on the session is stopped first.
func (m *Manager) Record(id string, task model.Task, source model.SourceKind, input string, frames int, tally model.Tally, runErr error) int64 {
	s := m.lookup(id)
	s.control.Lock()
	defer s.control.Unlock()
	m.stop(s)

	run := &model.Run{
		SessionID: id,
		Task:      task,
		Source:    source,
		Input:     input,
		Status:    model.RunRunning,
		StartedAt: time.Now(),
	}
	m.insertRun(run)
	m.completeRun(run, frames, tally, runErr)

	m.mu.Lock()
	s.task, s.source = task, source
	s.status, s.err, s.frames, s.runID = string(run.Status), run.Error, frames, run.ID
	m.mu.Unlock()

	return run.ID
}

func (m *Manager) publish(id string, stream *mjpeg.Stream, frame capture.Frame) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.frames = frame.Index + 1
		s.last = frame.Detections
	}
	m.mu.Unlock()

	stream.UpdateJPEG(frame.JPEG)

	if m.hub == nil {
		return
	}
	msg, err := json.Marshal(dto.FrameMessage{
		Type:       "frame",
		Session:    id,
		Index:      frame.Index,
		Frame:      base64.StdEncoding.EncodeToString(frame.JPEG),
		Detections: frame.Detections,
	})
	if err != nil {
		m.logger.Error("Failed to encode frame message: %v", err)
		return
	}
	m.hub.Broadcast(msg, id)
}

func (m *Manager) finish(id string, run *model.Run, stats capture.Stats, loopErr error) {
	if errors.Is(loopErr, context.Canceled) {
		run.Status = model.RunStopped
		loopErr = nil
	}
	m.completeRun(run, stats.Frames, stats.Tally, loopErr)

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.status = string(run.Status)
		s.err = run.Error
		s.frames = stats.Frames
	}
	m.mu.Unlock()

	if loopErr != nil {
		m.logger.Error("Session %s: loop failed after %d frames: %v", id, stats.Frames, loopErr)
	} else {
		m.logger.Info("Session %s: loop %s after %d frames", id, run.Status, stats.Frames)
	}
	m.sendStatus(id, run)
}

func (m *Manager) fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(id)
	s.status = string(model.RunFailed)
	s.err = err.Error()
	m.logger.Error("Session %s: %v", id, err)
}

func (m *Manager) sendStatus(id string, run *model.Run) {
	if m.hub == nil {
		return
	}
	msg, err := json.Marshal(dto.StatusMessage{
		Type:    "status",
		Session: id,
		Status:  string(run.Status),
		Frames:  run.Frames,
		Error:   run.Error,
	})
	if err != nil {
		m.logger.Error("Failed to encode status message: %v", err)
		return
	}
	m.hub.Broadcast(msg, id)
}

func (m *Manager) insertRun(run *model.Run) {
	if m.runs == nil {
		return
	}
	if _, err := m.runs.Insert(run); err != nil {
		m.logger.Error("Error saving run to database: %v", err)
	}
}

// completeRun fills in the outcome of a run and persists it with its label counts.
func (m *Manager) completeRun(run *model.Run, frames int, tally model.Tally, runErr error) {
	run.Frames = frames
	run.FinishedAt = time.Now()
	switch {
	case runErr != nil:
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	case run.Status == model.RunRunning:
		run.Status = model.RunFinished
	}

	if m.runs == nil || run.ID == 0 {
		return
	}
	if err := m.runs.Finish(run); err != nil {
		m.logger.Error("Error updating run %d: %v", run.ID, err)
	}
	if m.objects != nil && len(tally) > 0 {
		if err := m.objects.InsertBatch(tally.Objects(run.ID)); err != nil {
			m.logger.Error("Error saving run objects to database: %v", err)
		}
	}
}
