package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"

	"gocv.io/x/gocv"
)

// ========================================
// Fakes
// ========================================

// frameSource yields frames until limit is reached (or forever when limit < 0).
type frameSource struct {
	limit  int
	reads  int
	mu     sync.Mutex
	closed bool
}

func (s *frameSource) Read(m *gocv.Mat) bool {
	if s.limit >= 0 && s.reads >= s.limit {
		return false
	}
	s.reads++
	if s.limit < 0 {
		time.Sleep(5 * time.Millisecond)
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (s *frameSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *frameSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubPredictor struct{}

func (stubPredictor) Predict(frame gocv.Mat, opts ai.PredictOptions) ([]model.Detection, error) {
	return []model.Detection{{Label: "stop", Confidence: 0.9, X: 1, Y: 1, Width: 10, Height: 10}}, nil
}

func (stubPredictor) Plot(frame *gocv.Mat, detections []model.Detection) error {
	return nil
}

type stubOpener struct {
	sources []*frameSource
	err     error
	limit   int
	mu      sync.Mutex
}

func (o *stubOpener) Open(ctx context.Context, kind model.SourceKind, target string) (capture.FrameSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &frameSource{limit: o.limit}
	o.sources = append(o.sources, src)
	return src, nil
}

type stubHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *stubHub) Broadcast(data []byte, session string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, data)
}

func (h *stubHub) GetClientCount(session string) int { return 0 }

func (h *stubHub) types() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := map[string]int{}
	for _, m := range h.messages {
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(m, &msg) == nil {
			counts[msg.Type]++
		}
	}
	return counts
}

type memRuns struct {
	mu   sync.Mutex
	runs map[int64]model.Run
}

func (r *memRuns) Insert(run *model.Run) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[int64]model.Run{}
	}
	run.ID = int64(len(r.runs) + 1)
	r.runs[run.ID] = *run
	return run.ID, nil
}

func (r *memRuns) Finish(run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return errors.New("not found")
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *memRuns) GetByID(id int64) (*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (r *memRuns) GetAll(filter *model.RunFilter) ([]model.Run, error) { return nil, nil }

func (r *memRuns) GetTotalCount(filter *model.RunFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs), nil
}

func (r *memRuns) DeleteAll() error { return nil }

type memObjects struct {
	mu      sync.Mutex
	objects []model.RunObject
}

func (o *memObjects) InsertBatch(objects []model.RunObject) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects = append(o.objects, objects...)
	return nil
}

func (o *memObjects) GetByRunID(runID int64) ([]model.RunObject, error) { return nil, nil }
func (o *memObjects) GetAllObjectNames() ([]string, error) { return nil, nil }

func newTestManager(opener *stubOpener, loadErr error) (*Manager, *stubHub, *memRuns, *memObjects) {
	loader := LoaderFunc(func(task model.Task) (capture.Predictor, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return stubPredictor{}, nil
	})
	hub := &stubHub{}
	runs := &memRuns{}
	objects := &memObjects{}
	m := NewManager(loader, opener, hub, runs, objects, LoopSettings{Width: 32, Height: 18}, logger.NewNop())
	return m, hub, runs, objects
}

func waitForStatus(t *testing.T, m *Manager, id, status string) dto.SessionState {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		state := m.State(id)
		if state.Status == status {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected status %q, got %q", status, state.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

var webcam = StreamRequest{Task: model.TaskTrafficSign, Source: model.SourceWebcam}

// ========================================
// Manager Tests
// ========================================

func TestManager_NewSessionIsIdle(t *testing.T) {
	m, _, _, _ := newTestManager(&stubOpener{}, nil)

	state := m.State("s1")
	if state.Status != StatusIdle || state.Task != model.TaskTrafficSign || state.Source != model.SourceImage {
		t.Errorf("Unexpected initial state: %+v", state)
	}
}

func TestManager_Select(t *testing.T) {
	m, _, _, _ := newTestManager(&stubOpener{}, nil)

	m.Select("s1", model.TaskDrowsiness, model.SourceRTSP)
	state := m.State("s1")
	if state.Task != model.TaskDrowsiness || state.Source != model.SourceRTSP {
		t.Errorf("Selection not stored: %+v", state)
	}
}

func TestManager_StartRejectsUploadSources(t *testing.T) {
	m, _, _, _ := newTestManager(&stubOpener{}, nil)

	err := m.Start("s1", StreamRequest{Task: model.TaskTrafficSign, Source: model.SourceImage})
	if !errors.Is(err, ErrNotLive) {
		t.Errorf("Expected ErrNotLive, got %v", err)
	}
}

func TestManager_StartLoadError(t *testing.T) {
	loadErr := errors.New("Unable to load model")
	m, _, _, _ := newTestManager(&stubOpener{}, loadErr)

	if err := m.Start("s1", webcam); !errors.Is(err, loadErr) {
		t.Fatalf("Expected load error, got %v", err)
	}
	state := m.State("s1")
	if state.Status != string(model.RunFailed) || state.Error == "" {
		t.Errorf("Session should record the failure: %+v", state)
	}
}

func TestManager_StartOpenError(t *testing.T) {
	openErr := capture.ErrCaptureOpen
	m, _, runs, _ := newTestManager(&stubOpener{err: openErr}, nil)

	if err := m.Start("s1", webcam); !errors.Is(err, openErr) {
		t.Fatalf("Expected open error, got %v", err)
	}
	if m.State("s1").Status != string(model.RunFailed) {
		t.Error("Session should be failed")
	}
	if n, _ := runs.GetTotalCount(nil); n != 0 {
		t.Errorf("No run should be recorded when the source cannot be opened, got %d", n)
	}
}

func TestManager_RunsToEndOfStream(t *testing.T) {
	opener := &stubOpener{limit: 3}
	m, hub, runs, objects := newTestManager(opener, nil)

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, m, "s1", string(model.RunFinished))
	m.Stop("s1")
	state := m.State("s1")

	if state.Frames != 3 {
		t.Errorf("Expected 3 frames, got %d", state.Frames)
	}
	if len(state.LastDetections) != 1 {
		t.Errorf("Expected last detections to be kept, got %v", state.LastDetections)
	}
	if !opener.sources[0].isClosed() {
		t.Error("Capture should be released at end of stream")
	}

	types := hub.types()
	if types["frame"] != 3 || types["status"] != 1 {
		t.Errorf("Unexpected messages: %v", types)
	}

	run, _ := runs.GetByID(state.RunID)
	if run == nil || run.Status != model.RunFinished || run.Frames != 3 {
		t.Errorf("Unexpected run record: %+v", run)
	}
	objects.mu.Lock()
	defer objects.mu.Unlock()
	if len(objects.objects) != 1 || objects.objects[0].Count != 3 {
		t.Errorf("Unexpected run objects: %+v", objects.objects)
	}
}

func TestManager_StopReleasesCapture(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, runs, _ := newTestManager(opener, nil)

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop("s1")

	if !opener.sources[0].isClosed() {
		t.Error("Stop should release the capture before returning")
	}
	state := m.State("s1")
	if state.Status != string(model.RunStopped) {
		t.Errorf("Expected stopped, got %q", state.Status)
	}
	if run, _ := runs.GetByID(state.RunID); run == nil || run.Status != model.RunStopped {
		t.Errorf("Run should be recorded as stopped: %+v", run)
	}
}

func TestManager_NewStartStopsPrevious(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, _, _ := newTestManager(opener, nil)

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	rtsp := StreamRequest{Task: model.TaskDrowsiness, Source: model.SourceRTSP, URL: "rtsp://cam/1"}
	if err := m.Start("s1", rtsp); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}
	defer m.Shutdown()

	if !opener.sources[0].isClosed() {
		t.Error("First capture should be released when a new action starts")
	}
	state := m.State("s1")
	if state.Status != StatusRunning || state.Source != model.SourceRTSP || state.Task != model.TaskDrowsiness {
		t.Errorf("Unexpected state after restart: %+v", state)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, _, _ := newTestManager(opener, nil)

	if err := m.Start("a", webcam); err != nil {
		t.Fatalf("Start a failed: %v", err)
	}
	if err := m.Start("b", webcam); err != nil {
		t.Fatalf("Start b failed: %v", err)
	}

	m.Stop("a")
	if opener.sources[1].isClosed() {
		t.Error("Stopping a must not touch b")
	}
	if m.State("b").Status != StatusRunning {
		t.Error("Session b should still be running")
	}

	m.Shutdown()
	if !opener.sources[1].isClosed() {
		t.Error("Shutdown should stop every session")
	}
}

func TestManager_Record(t *testing.T) {
	m, _, runs, objects := newTestManager(&stubOpener{}, nil)

	tally := model.Tally{}
	tally.Add([]model.Detection{{Label: "yield", Confidence: 0.5}})
	id := m.Record("s1", model.TaskTrafficSign, model.SourceImage, "sign.jpg", 1, tally, nil)

	run, _ := runs.GetByID(id)
	if run == nil || run.Status != model.RunFinished || run.Input != "sign.jpg" || run.FinishedAt.IsZero() {
		t.Errorf("Unexpected run: %+v", run)
	}
	if len(objects.objects) != 1 || objects.objects[0].RunID != id {
		t.Errorf("Unexpected objects: %+v", objects.objects)
	}

	failedID := m.Record("s1", model.TaskTrafficSign, model.SourceVideo, "clip.mp4", 0, nil, errors.New("cannot open video file"))
	failed, _ := runs.GetByID(failedID)
	if failed.Status != model.RunFailed || failed.Error != "cannot open video file" {
		t.Errorf("Unexpected failed run: %+v", failed)
	}
	if state := m.State("s1"); state.Status != string(model.RunFailed) || state.Source != model.SourceVideo {
		t.Errorf("Session should reflect the last action: %+v", state)
	}
}

func TestManager_ConcurrentStartsKeepOneLoop(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, _, _ := newTestManager(opener, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Start("s1", webcam); err != nil {
				t.Errorf("Start failed: %v", err)
			}
		}()
	}
	wg.Wait()
	m.Stop("s1")

	opener.mu.Lock()
	defer opener.mu.Unlock()
	if len(opener.sources) != 8 {
		t.Fatalf("Expected 8 opened sources, got %d", len(opener.sources))
	}
	for i, src := range opener.sources {
		if !src.isClosed() {
			t.Errorf("Source %d still open after Stop", i)
		}
	}
}

func TestManager_SelectChangeStopsLoop(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, _, _ := newTestManager(opener, nil)

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Select("s1", model.TaskDrowsiness, model.SourceWebcam)

	if !opener.sources[0].isClosed() {
		t.Error("Changing the task should release the capture")
	}
	state := m.State("s1")
	if state.Status != string(model.RunStopped) || state.Task != model.TaskDrowsiness {
		t.Errorf("Unexpected state after task change: %+v", state)
	}
}

func TestManager_SelectSameChoiceKeepsLoop(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, _, _ := newTestManager(opener, nil)
	defer m.Shutdown()

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Select("s1", webcam.Task, webcam.Source)

	if opener.sources[0].isClosed() {
		t.Error("Reselecting the running choice should not stop the loop")
	}
	if m.State("s1").Status != StatusRunning {
		t.Error("Session should still be running")
	}
}

func TestManager_RecordStopsLoop(t *testing.T) {
	opener := &stubOpener{limit: -1}
	m, _, runs, _ := newTestManager(opener, nil)

	if err := m.Start("s1", webcam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	liveRun := m.State("s1").RunID

	id := m.Record("s1", model.TaskTrafficSign, model.SourceImage, "sign.jpg", 1, nil, nil)

	if !opener.sources[0].isClosed() {
		t.Error("An image detection should release the live capture")
	}
	state := m.State("s1")
	if state.Status != string(model.RunFinished) || state.RunID != id || state.Frames != 1 {
		t.Errorf("Session should reflect the image run: %+v", state)
	}
	if run, _ := runs.GetByID(liveRun); run == nil || run.Status != model.RunStopped {
		t.Errorf("Live run should be recorded as stopped: %+v", run)
	}
}

type optsPredictor struct {
	mu   sync.Mutex
	opts ai.PredictOptions
}

func (p *optsPredictor) Predict(frame gocv.Mat, opts ai.PredictOptions) ([]model.Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = opts
	return nil, nil
}

func (p *optsPredictor) Plot(frame *gocv.Mat, detections []model.Detection) error { return nil }

func TestManager_LoopUsesConfiguredIoU(t *testing.T) {
	predictor := &optsPredictor{}
	loader := LoaderFunc(func(task model.Task) (capture.Predictor, error) { return predictor, nil })
	opener := &stubOpener{limit: 2}
	m := NewManager(loader, opener, nil, nil, nil, LoopSettings{IoU: 0.6}, logger.NewNop())

	if err := m.Start("s1", StreamRequest{Task: model.TaskTrafficSign, Source: model.SourceWebcam, Confidence: 0.4}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, m, "s1", string(model.RunFinished))
	m.Stop("s1")

	predictor.mu.Lock()
	defer predictor.mu.Unlock()
	if predictor.opts.IoU != 0.6 || predictor.opts.Confidence != 0.4 {
		t.Errorf("Unexpected predict options: %+v", predictor.opts)
	}
}
