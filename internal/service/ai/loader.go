package ai

import (
	"fmt"
	"roadwatch/internal/config"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"sync"
)

// LoadError reports a detector that could not be opened from its weights file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Unable to load model. Check the specified path: %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader opens the detector matching a task and keeps it for later requests.
type Loader struct {
	cfg       *config.Config
	logger    *logger.Logger
	detectors map[model.Task]*Detector
	mu        sync.Mutex
}

func NewLoader(cfg *config.Config, logger *logger.Logger) *Loader {
	return &Loader{
		cfg:       cfg,
		logger:    logger,
		detectors: make(map[model.Task]*Detector),
	}
}

// Load returns the detector for the task, reading its weights on first use.
func (l *Loader) Load(task model.Task) (*Detector, error) {
	weights, labels, err := l.cfg.ModelFiles(task)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if det, ok := l.detectors[task]; ok {
		return det, nil
	}

	det, err := NewDetector(weights, labels, l.cfg.InputSize, l.logger)
	if err != nil {
		l.logger.Error("Unable to load model %s: %v", weights, err)
		return nil, &LoadError{Path: weights, Err: err}
	}
	l.detectors[task] = det
	return det, nil
}

// Close releases every loaded network.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for task, det := range l.detectors {
		if err := det.Close(); err != nil {
			l.logger.Warning("Failed to close detector for %s: %v", task, err)
		}
		delete(l.detectors, task)
	}
}
