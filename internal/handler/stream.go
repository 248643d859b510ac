package handler

import (
	"encoding/json"
	"net/http"
	"roadwatch/internal/config"
	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/middleware"
	"roadwatch/internal/model"
	"roadwatch/internal/service"
)

// StartStreamHandler starts a live source (webcam, RTSP, YouTube) for the caller's session.
// Whatever the session was running before is stopped first.
func StartStreamHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, logger, http.MethodPost) {
			return
		}

		var req dto.StartStreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		task, err := model.ParseTask(req.Task)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please select a valid task!", err)
			return
		}
		source, err := model.ParseSourceKind(req.Source)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please select a valid source type!", err)
			return
		}

		id := middleware.SessionID(r)
		err = manager.Start(id, service.StreamRequest{
			Task:       task,
			Source:     source,
			URL:        req.URL,
			Confidence: confidenceOr(req.Confidence, cfg.Confidence),
			Track:      req.Track,
		})
		if err != nil {
			writeError(w, logger, statusFor(err), messageFor(err, source), err)
			return
		}

		writeJSON(w, logger, http.StatusAccepted, manager.State(id))
	}
}

// StopStreamHandler stops the caller's running loop, if any.
func StopStreamHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, logger, http.MethodPost) {
			return
		}
		id := middleware.SessionID(r)
		manager.Stop(id)
		writeJSON(w, logger, http.StatusOK, manager.State(id))
	}
}

// MJPEGHandler streams the caller's annotated frames as multipart/x-mixed-replace.
func MJPEGHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager.MJPEG(middleware.SessionID(r)).ServeHTTP(w, r)
	}
}
