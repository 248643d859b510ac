package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/service"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"
	"roadwatch/internal/service/video"
	"strconv"
	"strings"
)

// Allowed upload extensions, matching the sidebar uploaders.
var (
	ImageExtensions = []string{"jpg", "jpeg", "png", "bmp", "webp"}
	VideoExtensions = []string{"mp4", "avi"}
)

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError reports a failed call as {"error": message, "detail": err}.
func writeError(w http.ResponseWriter, logger *logger.Logger, status int, message string, err error) {
	resp := dto.ErrorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
		if status >= http.StatusInternalServerError {
			logger.Error("%s: %v", message, err)
		} else {
			logger.Warning("%s: %v", message, err)
		}
	}
	writeJSON(w, logger, status, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var loadErr *ai.LoadError
	switch {
	case errors.As(err, &loadErr):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrUnknownTask),
		errors.Is(err, model.ErrUnknownSource),
		errors.Is(err, service.ErrNotLive),
		errors.Is(err, capture.ErrInvalidURL),
		errors.Is(err, ai.ErrImageDecode),
		errors.Is(err, video.ErrVideoOpen):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrCaptureOpen),
		errors.Is(err, capture.ErrNoStream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the user-facing message of a failed action on a source.
func messageFor(err error, source model.SourceKind) string {
	var loadErr *ai.LoadError
	switch {
	case errors.As(err, &loadErr):
		return "Unable to load model. Check the specified path: " + loadErr.Path
	case errors.Is(err, model.ErrUnknownSource), errors.Is(err, service.ErrNotLive):
		return "Please select a valid source type!"
	case errors.Is(err, ai.ErrImageDecode):
		return "Error occurred while opening the image."
	}

	switch source {
	case model.SourceVideo:
		return "Error loading video: " + err.Error()
	case model.SourceRTSP:
		return "Error loading RTSP stream: " + err.Error()
	case model.SourceYouTube:
		return "Error loading YouTube video: " + err.Error()
	case model.SourceWebcam:
		return "Error loading webcam: " + err.Error()
	default:
		return err.Error()
	}
}

// requireMethod rejects requests made with any other method.
func requireMethod(w http.ResponseWriter, r *http.Request, logger *logger.Logger, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, logger, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return false
	}
	return true
}

// hasExtension reports whether name ends with one of exts, case-insensitively.
func hasExtension(name string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// parseConfidence reads a form confidence value, falling back to def.
func parseConfidence(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return confidenceOr(v, def)
}

// confidenceOr returns v when it is a usable threshold, def otherwise.
func confidenceOr(v, def float64) float64 {
	if v > 0 && v <= 1 {
		return v
	}
	return def
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
