package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"roadwatch/internal/config"
	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/middleware"
	"roadwatch/internal/model"
	"roadwatch/internal/service"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"
	"roadwatch/internal/service/video"
	"strings"
)

// multipartMemory is how much of an upload is kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// ImageDetector runs a task's detector on an encoded image.
type ImageDetector interface {
	DetectImage(task model.Task, imageBytes []byte, opts ai.PredictOptions) (*ai.ImageResult, error)
}

// VideoProcessor annotates stored videos and knows where the results live.
type VideoProcessor interface {
	Process(ctx context.Context, det capture.Predictor, input string, opts ai.PredictOptions) (*video.Result, error)
	OutputDir() string
}

// DetectImageHandler accepts a multipart "image" upload and returns the annotated
// image with its detections.
func DetectImageHandler(detector ImageDetector, manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, logger, http.MethodPost) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid upload", err)
			return
		}

		task, err := model.ParseTask(r.FormValue("task"))
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please select a valid task!", err)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please choose an image", err)
			return
		}
		defer file.Close()

		if !hasExtension(header.Filename, ImageExtensions) {
			writeError(w, logger, http.StatusBadRequest, "Error occurred while opening the image.",
				fmt.Errorf("unsupported file type %q", filepath.Ext(header.Filename)))
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Error occurred while opening the image.", err)
			return
		}

		// A new detection replaces whatever the session was streaming.
		id := middleware.SessionID(r)
		manager.Stop(id)

		opts := ai.PredictOptions{
			Confidence: parseConfidence(r.FormValue("confidence"), cfg.Confidence),
			IoU:        cfg.IoUThreshold,
		}
		result, err := detector.DetectImage(task, data, opts)
		if err != nil {
			manager.Record(id, task, model.SourceImage, header.Filename, 0, nil, err)
			writeError(w, logger, statusFor(err), messageFor(err, model.SourceImage), err)
			return
		}

		tally := model.Tally{}
		tally.Add(result.Detections)
		runID := manager.Record(id, task, model.SourceImage, header.Filename, 1, tally, nil)
		logger.Info("Image %s: %d detections (%s)", header.Filename, len(result.Detections), task)

		writeJSON(w, logger, http.StatusOK, dto.ImageDetectionResult{
			Task:       task,
			Image:      base64.StdEncoding.EncodeToString(result.Annotated),
			Width:      result.Width,
			Height:     result.Height,
			Detections: result.Detections,
			RunID:      runID,
		})
	}
}

// DetectVideoHandler accepts a multipart "video" upload, annotates every frame and
// returns the URL of the browser-playable result.
func DetectVideoHandler(loader service.PredictorLoader, processor VideoProcessor, manager *service.Manager,
	cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, logger, http.MethodPost) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid upload", err)
			return
		}

		task, err := model.ParseTask(r.FormValue("task"))
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please select a valid task!", err)
			return
		}

		file, header, err := r.FormFile("video")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Please choose a video", err)
			return
		}
		defer file.Close()

		if !hasExtension(header.Filename, VideoExtensions) {
			err := fmt.Errorf("unsupported file type %q", filepath.Ext(header.Filename))
			writeError(w, logger, http.StatusBadRequest, messageFor(err, model.SourceVideo), err)
			return
		}

		id := middleware.SessionID(r)
		manager.Stop(id)

		predictor, err := loader.Load(task)
		if err != nil {
			manager.Record(id, task, model.SourceVideo, header.Filename, 0, nil, err)
			writeError(w, logger, statusFor(err), messageFor(err, model.SourceVideo), err)
			return
		}

		input, err := saveUpload(file, cfg.UploadDirectory, header.Filename)
		if err != nil {
			writeError(w, logger, http.StatusInternalServerError, messageFor(err, model.SourceVideo), err)
			return
		}
		defer os.Remove(input)

		opts := ai.PredictOptions{
			Confidence: parseConfidence(r.FormValue("confidence"), cfg.Confidence),
			IoU:        cfg.IoUThreshold,
		}
		result, err := processor.Process(r.Context(), predictor, input, opts)
		if err != nil {
			manager.Record(id, task, model.SourceVideo, header.Filename, 0, nil, err)
			writeError(w, logger, statusFor(err), messageFor(err, model.SourceVideo), err)
			return
		}

		runID := manager.Record(id, task, model.SourceVideo, header.Filename, result.Frames, result.Tally, nil)
		writeJSON(w, logger, http.StatusOK, dto.VideoDetectionResult{
			Task:     task,
			VideoURL: "/api/video?name=" + url.QueryEscape(result.Name),
			Frames:   result.Frames,
			RunID:    runID,
		})
	}
}

// saveUpload copies an upload into a fresh temporary file that keeps its extension.
func saveUpload(src io.Reader, dir, filename string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	dst, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return dst.Name(), nil
}

// VideoFileHandler serves a processed video specified via the "name" query parameter.
func VideoFileHandler(processor VideoProcessor, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Query().Get("name"))
		if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
			writeError(w, logger, http.StatusBadRequest, "Video name is required", nil)
			return
		}

		filePath := filepath.Join(processor.OutputDir(), name)
		if _, err := os.Stat(filePath); err != nil {
			writeError(w, logger, http.StatusNotFound, "Video not found", nil)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, filePath)
	}
}

// DefaultImageHandler serves one of the placeholder images shown before the first detection.
func DefaultImageHandler(path string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(path); err != nil {
			writeError(w, logger, http.StatusNotFound, "Image not found", nil)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}
}
