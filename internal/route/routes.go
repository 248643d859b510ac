package route

import (
	"net/http"
	"os"
	"path/filepath"
	"roadwatch/internal/config"
	"roadwatch/internal/handler"
	"roadwatch/internal/logger"
	"roadwatch/internal/middleware"
	"roadwatch/internal/repository"
	"roadwatch/internal/service"
	"roadwatch/internal/service/websocket"
)

// Services are the long-lived components the handlers are built from.
type Services struct {
	Manager    *service.Manager
	Hub        *websocket.HubService
	Detector   handler.ImageDetector
	Loader     service.PredictorLoader
	Processor  handler.VideoProcessor
	RunRepo    repository.RunRepository
	ObjectRepo repository.ObjectRepository
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the session middleware.
func SetupRoutes(s Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Sidebar and session state
	mux.HandleFunc("/api/options", handler.OptionsHandler(cfg, logger))
	mux.HandleFunc("/api/session", handler.SessionHandler(s.Manager, logger))

	// Single-shot detection
	mux.HandleFunc("/api/detect/image", handler.DetectImageHandler(s.Detector, s.Manager, cfg, logger))
	mux.HandleFunc("/api/detect/video", handler.DetectVideoHandler(s.Loader, s.Processor, s.Manager, cfg, logger))
	mux.HandleFunc("/api/video", handler.VideoFileHandler(s.Processor, logger))
	mux.HandleFunc("/api/default/image", handler.DefaultImageHandler(cfg.DefaultImage, logger))
	mux.HandleFunc("/api/default/detected", handler.DefaultImageHandler(cfg.DefaultDetectImage, logger))

	// Live sources
	mux.HandleFunc("/api/stream/start", handler.StartStreamHandler(s.Manager, cfg, logger))
	mux.HandleFunc("/api/stream/stop", handler.StopStreamHandler(s.Manager, logger))
	mux.HandleFunc("/api/stream/mjpeg", handler.MJPEGHandler(s.Manager))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(s.Hub, logger))

	// Run history
	if s.RunRepo != nil {
		mux.HandleFunc("/api/runs", handler.GetRunsHandler(logger, s.RunRepo, s.ObjectRepo))
		mux.HandleFunc("/api/runs/clear", handler.ClearRunsHandler(logger, s.RunRepo))
	}

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file))
	}

	// Automatic HTML handler mapping for example: /runs -> /static/runs.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	// Apply middleware
	return middleware.SessionMiddleware(mux)
}
