package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"roadwatch/internal/config"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/repository"
	"roadwatch/internal/repository/sqlite"
	"roadwatch/internal/route"
	"roadwatch/internal/service"
	"roadwatch/internal/service/ai"
	"roadwatch/internal/service/capture"
	"roadwatch/internal/service/video"
	"roadwatch/internal/service/websocket"
	"syscall"
	"time"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	runRepo    repository.RunRepository
	objectRepo repository.ObjectRepository
	loader     *ai.Loader
	detector   *ai.DetectorService
	processor  *video.Processor
	hubService *websocket.HubService
	manager    *service.Manager
}

func NewApp() *App {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	a := &App{config: cfg, logger: log}

	// Run history is optional: the detector works without it.
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Warning("Run history disabled: %v", err)
	} else {
		a.db = db
		a.runRepo = sqlite.NewRunRepository(db)
		a.objectRepo = sqlite.NewObjectRepository(db)
	}

	a.loader = ai.NewLoader(cfg, log)
	a.detector = ai.NewDetectorService(a.loader, log)
	a.processor = video.NewProcessor(cfg, log)
	a.hubService = websocket.NewHubService(log)

	opener := capture.NewOpener(cfg.WebcamPath, capture.NewYouTubeResolver(cfg.YouTubeQuality), log)
	a.manager = service.NewManager(
		PredictorLoader(a.loader),
		opener,
		a.hubService,
		a.runRepo,
		a.objectRepo,
		service.LoopSettings{Width: cfg.FrameWidth, Height: cfg.FrameHeight(), IoU: cfg.IoUThreshold},
		log,
	)

	return a
}

// PredictorLoader exposes the model loader to code that only needs to predict and plot.
func PredictorLoader(loader *ai.Loader) service.PredictorLoader {
	return service.LoaderFunc(func(task model.Task) (capture.Predictor, error) {
		det, err := loader.Load(task)
		if err != nil {
			return nil, err
		}
		return det, nil
	})
}

// Run serves HTTP until SIGINT/SIGTERM, then stops every loop and releases resources.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	// Start background services
	go a.hubService.Run(ctx)

	// Setup routes
	router := route.SetupRoutes(route.Services{
		Manager:    a.manager,
		Hub:        a.hubService,
		Detector:   a.detector,
		Loader:     PredictorLoader(a.loader),
		Processor:  a.processor,
		RunRepo:    a.runRepo,
		ObjectRepo: a.objectRepo,
	}, a.config, a.logger)

	server := &http.Server{
		Addr:              a.config.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Road detection server listening on http://%s", a.config.Addr())
	a.logger.Info("Traffic sign model: %s", a.config.TrafficModel)
	a.logger.Info("Drowsiness model: %s", a.config.DrowsinessModel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	a.manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (a *App) close() {
	a.loader.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
	}
	a.logger.Close()
}
