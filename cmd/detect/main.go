package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"roadwatch/internal/config"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/service/ai"
	"strings"
)

func main() {
	cfg := config.Load()

	task := flag.String("task", string(model.TaskTrafficSign), `Detection task ("Traffic Sign" or "Drowsiness Detection")`)
	imagePath := flag.String("image", cfg.DefaultImage, "Image to run detection on")
	outPath := flag.String("out", "", "Annotated output (default: <image>_detected.jpg)")
	confidence := flag.Float64("conf", cfg.Confidence, "Confidence threshold")
	flag.Parse()

	if err := run(cfg, *task, *imagePath, *outPath, *confidence); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, task, imagePath, outPath string, confidence float64) error {
	t, err := model.ParseTask(task)
	if err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	if outPath == "" {
		ext := filepath.Ext(imagePath)
		outPath = strings.TrimSuffix(imagePath, ext) + "_detected.jpg"
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	loader := ai.NewLoader(cfg, logger.NewNop())
	defer loader.Close()

	service := ai.NewDetectorService(loader, logger.NewNop())
	result, err := service.DetectImage(t, data, ai.PredictOptions{Confidence: confidence, IoU: cfg.IoUThreshold})
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if err := os.WriteFile(outPath, result.Annotated, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	fmt.Printf("Detected %d objects in %s (%dx%d)\n", len(result.Detections), imagePath, result.Width, result.Height)
	for _, d := range result.Detections {
		fmt.Printf("   - %s\n", ai.Caption(d))
	}
	fmt.Printf("Annotated image written to %s\n", outPath)
	return nil
}
