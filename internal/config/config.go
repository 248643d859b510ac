package config

import (
	"fmt"
	"os"
	"path/filepath"
	"roadwatch/internal/model"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port int

	TrafficModel       string
	TrafficLabels      string
	DrowsinessModel    string
	DrowsinessLabels   string
	DefaultImage       string
	DefaultDetectImage string

	WebcamPath      string
	SaveDirectory   string // Cleared before every stored-video run
	UploadDirectory string
	DatabasePath    string
	LogDirectory    string
	StaticDirectory string

	Confidence     float64
	IoUThreshold   float64
	InputSize      int
	FrameWidth     int // Live frames are resized to FrameWidth x FrameWidth*9/16
	VideoCodec     string
	MaxUploadSize  int64
	YouTubeQuality string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	return &Config{
		Host:               getEnv("HOST", "0.0.0.0"),
		Port:               getEnvAsInt("PORT", 8501),
		TrafficModel:       getEnv("TRAFFIC_MODEL", filepath.Join("weights", "traffic_sign.onnx")),
		TrafficLabels:      getEnv("TRAFFIC_LABELS", filepath.Join("weights", "traffic_sign.yaml")),
		DrowsinessModel:    getEnv("DROWSINESS_MODEL", filepath.Join("weights", "drowsiness.onnx")),
		DrowsinessLabels:   getEnv("DROWSINESS_LABELS", filepath.Join("weights", "drowsiness.yaml")),
		DefaultImage:       getEnv("DEFAULT_IMAGE", filepath.Join("images", "default.jpg")),
		DefaultDetectImage: getEnv("DEFAULT_DETECT_IMAGE", filepath.Join("images", "default_detected.jpg")),
		WebcamPath:         getEnv("WEBCAM_PATH", "0"),
		SaveDirectory:      getEnv("SAVE_DIR", "save"),
		UploadDirectory:    getEnv("UPLOAD_DIR", os.TempDir()),
		DatabasePath:       getEnv("DB_PATH", filepath.Join("data", "runs.db")),
		LogDirectory:       getEnv("LOG_DIR", "logs"),
		StaticDirectory:    getEnv("STATIC_DIR", "static"),
		Confidence:         getEnvAsFloat("CONFIDENCE", 0.25),
		IoUThreshold:       getEnvAsFloat("IOU_THRESHOLD", 0.45),
		InputSize:          getEnvAsInt("INPUT_SIZE", 640),
		FrameWidth:         getEnvAsInt("FRAME_WIDTH", 720),
		VideoCodec:         getEnv("VIDEO_CODEC", "mp4v"),
		MaxUploadSize:      getEnvAsInt64("MAX_UPLOAD_MB", 200) << 20,
		YouTubeQuality:     getEnv("YOUTUBE_QUALITY", "720p"),
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FrameHeight keeps live frames at 16:9.
func (c *Config) FrameHeight() int {
	return int(float64(c.FrameWidth) * 9 / 16)
}

// ModelFiles returns the weights and class-name files used for a task.
func (c *Config) ModelFiles(task model.Task) (weights, labels string, err error) {
	switch task {
	case model.TaskTrafficSign:
		return c.TrafficModel, c.TrafficLabels, nil
	case model.TaskDrowsiness:
		return c.DrowsinessModel, c.DrowsinessLabels, nil
	default:
		return "", "", fmt.Errorf("%w: %q", model.ErrUnknownTask, task)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
