package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"roadwatch/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level log files kept under the configured log directory.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	sugar  *zap.SugaredLogger
	logDir string
	files  []*os.File
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	l := &Logger{logDir: config.LogDirectory}

	infoFile := l.openLogFile(InfoFile)
	warningFile := l.openLogFile(WarningFile)
	errorFile := l.openLogFile(ErrorFile)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), between(zapcore.InfoLevel, zapcore.WarnLevel)),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), between(zapcore.ErrorLevel, zapcore.FatalLevel)),
		zapcore.NewCore(encoder, zapcore.AddSync(infoFile), between(zapcore.InfoLevel, zapcore.InfoLevel)),
		zapcore.NewCore(encoder, zapcore.AddSync(warningFile), between(zapcore.WarnLevel, zapcore.WarnLevel)),
		zapcore.NewCore(encoder, zapcore.AddSync(errorFile), between(zapcore.ErrorLevel, zapcore.FatalLevel)),
	)

	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return l
}

// NewNop returns a Logger that discards everything. Meant for tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func between(lo, hi zapcore.Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool {
		return l >= lo && l <= hi
	}
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	path := filepath.Join(l.logDir, filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", path, err)
	}
	l.files = append(l.files, file)
	return file
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Dir returns the directory holding the level files.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	switch fileName {
	case InfoFile, WarningFile, ErrorFile:
	default:
		return fmt.Errorf("unknown log file %q", fileName)
	}
	if l.logDir == "" {
		return nil
	}
	if err := os.Truncate(filepath.Join(l.logDir, fileName), 0); err != nil {
		l.Error("Error truncating %s: %v", fileName, err)
		return err
	}

	l.Info("File %s has been cleared.", fileName)
	return nil
}

// Close flushes buffered entries and closes the level files.
func (l *Logger) Close() {
	_ = l.sugar.Sync()
	for _, f := range l.files {
		f.Close()
	}
}
