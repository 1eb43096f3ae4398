package logger

import (
	"io"
	"os"
)

// FileConfig holds log file rotation settings
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// Config holds the configuration for the logger
type Config struct {
	Level      LogLevel
	Format     OutputFormat
	Output     io.Writer
	Subsystem  string
	FileConfig *FileConfig
}

// DefaultConfig returns a default configuration suitable for CLI use
func DefaultConfig() *Config {
	return &Config{
		Level:  InfoLevel,
		Format: DefaultFormat,
		Output: os.Stderr,
	}
}

// TestConfig returns a configuration that discards all output
func TestConfig() *Config {
	return &Config{
		Level:  ErrorLevel,
		Format: DefaultFormat,
		Output: io.Discard,
	}
}
