package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Download  DownloadConfig  `mapstructure:"download"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir     string        `mapstructure:"base_dir"`
	YTDLPBinary string        `mapstructure:"ytdlp_binary"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// VideosDir is where finished media files land
func (c *DownloadConfig) VideosDir() string {
	return filepath.Join(c.BaseDir, "videos")
}

// ThumbnailsDir is where side-fetched thumbnails land
func (c *DownloadConfig) ThumbnailsDir() string {
	return filepath.Join(c.BaseDir, "thumbnails")
}

// LogsDir holds the dated category log files
func (c *DownloadConfig) LogsDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// RegistryPath is the JSON ledger of finished downloads
func (c *DownloadConfig) RegistryPath() string {
	return filepath.Join(c.BaseDir, "downloads.json")
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
	AutoStart       bool          `mapstructure:"auto_start"`
}

// ExtractorConfig contains metadata extraction configuration
type ExtractorConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RedirectTimeout time.Duration `mapstructure:"redirect_timeout"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			BaseDir:     "$HOME/Downloads/khytool",
			YTDLPBinary: "yt-dlp",
			MaxRetries:  3,
			RetryDelay:  10 * time.Second,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/Downloads/khytool/queue.db",
			CheckInterval:   5 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
			AutoStart:       true,
		},
		Extractor: ExtractorConfig{
			RequestTimeout:  20 * time.Second,
			RedirectTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
