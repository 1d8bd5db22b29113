package domain

import "time"

// Fetcher backends
const (
	BackendLibrary = "library" // go-ytdlp
	BackendBinary  = "binary"  // yt-dlp executable with a per-day process log
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Binary string `mapstructure:"binary"` // vgrab-server started by the CLI; empty searches next to the CLI and PATH
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	Dir            string `mapstructure:"dir"`
	DefaultQuality string `mapstructure:"default_quality"`
	HomePage       string `mapstructure:"home_page"`
}

// FetcherConfig selects and tunes the fetch backend
type FetcherConfig struct {
	Backend          string        `mapstructure:"backend"` // library, binary
	YTDLPBinary      string        `mapstructure:"ytdlp_binary"`
	CookieFile       string        `mapstructure:"cookie_file"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	LogsDir          string        `mapstructure:"logs_dir"`
}

// DatabaseConfig contains job history storage configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category log files
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			Dir:            "$HOME/Downloads/vgrab",
			DefaultQuality: string(QualityBest),
			HomePage:       DefaultHomePage,
		},
		Fetcher: FetcherConfig{
			Backend:          BackendLibrary,
			YTDLPBinary:      "yt-dlp",
			CookieFile:       "",
			ProgressInterval: 500 * time.Millisecond,
			LogsDir:          "$HOME/.vgrab/logs",
		},
		Database: DatabaseConfig{
			Path: "$HOME/.vgrab/jobs.db",
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   true,
			Method:  "osascript",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.vgrab/logs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
