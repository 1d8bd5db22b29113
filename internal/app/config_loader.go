package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/yourusername/vgrab-go/internal/domain"
)

// EnvPrefix is the prefix of environment overrides, e.g. VGRAB_SERVER_PORT
const EnvPrefix = "VGRAB"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.vgrab")
		v.AddConfigPath("/etc/vgrab")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configKeys flattens the config into viper keys
func configKeys(c *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host":               c.Server.Host,
		"server.port":               c.Server.Port,
		"server.binary":             c.Server.Binary,
		"download.dir":              c.Download.Dir,
		"download.default_quality":  c.Download.DefaultQuality,
		"download.home_page":        c.Download.HomePage,
		"fetcher.backend":           c.Fetcher.Backend,
		"fetcher.ytdlp_binary":      c.Fetcher.YTDLPBinary,
		"fetcher.cookie_file":       c.Fetcher.CookieFile,
		"fetcher.progress_interval": c.Fetcher.ProgressInterval.String(),
		"fetcher.logs_dir":          c.Fetcher.LogsDir,
		"database.path":             c.Database.Path,
		"notification.enabled":      c.Notification.Enabled,
		"notification.sound":        c.Notification.Sound,
		"notification.method":       c.Notification.Method,
		"logging.level":             c.Logging.Level,
		"logging.format":            c.Logging.Format,
		"logging.output_path":       c.Logging.OutputPath,
		"logging.logs_dir":          c.Logging.LogsDir,
		"metrics.enabled":           c.Metrics.Enabled,
		"metrics.path":              c.Metrics.Path,
	}
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, c *domain.Config) {
	for key, value := range configKeys(c) {
		v.SetDefault(key, value)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Server.Binary = expandPath(config.Server.Binary)
	config.Download.Dir = expandPath(config.Download.Dir)
	config.Fetcher.CookieFile = expandPath(config.Fetcher.CookieFile)
	config.Fetcher.LogsDir = expandPath(config.Fetcher.LogsDir)
	config.Database.Path = expandPath(config.Database.Path)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.Dir == "" {
		return fmt.Errorf("download directory not configured")
	}

	if _, err := domain.ParseQuality(config.Download.DefaultQuality); err != nil {
		return fmt.Errorf("default quality: %w", err)
	}

	switch config.Fetcher.Backend {
	case domain.BackendLibrary, domain.BackendBinary:
	default:
		return fmt.Errorf("unknown fetcher backend: %q", config.Fetcher.Backend)
	}

	if config.Fetcher.Backend == domain.BackendBinary && config.Fetcher.YTDLPBinary == "" {
		return fmt.Errorf("yt-dlp binary not configured")
	}

	if config.Fetcher.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}

	if config.Database.Path == "" {
		return fmt.Errorf("database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configKeys(config) {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
