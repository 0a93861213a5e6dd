// Package config loads streamscribe settings from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Job store backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreSurrealDB = "surrealdb"
)

// DefaultMaxUploadBytes caps uploaded audio at 50MB.
const DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

// Config holds all configuration values.
type Config struct {
	// Working directories
	TempDir   string `yaml:"temp_dir"`
	UploadDir string `yaml:"upload_dir"`
	ResultDir string `yaml:"result_dir"`

	// External tools
	YtDLPath   string `yaml:"ytdl_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Speech recognition
	SpeechEndpoint     string        `yaml:"speech_endpoint"`
	SpeechAPIKey       string        `yaml:"speech_api_key"`
	SpeechLanguage     string        `yaml:"speech_language"`
	EnergyThreshold    float64       `yaml:"energy_threshold"`
	PauseThreshold     time.Duration `yaml:"pause_threshold"`
	SpeechRatePerSec   float64       `yaml:"speech_rate_per_sec"`
	SegmentConcurrency int           `yaml:"segment_concurrency"`

	// Job service
	ServerPort     string `yaml:"server_port"`
	ServerURL      string `yaml:"server_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	// Job persistence
	JobStore   string `yaml:"job_store"`
	SQLitePath string `yaml:"sqlite_path"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
	RawLevel string     `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		TempDir:   "temp_audio",
		UploadDir: "uploads",
		ResultDir: "results",

		YtDLPath:   "yt-dlp",
		FFmpegPath: "ffmpeg",

		SpeechEndpoint:     "https://speech.googleapis.com/v1/speech:recognize",
		SpeechLanguage:     "en-US",
		EnergyThreshold:    300,
		PauseThreshold:     800 * time.Millisecond,
		SpeechRatePerSec:   5,
		SegmentConcurrency: 4,

		ServerPort:     "5000",
		ServerURL:      "http://localhost:5000",
		MaxUploadBytes: DefaultMaxUploadBytes,

		JobStore:   StoreMemory,
		SQLitePath: "streamscribe.sqlite",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "streamscribe",
		SurrealDBDatabase:  "jobs",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LogFile:  "/tmp/streamscribe.log",
		LogLevel: slog.LevelInfo,
		RawLevel: "INFO",
	}
}

// Load reads configuration: defaults, then the YAML file named by
// STREAMSCRIBE_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("STREAMSCRIBE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.LogLevel = parseLogLevel(cfg.RawLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays values present in a YAML file onto cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.TempDir = getEnv("STREAMSCRIBE_TEMP_DIR", c.TempDir)
	c.UploadDir = getEnv("STREAMSCRIBE_UPLOAD_DIR", c.UploadDir)
	c.ResultDir = getEnv("STREAMSCRIBE_RESULT_DIR", c.ResultDir)

	c.YtDLPath = getEnv("STREAMSCRIBE_YTDL_PATH", c.YtDLPath)
	c.FFmpegPath = getEnv("STREAMSCRIBE_FFMPEG_PATH", c.FFmpegPath)

	c.SpeechEndpoint = getEnv("STREAMSCRIBE_SPEECH_ENDPOINT", c.SpeechEndpoint)
	c.SpeechAPIKey = getEnv("GOOGLE_SPEECH_API_KEY", c.SpeechAPIKey)
	c.SpeechLanguage = getEnv("STREAMSCRIBE_SPEECH_LANGUAGE", c.SpeechLanguage)
	c.EnergyThreshold = getEnvFloat("STREAMSCRIBE_ENERGY_THRESHOLD", c.EnergyThreshold)
	c.PauseThreshold = getEnvDuration("STREAMSCRIBE_PAUSE_THRESHOLD", c.PauseThreshold)
	c.SpeechRatePerSec = getEnvFloat("STREAMSCRIBE_SPEECH_RATE", c.SpeechRatePerSec)
	c.SegmentConcurrency = getEnvInt("STREAMSCRIBE_SEGMENT_CONCURRENCY", c.SegmentConcurrency)

	c.ServerPort = getEnv("STREAMSCRIBE_SERVER_PORT", c.ServerPort)
	c.ServerURL = getEnv("STREAMSCRIBE_SERVER_URL", c.ServerURL)
	c.MaxUploadBytes = int64(getEnvInt("STREAMSCRIBE_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))

	c.JobStore = getEnv("STREAMSCRIBE_JOB_STORE", c.JobStore)
	c.SQLitePath = getEnv("STREAMSCRIBE_SQLITE_PATH", c.SQLitePath)

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.LogFile = getEnv("STREAMSCRIBE_LOG_FILE", c.LogFile)
	c.RawLevel = getEnv("STREAMSCRIBE_LOG_LEVEL", c.RawLevel)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.JobStore {
	case StoreMemory, StoreSQLite, StoreSurrealDB:
	default:
		return fmt.Errorf("unknown job store %q (want %s, %s or %s)", c.JobStore, StoreMemory, StoreSQLite, StoreSurrealDB)
	}
	if c.SegmentConcurrency <= 0 {
		return fmt.Errorf("segment concurrency must be positive, got %d", c.SegmentConcurrency)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.PauseThreshold <= 0 {
		return fmt.Errorf("pause threshold must be positive, got %s", c.PauseThreshold)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("ignoring invalid number setting", "key", key, "value", val)
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
