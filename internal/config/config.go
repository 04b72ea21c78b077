package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the bot, the media pipeline and the admin API.
type Config struct {
	TelegramToken string
	AdminUsername string
	AdminChatID   int64

	DatabaseURL   string
	HTTPAddr      string
	AdminAPIToken string

	MessagesPath       string
	SupportedLanguages []string

	UploadsDir    string
	AnimationsDir string
	PresetsDir    string
	CropSize      int

	MaxVideoNoteDuration time.Duration
	CleanupUserData      bool
	CleanupAnimations    bool

	PythonBin             string
	InferenceScript       string
	VoiceConversionScript string
	FFmpegBin             string
	MaxConcurrentJobs     int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string

	MetricsNamespace string
	ShutdownTimeout  time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		TelegramToken:         trimmed("TG_BOT_TOKEN"),
		AdminUsername:         strings.ReplaceAll(trimmed("ADMIN_NICKNAME"), "@", ""),
		DatabaseURL:           trimmed("DATABASE_URL"),
		HTTPAddr:              ":" + envOrDefault("PORT", "8080"),
		AdminAPIToken:         trimmed("ADMIN_API_TOKEN"),
		MessagesPath:          envOrDefault("MESSAGES_PATH", "./resources/bot_messages.json"),
		SupportedLanguages:    splitList(envOrDefault("SUPPORTED_LANGUAGES", "en,de,ru")),
		UploadsDir:            envOrDefault("UPLOADS_DIR", "./storage/uploads"),
		AnimationsDir:         envOrDefault("ANIMATIONS_DIR", "./animations"),
		PresetsDir:            envOrDefault("PRESETS_DIR", "./resources"),
		CropSize:              480,
		MaxVideoNoteDuration:  60 * time.Second,
		CleanupUserData:       true,
		CleanupAnimations:     false,
		PythonBin:             envOrDefault("PYTHON_BIN", "python3"),
		InferenceScript:       envOrDefault("INFERENCE_SCRIPT", "./LivePortrait/inference.py"),
		VoiceConversionScript: envOrDefault("VOICE_CONVERSION_SCRIPT", "./seed-vc/inference.py"),
		FFmpegBin:             envOrDefault("FFMPEG_BIN", "ffmpeg"),
		MaxConcurrentJobs:     1,
		S3Endpoint:            trimmed("S3_ENDPOINT"),
		S3AccessKey:           trimmed("S3_ACCESS_KEY"),
		S3SecretKey:           trimmed("S3_SECRET_KEY"),
		S3Bucket:              trimmed("S3_BUCKET"),
		S3Region:              trimmed("S3_REGION"),
		MetricsNamespace:      envOrDefault("METRICS_NAMESPACE", "talker"),
		ShutdownTimeout:       15 * time.Second,
	}

	var err error
	if cfg.AdminChatID, err = int64FromEnv("ADMIN_CHAT_ID", 0); err != nil {
		return Config{}, err
	}
	if cfg.CropSize, err = intFromEnv("CROP_SIZE", cfg.CropSize); err != nil {
		return Config{}, err
	}
	seconds, err := intFromEnv("MAX_DURATION", int(cfg.MaxVideoNoteDuration/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxVideoNoteDuration = time.Duration(seconds) * time.Second
	if cfg.CleanupUserData, err = boolFromEnv("CLEANUP_USER_DATA", cfg.CleanupUserData); err != nil {
		return Config{}, err
	}
	if cfg.CleanupAnimations, err = boolFromEnv("CLEANUP_ANIMATIONS", cfg.CleanupAnimations); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentJobs, err = intFromEnv("MAX_CONCURRENT_JOBS", cfg.MaxConcurrentJobs); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TG_BOT_TOKEN is not set")
	}
	if c.AdminUsername == "" {
		return fmt.Errorf("ADMIN_NICKNAME is not set")
	}
	if len(c.SupportedLanguages) == 0 {
		return fmt.Errorf("SUPPORTED_LANGUAGES must list at least one language")
	}
	if c.CropSize <= 0 {
		return fmt.Errorf("CROP_SIZE must be positive")
	}
	if c.MaxVideoNoteDuration <= 0 {
		return fmt.Errorf("MAX_DURATION must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	return nil
}

// ArchiveEnabled reports whether delivered animations are copied to S3.
func (c Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

func envOrDefault(key, fallback string) string {
	v := trimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
