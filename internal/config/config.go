package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   string
	LogFile    string

	// PhotoPath is the root directory of the local asset store.
	PhotoPath string
	// PhotoLocalOnly disables direct cloud upload on the write path. Photos are
	// kept locally until the next reconcile.
	PhotoLocalOnly bool
	SyncInterval   time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	OpenRouterAPIKey string
	OpenRouterURL    string
	ClaudeAPIKey     string
	OllamaHost       string

	VisionCandidates     []string
	TextCandidates       []string
	InferenceMaxAttempts int
	InferenceTimeout     time.Duration
	// InferenceCacheSize bounds the label result cache; 0 disables it.
	InferenceCacheSize int
	InferenceCacheTTL  time.Duration
}

var defaults = map[string]any{
	"LISTEN_ADDR":            ":8080",
	"DB_PATH":                "/data/pantrysync.db",
	"LOG_LEVEL":              "info",
	"LOG_FILE":               "",
	"PHOTO_LOCAL_PATH":       "/data/photos",
	"PHOTO_LOCAL_ONLY":       false,
	"SYNC_INTERVAL":          "0s",
	"S3_BUCKET":              "",
	"S3_REGION":              "us-east-1",
	"S3_ENDPOINT":            "",
	"S3_ACCESS_KEY":          "",
	"S3_SECRET_KEY":          "",
	"S3_PUBLIC_URL":          "",
	"OPENROUTER_API_KEY":     "",
	"OPENROUTER_URL":         "https://openrouter.ai/api/v1/chat/completions",
	"CLAUDE_API_KEY":         "",
	"OLLAMA_HOST":            "http://localhost:11434",
	"VISION_CANDIDATES":      "google/gemini-2.0-flash-001,openai/gpt-4o-mini,ollama:moondream",
	"TEXT_CANDIDATES":        "meta-llama/llama-3.3-70b-instruct,google/gemini-2.0-flash-001",
	"INFERENCE_MAX_ATTEMPTS": 3,
	"INFERENCE_TIMEOUT":      "60s",
	"INFERENCE_CACHE_SIZE":   256,
	"INFERENCE_CACHE_TTL":    "10m",
}

// Load reads defaults, then the optional config file at path, then the
// environment. Environment variables always win.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	syncInterval, err := parseDuration(v, "SYNC_INTERVAL")
	if err != nil {
		return nil, err
	}
	inferenceTimeout, err := parseDuration(v, "INFERENCE_TIMEOUT")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration(v, "INFERENCE_CACHE_TTL")
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenAddr:           v.GetString("LISTEN_ADDR"),
		DBPath:               v.GetString("DB_PATH"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFile:              v.GetString("LOG_FILE"),
		PhotoPath:            v.GetString("PHOTO_LOCAL_PATH"),
		PhotoLocalOnly:       v.GetBool("PHOTO_LOCAL_ONLY"),
		SyncInterval:         syncInterval,
		S3Bucket:             v.GetString("S3_BUCKET"),
		S3Region:             v.GetString("S3_REGION"),
		S3Endpoint:           v.GetString("S3_ENDPOINT"),
		S3AccessKey:          v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:          v.GetString("S3_SECRET_KEY"),
		S3PublicURL:          v.GetString("S3_PUBLIC_URL"),
		OpenRouterAPIKey:     v.GetString("OPENROUTER_API_KEY"),
		OpenRouterURL:        v.GetString("OPENROUTER_URL"),
		ClaudeAPIKey:         v.GetString("CLAUDE_API_KEY"),
		OllamaHost:           v.GetString("OLLAMA_HOST"),
		VisionCandidates:     splitList(v.GetString("VISION_CANDIDATES")),
		TextCandidates:       splitList(v.GetString("TEXT_CANDIDATES")),
		InferenceMaxAttempts: v.GetInt("INFERENCE_MAX_ATTEMPTS"),
		InferenceTimeout:     inferenceTimeout,
		InferenceCacheSize:   v.GetInt("INFERENCE_CACHE_SIZE"),
		InferenceCacheTTL:    cacheTTL,
	}, nil
}

// RemoteEnabled reports whether an object store bucket is configured.
func (c *Config) RemoteEnabled() bool {
	return c.S3Bucket != ""
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
