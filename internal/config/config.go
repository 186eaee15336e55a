package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/autovid/autovid/internal/models"
	"github.com/joho/godotenv"
)

// Format describes the output geometry for one video format.
type Format struct {
	Width  int
	Height int
	FPS    int
	// ChunkSec is the target spoken length of one script chunk.
	ChunkSec int
	Bitrate  string
}

// Formats is the target format table. Normalization and the base-clip
// renderer must produce exactly these dimensions and frame rates.
var Formats = map[models.VideoFormat]Format{
	models.FormatLong:   {Width: 1920, Height: 1080, FPS: 25, ChunkSec: 8, Bitrate: "10M"},
	models.FormatShorts: {Width: 1080, Height: 1920, FPS: 25, ChunkSec: 6, Bitrate: "10M"},
}

// FormatFor returns the format table entry, defaulting to long.
func FormatFor(f models.VideoFormat) Format {
	if fmtCfg, ok := Formats[f]; ok {
		return fmtCfg
	}
	return Formats[models.FormatLong]
}

// Animation holds the tuning for the remote scene-animation sub-pipeline.
type Animation struct {
	Enabled bool

	// EndpointID is the runtime identifier the animation service host is
	// derived from. "unknown" or empty is a configuration error for any
	// stage that needs the service.
	EndpointID string

	// Selection strategy: "first_n", "every_nth" or "custom".
	Strategy        string
	FirstN          int
	EveryNth        int
	CustomScenes    []int
	MaxScenesShorts int

	// Part planning durations, in seconds.
	TargetPartSec float64
	MaxPartSec    float64
	OverlapSec    float64

	// Prompt settings.
	UseOriginalPrompts bool
	UniversalPrompt    string
	AnimationSuffix    string
	NegativePrompt     string
	BaseSeed           int

	// Poll interval for remote job status and the per-job wait ceiling.
	PollIntervalSec int
	JobTimeoutSec   int
	// Overall budget for all remote jobs of a project.
	OverallWaitSec int
}

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string

	// Database
	DatabaseURL string

	// Redis (work queues + readiness/idempotency flags)
	RedisURL string

	// Filesystem asset tree root
	AssetsDir string

	// OpenAI (script, metadata, chunk prompts)
	OpenAIKey   string
	ScriptModel string

	// Still-image generation: Flux service preferred, Gemini fallback
	FluxAPIURL string
	FluxAPIKey string
	GeminiKey  string

	// ElevenLabs voiceover
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// CDN delivery
	CDNAPIURL string

	// Animation sub-pipeline
	Animation Animation

	// Worker
	MaxConcurrentJobs int
	RenderConcurrency int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		AssetsDir:          getEnv("ASSETS_DIR", "assets"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		ScriptModel:        getEnv("SCRIPT_MODEL", "gpt-4o-mini"),
		FluxAPIURL:         getEnv("FLUX_API_URL", ""),
		FluxAPIKey:         getEnv("FLUX_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		CDNAPIURL:          getEnv("CDN_API_URL", ""),
		Animation: Animation{
			Enabled:            getEnvBool("ANIMATION_ENABLED", true),
			EndpointID:         getEnv("RUNPOD_LTX_ID", ""),
			Strategy:           getEnv("ANIMATION_STRATEGY", "first_n"),
			FirstN:             getEnvInt("ANIMATION_FIRST_N", 5),
			EveryNth:           getEnvInt("ANIMATION_EVERY_NTH", 2),
			CustomScenes:       getEnvIntList("ANIMATION_SCENES", nil),
			MaxScenesShorts:    getEnvInt("ANIMATION_MAX_SCENES_SHORTS", 3),
			TargetPartSec:      getEnvFloat("ANIMATION_TARGET_PART_SEC", 4.0),
			MaxPartSec:         getEnvFloat("ANIMATION_MAX_PART_SEC", 5.0),
			OverlapSec:         getEnvFloat("ANIMATION_OVERLAP_SEC", 0.2),
			UseOriginalPrompts: getEnvBool("ANIMATION_USE_ORIGINAL_PROMPTS", true),
			UniversalPrompt:    getEnv("ANIMATION_UNIVERSAL_PROMPT", "Add smooth, cinematic animation to this image with gentle camera movement and natural motion"),
			AnimationSuffix:    getEnv("ANIMATION_STYLE_SUFFIX", ", smooth cinematic movement, professional video animation"),
			NegativePrompt:     getEnv("ANIMATION_NEGATIVE_PROMPT", "worst quality, inconsistent motion, blurry, jittery, distorted"),
			BaseSeed:           getEnvInt("ANIMATION_SEED", 42),
			PollIntervalSec:    getEnvInt("ANIMATION_POLL_INTERVAL_SEC", 35),
			JobTimeoutSec:      getEnvInt("ANIMATION_JOB_TIMEOUT_SEC", 600),
			OverallWaitSec:     getEnvInt("ANIMATION_OVERALL_WAIT_SEC", 900),
		},
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 3),
		RenderConcurrency: getEnvInt("RENDER_CONCURRENCY", 4),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for voiceover")
	}

	// At least one image provider must be configured
	if cfg.FluxAPIURL == "" && cfg.GeminiKey == "" {
		return nil, fmt.Errorf("either FLUX_API_URL or GEMINI_API_KEY is required for image generation")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, i)
	}
	return out
}
