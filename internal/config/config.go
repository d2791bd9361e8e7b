package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Gateway    GatewayConfig
	R2         R2Config
	Replicate  ReplicateConfig
	Fal        FalConfig
	Stability  StabilityConfig
	ElevenLabs ElevenLabsConfig
	Suno       SunoConfig
	Vision     VisionConfig
	Render     RenderConfig
	Pipeline   PipelineConfig
	Quality    QualityConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	RenderPerHour   int
}

type GatewayConfig struct {
	Enabled bool
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ReplicateConfig struct {
	APIToken   string
	BaseURL    string
	ImageModel string
	VideoModel string
}

type FalConfig struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
}

type StabilityConfig struct {
	APIKey  string
	BaseURL string
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

type SunoConfig struct {
	APIKey  string
	BaseURL string
}

type VisionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RenderConfig drives the chunk planner and the media render service.
type RenderConfig struct {
	ServiceURL            string
	Timeout               int // seconds, per chunk render
	FPS                   int
	CompositionID         string
	ChunkThresholdSeconds float64
	MaxChunkSeconds       float64
	ChunkConcurrency      int
	ChunkRetries          int
}

// PipelineConfig bounds the generation phase.
type PipelineConfig struct {
	SceneConcurrency        int
	MaxProviderFallbacks    int
	MaxRegenerationAttempts int
	ImageTimeoutSeconds     int // cache download timeout for images
	MediaTimeoutSeconds     int // cache download timeout for video/audio
	WordsPerSecond          float64
}

// QualityConfig holds analyzer weights and thresholds. These are tunable
// business policy, not structural invariants; weights must sum to 100.
type QualityConfig struct {
	WeightTechnical   float64
	WeightContent     float64
	WeightCompliance  float64
	WeightComposition float64

	ApproveThreshold    float64
	ReviewThreshold     float64
	RegenerateThreshold float64

	VideoSampleFrames int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("REPLICATE_API_TOKEN")
	readSecret("FAL_API_KEY")
	readSecret("STABILITY_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("SUNO_API_KEY")
	readSecret("VISION_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("replicate.api_token", "REPLICATE_API_TOKEN")
	_ = viper.BindEnv("replicate.base_url", "REPLICATE_BASE_URL")
	_ = viper.BindEnv("replicate.image_model", "REPLICATE_IMAGE_MODEL")
	_ = viper.BindEnv("replicate.video_model", "REPLICATE_VIDEO_MODEL")
	_ = viper.BindEnv("fal.api_key", "FAL_API_KEY")
	_ = viper.BindEnv("fal.base_url", "FAL_BASE_URL")
	_ = viper.BindEnv("fal.image_model", "FAL_IMAGE_MODEL")
	_ = viper.BindEnv("fal.video_model", "FAL_VIDEO_MODEL")
	_ = viper.BindEnv("stability.api_key", "STABILITY_API_KEY")
	_ = viper.BindEnv("stability.base_url", "STABILITY_BASE_URL")
	_ = viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("elevenlabs.voice_id", "ELEVENLABS_VOICE_ID")
	_ = viper.BindEnv("elevenlabs.model_id", "ELEVENLABS_MODEL_ID")
	_ = viper.BindEnv("suno.api_key", "SUNO_API_KEY")
	_ = viper.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = viper.BindEnv("vision.api_key", "VISION_API_KEY")
	_ = viper.BindEnv("vision.base_url", "VISION_BASE_URL")
	_ = viper.BindEnv("vision.model", "VISION_MODEL")
	_ = viper.BindEnv("render.service_url", "RENDER_SERVICE_URL")
	_ = viper.BindEnv("render.timeout", "RENDER_TIMEOUT")
	_ = viper.BindEnv("render.fps", "RENDER_FPS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 10)
	viper.SetDefault("ratelimit.render_per_hour", 5)
	viper.SetDefault("gateway.enabled", false)

	// Provider defaults
	viper.SetDefault("replicate.base_url", "https://api.replicate.com")
	viper.SetDefault("replicate.image_model", "black-forest-labs/flux-schnell")
	viper.SetDefault("replicate.video_model", "minimax/video-01")
	viper.SetDefault("fal.base_url", "https://queue.fal.run")
	viper.SetDefault("fal.image_model", "fal-ai/flux/schnell")
	viper.SetDefault("fal.video_model", "fal-ai/kling-video/v1.6/standard/text-to-video")
	viper.SetDefault("stability.base_url", "https://api.stability.ai")
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.voice_id", "EXAVITQu4vr4xnSDxMaL")
	viper.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	viper.SetDefault("suno.base_url", "https://api.sunoapi.org")

	// Vision defaults
	viper.SetDefault("vision.base_url", "https://api.openai.com/v1")
	viper.SetDefault("vision.model", "gpt-4o-mini")

	// Render defaults
	viper.SetDefault("render.service_url", "http://localhost:8085")
	viper.SetDefault("render.timeout", 300)
	viper.SetDefault("render.fps", 30)
	viper.SetDefault("render.composition_id", "storyreel-main")
	viper.SetDefault("render.chunk_threshold_seconds", 50.0)
	viper.SetDefault("render.max_chunk_seconds", 50.0)
	viper.SetDefault("render.chunk_concurrency", 2)
	viper.SetDefault("render.chunk_retries", 2)

	// Pipeline defaults
	viper.SetDefault("pipeline.scene_concurrency", 4)
	viper.SetDefault("pipeline.max_provider_fallbacks", 3)
	viper.SetDefault("pipeline.max_regeneration_attempts", 2)
	viper.SetDefault("pipeline.image_timeout_seconds", 30)
	viper.SetDefault("pipeline.media_timeout_seconds", 180)
	viper.SetDefault("pipeline.words_per_second", 2.5)

	// Quality defaults are tunable policy, not structural invariants.
	viper.SetDefault("quality.weight_technical", 20.0)
	viper.SetDefault("quality.weight_content", 30.0)
	viper.SetDefault("quality.weight_compliance", 30.0)
	viper.SetDefault("quality.weight_composition", 20.0)
	viper.SetDefault("quality.approve_threshold", 85.0)
	viper.SetDefault("quality.review_threshold", 70.0)
	viper.SetDefault("quality.regenerate_threshold", 50.0)
	viper.SetDefault("quality.video_sample_frames", 3)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			RenderPerHour:   viper.GetInt("ratelimit.render_per_hour"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Replicate: ReplicateConfig{
			APIToken:   viper.GetString("replicate.api_token"),
			BaseURL:    viper.GetString("replicate.base_url"),
			ImageModel: viper.GetString("replicate.image_model"),
			VideoModel: viper.GetString("replicate.video_model"),
		},
		Fal: FalConfig{
			APIKey:     viper.GetString("fal.api_key"),
			BaseURL:    viper.GetString("fal.base_url"),
			ImageModel: viper.GetString("fal.image_model"),
			VideoModel: viper.GetString("fal.video_model"),
		},
		Stability: StabilityConfig{
			APIKey:  viper.GetString("stability.api_key"),
			BaseURL: viper.GetString("stability.base_url"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  viper.GetString("elevenlabs.api_key"),
			BaseURL: viper.GetString("elevenlabs.base_url"),
			VoiceID: viper.GetString("elevenlabs.voice_id"),
			ModelID: viper.GetString("elevenlabs.model_id"),
		},
		Suno: SunoConfig{
			APIKey:  viper.GetString("suno.api_key"),
			BaseURL: viper.GetString("suno.base_url"),
		},
		Vision: VisionConfig{
			APIKey:  viper.GetString("vision.api_key"),
			BaseURL: viper.GetString("vision.base_url"),
			Model:   viper.GetString("vision.model"),
		},
		Render: RenderConfig{
			ServiceURL:            viper.GetString("render.service_url"),
			Timeout:               viper.GetInt("render.timeout"),
			FPS:                   viper.GetInt("render.fps"),
			CompositionID:         viper.GetString("render.composition_id"),
			ChunkThresholdSeconds: viper.GetFloat64("render.chunk_threshold_seconds"),
			MaxChunkSeconds:       viper.GetFloat64("render.max_chunk_seconds"),
			ChunkConcurrency:      viper.GetInt("render.chunk_concurrency"),
			ChunkRetries:          viper.GetInt("render.chunk_retries"),
		},
		Pipeline: PipelineConfig{
			SceneConcurrency:        viper.GetInt("pipeline.scene_concurrency"),
			MaxProviderFallbacks:    viper.GetInt("pipeline.max_provider_fallbacks"),
			MaxRegenerationAttempts: viper.GetInt("pipeline.max_regeneration_attempts"),
			ImageTimeoutSeconds:     viper.GetInt("pipeline.image_timeout_seconds"),
			MediaTimeoutSeconds:     viper.GetInt("pipeline.media_timeout_seconds"),
			WordsPerSecond:          viper.GetFloat64("pipeline.words_per_second"),
		},
		Quality: QualityConfig{
			WeightTechnical:     viper.GetFloat64("quality.weight_technical"),
			WeightContent:       viper.GetFloat64("quality.weight_content"),
			WeightCompliance:    viper.GetFloat64("quality.weight_compliance"),
			WeightComposition:   viper.GetFloat64("quality.weight_composition"),
			ApproveThreshold:    viper.GetFloat64("quality.approve_threshold"),
			ReviewThreshold:     viper.GetFloat64("quality.review_threshold"),
			RegenerateThreshold: viper.GetFloat64("quality.regenerate_threshold"),
			VideoSampleFrames:   viper.GetInt("quality.video_sample_frames"),
		},
	}

	return cfg, nil
}
