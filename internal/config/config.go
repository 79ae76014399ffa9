// Package config loads the agent configuration from the environment and an
// optional YAML interview profile.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full runtime configuration of the interview agent.
type Configuration struct {
	Service       ServiceConfig
	Backend       BackendConfig
	Auth          AuthConfig
	Interview     InterviewConfig
	Media         MediaConfig
	Security      SecurityConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener addresses and the service identity.
type ServiceConfig struct {
	Principal   string
	ControlAddr string
	MetricsAddr string
	GRPCPort    string
}

// BackendConfig points the agent at the Ascend REST API.
type BackendConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// AuthConfig holds the bearer token, inline or in a file.
type AuthConfig struct {
	Token     string
	TokenFile string
}

// InterviewConfig describes which interview to run and its pacing.
type InterviewConfig struct {
	ID                string
	Type              string
	Difficulty        string
	QuestionCount     int
	AutoSubmitSeconds int
	TransitionDelay   time.Duration
	ProfileFile       string
}

// MediaConfig controls frame capture and proctoring.
type MediaConfig struct {
	FramesDir       string
	MonitorInterval time.Duration
}

// SecurityConfig controls the input-event security policy.
type SecurityConfig struct {
	Level     string
	Flags     []string
	Threshold int
	ExitDelay time.Duration
}

// STTConfig selects and tunes the speech recognizer.
type STTConfig struct {
	Provider       string
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	AudioFile      string
}

// KafkaConfig controls session event publishing.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicSession    string
	Principal       string
}

// RedisConfig controls the narration cache. An empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	NarrationTTL time.Duration
}

// ObservabilityConfig controls logging output.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load resolves configuration from environment variables and defaults.
// Invalid values fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-interview-agent")

	cfg := &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			ControlAddr: envOrDefault("CONTROL_ADDR", ":8090"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
		},
		Backend: BackendConfig{
			BaseURL:       strings.TrimRight(envOrDefault("BACKEND_BASE_URL", "http://localhost:5000/api"), "/"),
			Timeout:       envOrDefaultDuration("BACKEND_TIMEOUT", 30*time.Second),
			RetryAttempts: envOrDefaultInt("BACKEND_RETRY_ATTEMPTS", 3),
			RetryBackoff:  envOrDefaultDuration("BACKEND_RETRY_BACKOFF", 300*time.Millisecond),
		},
		Auth: AuthConfig{
			Token:     strings.TrimSpace(os.Getenv("AUTH_TOKEN")),
			TokenFile: strings.TrimSpace(os.Getenv("AUTH_TOKEN_FILE")),
		},
		Interview: InterviewConfig{
			ID:                strings.TrimSpace(os.Getenv("INTERVIEW_ID")),
			Type:              envOrDefault("INTERVIEW_TYPE", "technical"),
			Difficulty:        envOrDefault("INTERVIEW_DIFFICULTY", "medium"),
			QuestionCount:     envOrDefaultInt("INTERVIEW_QUESTION_COUNT", 5),
			AutoSubmitSeconds: envOrDefaultInt("AUTO_SUBMIT_SECONDS", 30),
			TransitionDelay:   envOrDefaultDuration("TRANSITION_DELAY", 2*time.Second),
			ProfileFile:       strings.TrimSpace(os.Getenv("INTERVIEW_PROFILE_FILE")),
		},
		Media: MediaConfig{
			FramesDir:       strings.TrimSpace(os.Getenv("MEDIA_FRAMES_DIR")),
			MonitorInterval: envOrDefaultDuration("MONITOR_INTERVAL", 5*time.Second),
		},
		Security: SecurityConfig{
			Level:     envOrDefault("SECURITY_LEVEL", "standard"),
			Flags:     envList("SECURITY_FLAGS"),
			Threshold: envOrDefaultInt("SECURITY_THRESHOLD", 3),
			ExitDelay: envOrDefaultDuration("SECURITY_EXIT_DELAY", 3*time.Second),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			AudioFile:      strings.TrimSpace(os.Getenv("STT_AUDIO_FILE")),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envList("KAFKA_BROKERS"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "interview.transcript"),
			TopicSession:    envOrDefault("KAFKA_TOPIC_SESSION", "interview.session"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Redis: RedisConfig{
			Addr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           envOrDefaultInt("REDIS_DB", 0),
			NarrationTTL: envOrDefaultDuration("NARRATION_CACHE_TTL", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
			LogFile:   strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
	}

	if cfg.Interview.QuestionCount <= 0 {
		cfg.Interview.QuestionCount = 5
	}
	if cfg.Interview.AutoSubmitSeconds <= 0 {
		cfg.Interview.AutoSubmitSeconds = 30
	}
	if cfg.Security.Threshold <= 0 {
		cfg.Security.Threshold = 3
	}
	if cfg.Backend.RetryAttempts <= 0 {
		cfg.Backend.RetryAttempts = 1
	}

	return cfg
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envOrDefaultBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
