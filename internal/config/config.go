package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

type Config struct {
	APIPort  string
	LogLevel string

	PDFServiceURL            string
	PDFServiceTimeoutSeconds int
	PDFServiceRetryAttempts  int
	PDFServiceTrailingSlash  bool
	PDFServiceURIScan        bool
	PDFServiceMaxResultMB    int

	AnnotationColor   string
	AnnotationType    string
	RedactionFill     string
	WatermarkOpacity  float64
	WatermarkRotation float64
	WatermarkFontSize int

	TapRedactionWidth  float64
	TapRedactionHeight float64

	BreakerEnabled          bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenSeconds      int
	BreakerHalfOpenMaxCalls int

	StoragePath            string
	MaxUploadMB            int
	DownloadTimeoutSeconds int
	// The API opens documents by reference only from the storage directory,
	// DocumentRoots and DocumentHosts. The markup CLI is not restricted.
	DocumentRoots []string
	DocumentHosts []string

	// Optional backends; empty disables them.
	PostgresDSN string
	NATSURL     string
	NATSSubject string
	NATSGroup   string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIQueueWaitMs    int

	// Sessions untouched for this long are dropped; 0 keeps them forever.
	SessionIdleMinutes int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PDFServiceURL:            mustEnv("PDFSERVICE_URL", "http://localhost:5000"),
		PDFServiceTimeoutSeconds: mustEnvInt("PDFSERVICE_TIMEOUT_SECONDS", 60),
		PDFServiceRetryAttempts:  mustEnvInt("PDFSERVICE_RETRY_ATTEMPTS", 2),
		PDFServiceTrailingSlash:  mustEnvBool("PDFSERVICE_TRAILING_SLASH", false),
		PDFServiceURIScan:        mustEnvBool("PDFSERVICE_URI_SCAN", false),
		PDFServiceMaxResultMB:    mustEnvInt("PDFSERVICE_MAX_RESULT_MB", 200),

		AnnotationColor:   mustEnv("ANNOTATION_COLOR", "#FFEB3B"),
		AnnotationType:    mustEnv("ANNOTATION_TYPE", "text"),
		RedactionFill:     mustEnv("REDACTION_FILL", "#000000"),
		WatermarkOpacity:  mustEnvFloat("WATERMARK_OPACITY", 0.3),
		WatermarkRotation: mustEnvFloat("WATERMARK_ROTATION", 45),
		WatermarkFontSize: mustEnvInt("WATERMARK_FONT_SIZE", 48),

		TapRedactionWidth:  mustEnvFloat("TAP_REDACTION_WIDTH", 100),
		TapRedactionHeight: mustEnvFloat("TAP_REDACTION_HEIGHT", 30),

		BreakerEnabled:          mustEnvBool("PDFSERVICE_BREAKER_ENABLED", true),
		BreakerMinRequests:      mustEnvInt("PDFSERVICE_BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:     mustEnvFloat("PDFSERVICE_BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenSeconds:      mustEnvInt("PDFSERVICE_BREAKER_OPEN_SECONDS", 30),
		BreakerHalfOpenMaxCalls: mustEnvInt("PDFSERVICE_BREAKER_HALF_OPEN_MAX_CALLS", 1),

		StoragePath:            mustEnv("STORAGE_PATH", "./data/documents"),
		MaxUploadMB:            mustEnvInt("MAX_UPLOAD_MB", 100),
		DownloadTimeoutSeconds: mustEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 60),
		DocumentRoots:          mustEnvList("DOCUMENT_ROOTS"),
		DocumentHosts:          mustEnvList("DOCUMENT_HOSTS"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),
		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "pdfmarkup.document.processed"),
		NATSGroup:   mustEnv("NATS_GROUP", "pdfmarkup-workers"),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIQueueWaitMs:    mustEnvInt("API_QUEUE_WAIT_MS", 250),

		SessionIdleMinutes: mustEnvInt("SESSION_IDLE_MINUTES", 60),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// Resilience maps the service retry and breaker settings onto the executor
// config.
func (c Config) Resilience() resilience.Config {
	out := resilience.DefaultConfig()
	if c.PDFServiceRetryAttempts > 0 {
		out.RetryMaxAttempts = c.PDFServiceRetryAttempts
	}
	out.BreakerEnabled = c.BreakerEnabled
	if c.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(c.BreakerMinRequests)
	}
	out.BreakerFailureRatio = c.BreakerFailureRatio
	if c.BreakerOpenSeconds > 0 {
		out.BreakerOpenTimeout = time.Duration(c.BreakerOpenSeconds) * time.Second
	}
	if c.BreakerHalfOpenMaxCalls > 0 {
		out.BreakerHalfOpenMaxCalls = uint32(c.BreakerHalfOpenMaxCalls)
	}
	return out
}

func (c Config) PDFServiceTimeout() time.Duration {
	if c.PDFServiceTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PDFServiceTimeoutSeconds) * time.Second
}

func (c Config) DownloadTimeout() time.Duration {
	if c.DownloadTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

func (c Config) SessionIdleTTL() time.Duration {
	if c.SessionIdleMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// mustEnvList splits a comma separated variable, dropping empty items.
func mustEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
