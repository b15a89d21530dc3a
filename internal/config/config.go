// Package config is the ambient environment-variable loader for local runs
// and integration tests. Grounded on the teacher's config.LoadConfig
// (config/config.go): same getEnv/.env-via-godotenv shape, same
// warn-then-fail-fast validation style. Only main.go and
// internal/orchestrator import this package: main.go loads a *Config here
// and hands it to orchestrator.Run, which converts its values into the
// stage packages' own types.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tgharvester/internal/platform"
)

// Config is the ambient, env-sourced convenience struct spec.md §6.1's
// Non-goals exclude from the core itself.
type Config struct {
	AppEnv    string
	Debug     bool
	SentryDSN string

	MongoDBURI      string
	MongoDBDatabase string

	SessionNames []string
	BotTokens    map[string]string // session name -> bot token, since sessions/ holds credential files externally per spec §6.2
	ScratchChats map[string]string // session name -> scratch (self-chat) identifier

	APIID   int
	APIHash string

	Proxy platform.ProxyConfig

	SourceChannel string
	IDRangeStart  int
	IDRangeEnd    int
	TargetChannels []string

	FetchBatchSize      int
	DownloadThresholdMB float64
	ConcurrentDownloads int
	StageBatchSize      int
	CleanupOnSuccess    bool
	CleanupOnFailure    bool
	PreserveStructure   bool

	TemplateMode string
	TemplateBody string

	RetryMaxAttempts int
	RetryBase        time.Duration
	RetryMaxDelay    time.Duration
	RetryFactor      float64

	ImbalanceRatioCap float64
}

// LoadEnv loads configuration from environment variables, attempting a
// .env file first the way the teacher's LoadConfig does.
func LoadEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	idStart, idEnd, err := parseIDRange(getEnv("ID_RANGE", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ID_RANGE: %w", err)
	}

	apiID, err := strconv.Atoi(getEnv("API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_ID: %w", err)
	}

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Debug:     parseBool(getEnv("DEBUG", "false")),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),

		SessionNames: splitCSV(getEnv("SESSION_NAMES", "")),
		BotTokens:    parseKVPairs(getEnv("SESSION_BOT_TOKENS", "")),
		ScratchChats: parseKVPairs(getEnv("SESSION_SCRATCH_CHATS", "")),

		APIID:   apiID,
		APIHash: getEnv("API_HASH", ""),

		Proxy: platform.ProxyConfig{
			Scheme:   getEnv("PROXY_SCHEME", ""),
			Host:     getEnv("PROXY_HOST", ""),
			Port:     atoiDefault(getEnv("PROXY_PORT", ""), 0),
			Username: getEnv("PROXY_USERNAME", ""),
			Password: getEnv("PROXY_PASSWORD", ""),
		},

		SourceChannel:  getEnv("SOURCE_CHANNEL", ""),
		IDRangeStart:   idStart,
		IDRangeEnd:     idEnd,
		TargetChannels: splitCSV(getEnv("TARGET_CHANNELS", "")),

		FetchBatchSize:      atoiDefault(getEnv("FETCH_BATCH_SIZE", ""), 200),
		DownloadThresholdMB: atofDefault(getEnv("DOWNLOAD_THRESHOLD_MB", ""), 20),
		ConcurrentDownloads: atoiDefault(getEnv("CONCURRENT_DOWNLOADS", ""), 10),
		StageBatchSize:      atoiDefault(getEnv("STAGE_BATCH_SIZE", ""), 10),
		CleanupOnSuccess:    parseBoolDefault(getEnv("CLEANUP_ON_SUCCESS", ""), true),
		CleanupOnFailure:    parseBoolDefault(getEnv("CLEANUP_ON_FAILURE", ""), false),
		PreserveStructure:   parseBool(getEnv("PRESERVE_STRUCTURE", "false")),

		TemplateMode: getEnv("TEMPLATE_MODE", "original"),
		TemplateBody: getEnv("TEMPLATE_BODY", ""),

		RetryMaxAttempts: atoiDefault(getEnv("RETRY_MAX_ATTEMPTS", ""), 3),
		RetryBase:        durationDefault(getEnv("RETRY_BASE", ""), time.Second),
		RetryMaxDelay:    durationDefault(getEnv("RETRY_MAX_DELAY", ""), 60*time.Second),
		RetryFactor:      atofDefault(getEnv("RETRY_FACTOR", ""), 2),

		ImbalanceRatioCap: atofDefault(getEnv("IMBALANCE_RATIO_CAP", ""), 0.3),
	}

	if len(cfg.SessionNames) == 0 {
		return nil, fmt.Errorf("SESSION_NAMES is required")
	}
	if cfg.SourceChannel == "" {
		return nil, fmt.Errorf("SOURCE_CHANNEL is required")
	}
	if len(cfg.TargetChannels) == 0 {
		return nil, fmt.Errorf("TARGET_CHANNELS is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

// Credentials builds the core-facing Credentials value for one session
// name, per spec §6.1's "session names" + "api credentials" + "proxy"
// entries.
func (c *Config) Credentials(sessionName string) Credentials {
	return Credentials{
		Name:        sessionName,
		BotToken:    c.BotTokens[sessionName],
		Proxy:       c.Proxy,
		ScratchChat: c.ScratchChats[sessionName],
	}
}

// Workload builds the core-facing Workload value, per spec §6.1's
// remaining table rows.
func (c *Config) Workload() Workload {
	return Workload{
		SourceChannel:       c.SourceChannel,
		IDRangeStart:        c.IDRangeStart,
		IDRangeEnd:          c.IDRangeEnd,
		TargetChannels:      c.TargetChannels,
		FetchBatchSize:      c.FetchBatchSize,
		DownloadThresholdMB: c.DownloadThresholdMB,
		ConcurrentDownloads: c.ConcurrentDownloads,
		StageBatchSize:      c.StageBatchSize,
		CleanupOnSuccess:    c.CleanupOnSuccess,
		CleanupOnFailure:    c.CleanupOnFailure,
		PreserveStructure:   c.PreserveStructure,
		TemplateMode:        c.TemplateMode,
		TemplateBody:        c.TemplateBody,
		RetryMaxAttempts:    c.RetryMaxAttempts,
		RetryBase:           c.RetryBase,
		RetryMaxDelay:       c.RetryMaxDelay,
		RetryFactor:         c.RetryFactor,
		ImbalanceRatioCap:   c.ImbalanceRatioCap,
	}
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atofDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func durationDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseKVPairs parses "name1=value1,name2=value2" pairs, used for both
// per-session bot tokens and per-session scratch-chat overrides.
func parseKVPairs(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitCSV(s) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return out
}

func parseIDRange(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected START-END, got %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
