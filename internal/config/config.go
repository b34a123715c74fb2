// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment. Loaded
// once at startup; read-only afterward.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// GleanEnabled is the static telemetry kill switch.
	GleanEnabled bool `mapstructure:"GLEAN_ENABLED"`
	// GleanApplicationID is the document namespace pings are filed under
	// (e.g. accounts_backend_dev).
	GleanApplicationID string `mapstructure:"GLEAN_APPLICATION_ID"`
	// GleanChannel is the release channel reported in client_info.
	GleanChannel string `mapstructure:"GLEAN_CHANNEL"`
	// GleanAppDisplayVersion is the app version reported in client_info.
	GleanAppDisplayVersion string `mapstructure:"GLEAN_APP_DISPLAY_VERSION"`
	// GleanLoggerAppName names the log stream ping lines are written to.
	GleanLoggerAppName string `mapstructure:"GLEAN_LOGGER_APP_NAME"`
	// GleanServerEndpoint is the ingestion endpoint for client ping uploads.
	GleanServerEndpoint string `mapstructure:"GLEAN_SERVER_ENDPOINT"`
	// GleanLogPings mirrors each outbound client ping to the local log.
	GleanLogPings bool `mapstructure:"GLEAN_LOG_PINGS"`
	// GleanDebugViewTag routes client pings to the debug view when set.
	GleanDebugViewTag string `mapstructure:"GLEAN_DEBUG_VIEW_TAG"`
	// GleanMaxEvents is the per-ping event budget (these pings carry one).
	GleanMaxEvents int `mapstructure:"GLEAN_MAX_EVENTS"`

	// OAuthClientIDs is a comma-separated list of id=service pairs mapping a
	// relying party oauth client id to its service name.
	OAuthClientIDs string `mapstructure:"OAUTH_CLIENT_IDS"`

	// JWTPublicKey is a PEM-encoded RSA or ECDSA public key used to verify
	// bearer tokens before reading telemetry claims; empty means claims-only.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`

	// OTLPEndpoint is the OTLP collector address; empty disables the OTel
	// providers and the OTel ping sink.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list; when set, the server
	// tees pings to Kafka and cmd/worker can forward them to Loki.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic ping envelopes are written to.
	KafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL cmd/worker pushes pings to.
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI); env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GLEAN_ENABLED", false)
	v.SetDefault("GLEAN_APPLICATION_ID", "accounts_backend_dev")
	v.SetDefault("GLEAN_CHANNEL", "development")
	v.SetDefault("GLEAN_APP_DISPLAY_VERSION", "0.0.0")
	v.SetDefault("GLEAN_LOGGER_APP_NAME", "accounts-backend")
	v.SetDefault("GLEAN_SERVER_ENDPOINT", "")
	v.SetDefault("GLEAN_LOG_PINGS", false)
	v.SetDefault("GLEAN_DEBUG_VIEW_TAG", "")
	v.SetDefault("GLEAN_MAX_EVENTS", 1)
	v.SetDefault("OAUTH_CLIENT_IDS", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "accounts-telemetry-pings")
	v.SetDefault("KAFKA_GROUP_ID", "accounts-telemetry-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GleanEnabled && cfg.GleanApplicationID == "" {
		return nil, errors.New("config: GLEAN_APPLICATION_ID must be set when GLEAN_ENABLED=true")
	}
	if cfg.GleanMaxEvents < 1 {
		return nil, errors.New("config: GLEAN_MAX_EVENTS must be at least 1")
	}

	return &cfg, nil
}

// OAuthClientIDMap parses OAuthClientIDs into a client-id -> service-name
// map. Malformed pairs are skipped.
func (c *Config) OAuthClientIDMap() map[string]string {
	if c == nil || c.OAuthClientIDs == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(c.OAuthClientIDs, ",") {
		id, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id != "" && name != "" {
			out[id] = name
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if the Kafka sink is enabled (non-empty list) and to create
// the writer and reader.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
