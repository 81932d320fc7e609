package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultCacheTTL       = 24 * time.Hour
	DefaultPurgeInterval  = 10 * time.Minute
	DefaultPostType       = "team"
	DefaultLimit          = 50
	DefaultOrderBy        = "title"
	DefaultOrder          = "asc"
	DefaultSourceTimeout  = 10 * time.Second
	DefaultThumbSize      = 100
	DefaultStreamInterval = 30 * time.Second
	DefaultProbeInterval  = time.Minute
	DefaultHeading        = "Meet The Team"
	DefaultLead           = "“Individuals can and do make a difference, but it takes a team to really mess things up.”"
)

// Config holds the server configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC health service listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the fragment, REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates write endpoints and gRPC calls.
	Auth AuthConfig `yaml:"auth"`

	// Cache selects and tunes the rendered-view cache.
	Cache CacheConfig `yaml:"cache"`

	// Source describes where profile records come from.
	Source SourceConfig `yaml:"source"`

	// Render holds the fragment header text and thumbnail size.
	Render RenderConfig `yaml:"render"`

	// Stream controls the websocket live preview.
	Stream StreamConfig `yaml:"stream"`

	// Probe controls the background health probe behind the gRPC health service.
	Probe ProbeConfig `yaml:"probe"`

	// Webhooks are notified whenever the cached listing is invalidated.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	// Backend is one of: memory | disk. Default: memory.
	Backend string `yaml:"backend"`

	// Dir is the base directory for the disk backend.
	Dir string `yaml:"dir"`

	// TTL is how long a rendered listing is served before it is recomputed.
	// Default: 24h.
	TTL time.Duration `yaml:"ttl"`

	// PurgeInterval is how often expired entries are reclaimed. Default: 10m.
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// SourceConfig describes the content source.
type SourceConfig struct {
	// Type is one of: file | http.
	Type string `yaml:"type"`

	// Path is the YAML profile file, used when Type == "file".
	Path string `yaml:"path"`

	// Endpoint is the REST collection URL, used when Type == "http".
	Endpoint string `yaml:"endpoint"`

	// PostType filters entries by content type. Default: team.
	PostType string `yaml:"post_type"`

	// Limit caps the number of records per listing. Default: 50.
	Limit int `yaml:"limit"`

	// OrderBy is one of: title | menu_order. Default: title.
	OrderBy string `yaml:"order_by"`

	// Order is one of: asc | desc. Default: asc.
	Order string `yaml:"order"`

	// Timeout bounds a single HTTP source request. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the HTTP source authenticates to the endpoint.
	Auth SourceAuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options for the HTTP source.
	TLS TLSConfig `yaml:"tls"`
}

// SourceAuthConfig specifies the authentication mode for the HTTP source.
type SourceAuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in. Used when Mode == "apikey".
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a SourceAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a SourceAuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a SourceAuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// RenderConfig holds presentation settings for the fragment.
type RenderConfig struct {
	Heading   string `yaml:"heading"`
	Lead      string `yaml:"lead"`
	ThumbSize int    `yaml:"thumb_size"`
}

// StreamConfig controls the websocket broadcast.
type StreamConfig struct {
	// Interval between broadcasts. Default: 30s.
	Interval time.Duration `yaml:"interval"`
}

// ProbeConfig controls the health probe.
type ProbeConfig struct {
	// Interval between probes. Default: 1m.
	Interval time.Duration `yaml:"interval"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Cache: CacheConfig{
				Backend:       "memory",
				TTL:           DefaultCacheTTL,
				PurgeInterval: DefaultPurgeInterval,
			},
			Source: SourceConfig{
				Type:     "file",
				PostType: DefaultPostType,
				Limit:    DefaultLimit,
				OrderBy:  DefaultOrderBy,
				Order:    DefaultOrder,
				Timeout:  DefaultSourceTimeout,
			},
			Render: RenderConfig{
				Heading:   DefaultHeading,
				Lead:      DefaultLead,
				ThumbSize: DefaultThumbSize,
			},
			Stream: StreamConfig{Interval: DefaultStreamInterval},
			Probe:  ProbeConfig{Interval: DefaultProbeInterval},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}

	switch s.Cache.Backend {
	case "memory":
	case "disk":
		if s.Cache.Dir == "" {
			return fmt.Errorf("server.cache.dir is required for the disk backend")
		}
	default:
		return fmt.Errorf("server.cache.backend %q unknown: want memory|disk", s.Cache.Backend)
	}
	if s.Cache.TTL < 0 {
		return fmt.Errorf("server.cache.ttl must not be negative")
	}
	if s.Cache.PurgeInterval <= 0 {
		return fmt.Errorf("server.cache.purge_interval must be positive")
	}

	switch s.Source.Type {
	case "file":
		if s.Source.Path == "" {
			return fmt.Errorf("server.source.path is required for the file source")
		}
	case "http":
		if s.Source.Endpoint == "" {
			return fmt.Errorf("server.source.endpoint is required for the http source")
		}
	default:
		return fmt.Errorf("server.source.type %q unknown: want file|http", s.Source.Type)
	}
	switch s.Source.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("server.source.auth.mode %q unknown: want apikey|bearer|basic|none", s.Source.Auth.Mode)
	}
	if s.Source.Limit <= 0 {
		return fmt.Errorf("server.source.limit must be positive")
	}
	switch s.Source.OrderBy {
	case "title", "menu_order":
	default:
		return fmt.Errorf("server.source.order_by %q unknown: want title|menu_order", s.Source.OrderBy)
	}
	switch s.Source.Order {
	case "asc", "desc":
	default:
		return fmt.Errorf("server.source.order %q unknown: want asc|desc", s.Source.Order)
	}

	if s.Render.ThumbSize <= 0 {
		return fmt.Errorf("server.render.thumb_size must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	if s.Probe.Interval <= 0 {
		return fmt.Errorf("server.probe.interval must be positive")
	}
	for i, wh := range s.Webhooks {
		switch wh.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("server.webhooks[%d].type %q unknown: want teams|slack|http", i, wh.Type)
		}
	}
	return nil
}
