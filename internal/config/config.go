// Package config loads the server configuration.
//
// Values come from, in order: built-in defaults, an optional YAML file,
// the file's section for the active environment, and finally LOCALCHAT_*
// environment variables (a .env file next to the binary is read first).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	Environment Environment     `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Query       QueryConfig     `yaml:"query"`
	Store       StoreConfig     `yaml:"store"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
	LiveFeed    LiveFeedConfig  `yaml:"live_feed"`
	Log         LogConfig       `yaml:"log"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides replace the non-zero fields they set.
type Overrides struct {
	Server *ServerConfig `yaml:"server,omitempty"`
	Store  *StoreConfig  `yaml:"store,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// AllowedOrigins are websocket origin patterns besides the request host.
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type QueryConfig struct {
	// BaseURL of the room query service.
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

type StoreConfig struct {
	Backend Backend `yaml:"backend"`
	// Path of the state file for the file backend.
	Path string `yaml:"path"`
	// DSN for the postgres backend.
	DSN           string   `yaml:"dsn"`
	PendingTTL    Duration `yaml:"pending_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type DiscoveryConfig struct {
	PageSize      int     `yaml:"page_size"`
	MaxZoom       float64 `yaml:"max_zoom"`
	ScreenWidth   int     `yaml:"screen_width"`
	ScreenHeight  int     `yaml:"screen_height"`
	ZoomThreshold float64 `yaml:"zoom_threshold"`
	PanFraction   float64 `yaml:"pan_fraction"`
}

type LiveFeedConfig struct {
	// RedisAddr empty disables the live feed.
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Query: QueryConfig{
			BaseURL: "http://localhost:8081",
			Timeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Backend:    BackendMemory,
			PendingTTL: Duration(10 * time.Minute),
		},
		Discovery: DiscoveryConfig{
			PageSize:      20,
			MaxZoom:       20,
			ScreenWidth:   390,
			ScreenHeight:  844,
			ZoomThreshold: 0.3,
			PanFraction:   0.35,
		},
		LiveFeed: LiveFeedConfig{Channel: "localchat:rooms"},
		Log:      LogConfig{Level: "info", Development: true},
	}
}

// Load reads path (empty means defaults only), applies the environment
// section and then the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var o *Overrides
	switch c.Environment {
	case Development:
		o = c.Development
	case Production:
		o = c.Production
		if o == nil {
			o = &Overrides{Log: &LogConfig{Development: false}}
		}
	}
	if o == nil {
		return
	}

	if o.Server != nil {
		if o.Server.Listen != "" {
			c.Server.Listen = o.Server.Listen
		}
		if len(o.Server.AllowedOrigins) > 0 {
			c.Server.AllowedOrigins = o.Server.AllowedOrigins
		}
		if o.Server.ShutdownTimeout > 0 {
			c.Server.ShutdownTimeout = o.Server.ShutdownTimeout
		}
	}
	if o.Store != nil {
		if o.Store.Backend != "" {
			c.Store.Backend = o.Store.Backend
		}
		if o.Store.Path != "" {
			c.Store.Path = o.Store.Path
		}
		if o.Store.DSN != "" {
			c.Store.DSN = o.Store.DSN
		}
		if o.Store.PendingTTL > 0 {
			c.Store.PendingTTL = o.Store.PendingTTL
		}
	}
	if o.Log != nil {
		if o.Log.Level != "" {
			c.Log.Level = o.Log.Level
		}
		// A bool always applies.
		c.Log.Development = o.Log.Development
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LOCALCHAT_LISTEN":        &c.Server.Listen,
		"LOCALCHAT_QUERY_URL":     &c.Query.BaseURL,
		"LOCALCHAT_STORE_PATH":    &c.Store.Path,
		"LOCALCHAT_DATABASE_URL":  &c.Store.DSN,
		"LOCALCHAT_REDIS_ADDR":    &c.LiveFeed.RedisAddr,
		"LOCALCHAT_REDIS_CHANNEL": &c.LiveFeed.Channel,
		"LOCALCHAT_LOG_LEVEL":     &c.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("LOCALCHAT_ENV"); ok {
		c.Environment = Environment(v)
	}
	if v, ok := lookup("LOCALCHAT_STORE_BACKEND"); ok {
		c.Store.Backend = Backend(v)
	}
	if v, ok := lookup("LOCALCHAT_PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOCALCHAT_PAGE_SIZE: %w", err)
		}
		c.Discovery.PageSize = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if u, err := url.Parse(c.Query.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("query.base_url must be an absolute url: %q", c.Query.BaseURL))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, errors.New("query.timeout must be positive"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of memory, file, postgres: %q", c.Store.Backend))
	}
	if c.Store.PendingTTL < 0 {
		errs = append(errs, errors.New("store.pending_ttl must not be negative"))
	}

	d := c.Discovery
	if d.PageSize <= 0 {
		errs = append(errs, errors.New("discovery.page_size must be positive"))
	}
	if d.MaxZoom <= 0 {
		errs = append(errs, errors.New("discovery.max_zoom must be positive"))
	}
	if d.ScreenWidth <= 0 || d.ScreenHeight <= 0 {
		errs = append(errs, errors.New("discovery screen size must be positive"))
	}
	if d.PanFraction <= 0 || d.PanFraction > 1 {
		errs = append(errs, errors.New("discovery.pan_fraction must be in (0, 1]"))
	}
	if d.ZoomThreshold <= 0 {
		errs = append(errs, errors.New("discovery.zoom_threshold must be positive"))
	}

	if c.LiveFeed.RedisAddr != "" && c.LiveFeed.Channel == "" {
		errs = append(errs, errors.New("live_feed.channel is required with a redis address"))
	}

	return errors.Join(errs...)
}
