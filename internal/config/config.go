// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/Specoptor/trendyol/internal/normalize"
)

// Backend variants accepted by harvest.backend.
const (
	BackendAPI      = "api"
	BackendRendered = "rendered"
)

// Config captures every harvester knob loaded via Viper.
type Config struct {
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	API       APIConfig       `mapstructure:"api"`
	Rendered  RenderedConfig  `mapstructure:"rendered"`
	Output    OutputConfig    `mapstructure:"output"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HarvestConfig governs the worker pool.
type HarvestConfig struct {
	Workers int    `mapstructure:"workers"`
	Backend string `mapstructure:"backend"`
	// InputFile replaces sitemap discovery with a persisted JSON URL list.
	InputFile         string `mapstructure:"input_file"`
	RunTimeoutSeconds int    `mapstructure:"run_timeout_seconds"`
}

// DiscoveryConfig controls sitemap enumeration.
type DiscoveryConfig struct {
	URLTemplate    string `mapstructure:"url_template"`
	IndexPageBound int    `mapstructure:"index_page_bound"`
	ItemCap        int    `mapstructure:"item_cap"`
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// APIConfig configures the content API backend.
type APIConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Culture        string `mapstructure:"culture"`
	Cookie         string `mapstructure:"cookie"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RenderedConfig configures the headless browser backend.
type RenderedConfig struct {
	UserAgent         string              `mapstructure:"user_agent"`
	NavTimeoutSeconds int                 `mapstructure:"nav_timeout_seconds"`
	UnavailableTitle  string              `mapstructure:"unavailable_title"`
	ExecPath          string              `mapstructure:"exec_path"`
	Selectors         normalize.Selectors `mapstructure:"selectors"`
}

// OutputConfig names artifact destinations. Paths may be local or gs:// URIs.
type OutputConfig struct {
	Path    string `mapstructure:"path"`
	CSVPath string `mapstructure:"csv_path"`
	RawPath string `mapstructure:"raw_path"`
}

// DBConfig controls optional Postgres persistence. Empty DSN disables it.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	CreateTable            bool   `mapstructure:"create_table"`
}

// PubSubConfig holds the run notification target. Empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Environment variables use the
// HARVEST_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.workers", 4)
	v.SetDefault("harvest.backend", BackendAPI)
	v.SetDefault("harvest.input_file", "")
	v.SetDefault("harvest.run_timeout_seconds", 0)
	v.SetDefault("discovery.url_template", "https://www.trendyol.com/en/sitemap_products%d.xml")
	v.SetDefault("discovery.index_page_bound", 3)
	v.SetDefault("discovery.item_cap", 0)
	v.SetDefault("discovery.concurrency", 3)
	v.SetDefault("discovery.timeout_seconds", 30)
	v.SetDefault("discovery.user_agent", "")
	v.SetDefault("api.endpoint", "https://public-mdc.trendyol.com/discovery-sfint-productgw-service/api/product-detail/getProductDetailContentV2")
	v.SetDefault("api.culture", "en-GB")
	v.SetDefault("api.cookie", "storefrontId=34; countryCode=GB; language=en;")
	v.SetDefault("api.user_agent", "")
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("rendered.user_agent", "")
	v.SetDefault("rendered.nav_timeout_seconds", 45)
	v.SetDefault("rendered.unavailable_title", "trendyol.com")
	v.SetDefault("rendered.exec_path", "")
	sel := normalize.DefaultSelectors()
	v.SetDefault("rendered.selectors.brand_and_title", sel.BrandAndTitle)
	v.SetDefault("rendered.selectors.price", sel.Price)
	v.SetDefault("rendered.selectors.attribute_item", sel.AttributeItem)
	v.SetDefault("rendered.selectors.main_image", sel.MainImage)
	v.SetDefault("rendered.selectors.gallery_image", sel.GalleryImage)
	v.SetDefault("rendered.selectors.description", sel.Description)
	v.SetDefault("output.path", "products.json")
	v.SetDefault("output.csv_path", "")
	v.SetDefault("output.raw_path", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.create_table", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	switch c.Harvest.Backend {
	case BackendAPI, BackendRendered:
	default:
		return fmt.Errorf("harvest.backend must be %q or %q, got %q", BackendAPI, BackendRendered, c.Harvest.Backend)
	}
	if c.Harvest.RunTimeoutSeconds < 0 {
		return fmt.Errorf("harvest.run_timeout_seconds must be >= 0")
	}
	if c.Harvest.InputFile == "" {
		if c.Discovery.IndexPageBound <= 0 {
			return fmt.Errorf("discovery.index_page_bound must be > 0")
		}
		if !strings.Contains(c.Discovery.URLTemplate, "%d") {
			return fmt.Errorf("discovery.url_template must contain %%d")
		}
	}
	if c.Discovery.ItemCap < 0 {
		return fmt.Errorf("discovery.item_cap must be >= 0")
	}
	if c.Discovery.Concurrency <= 0 {
		return fmt.Errorf("discovery.concurrency must be > 0")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Rendered.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("rendered.nav_timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path must be set")
	}
	if c.Output.RawPath != "" && c.Harvest.Backend != BackendAPI {
		return fmt.Errorf("output.raw_path must be empty unless harvest.backend is %q", BackendAPI)
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return fmt.Errorf("db.min_conns must be <= db.max_conns")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level must be a zap level: %w", err)
	}
	return nil
}

// RunTimeout returns the overall run budget. Zero means no limit.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Harvest.RunTimeoutSeconds) * time.Second
}

// DiscoveryTimeout converts discovery.timeout_seconds.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// APITimeout converts api.timeout_seconds.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// NavTimeout converts rendered.nav_timeout_seconds.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Rendered.NavTimeoutSeconds) * time.Second
}

// DBMaxConnLifetime converts db.max_conn_lifetime_seconds.
func (c Config) DBMaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}
