// Package config loads the producer configuration from a YAML file, .env
// files and AMP_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"automagick_post_producer/logger"
	"automagick_post_producer/publisher"
)

// EnvPrefix prefixes every environment override, e.g. AMP_LLM_PROVIDER.
const EnvPrefix = "AMP"

// Repository backends.
const (
	BackendFiles     = "files"
	BackendWordPress = "wordpress"
)

// Config is the process configuration. The generation settings themselves
// (credential, prompts, schedule) live in the database.
type Config struct {
	ServerAddr string           `mapstructure:"server_addr"`
	Database   string           `mapstructure:"database"`
	SiteSecret string           `mapstructure:"site_secret"`
	Timezone   string           `mapstructure:"timezone"`
	ScratchDir string           `mapstructure:"scratch_dir"`
	Log        logger.Config    `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Repository RepositoryConfig `mapstructure:"repository"`
	// Schedules registers custom frequencies as name -> interval seconds.
	Schedules map[string]int `mapstructure:"schedules"`
}

// LLMConfig selects the generation provider. deepseek and other
// OpenAI-compatible gateways need BaseURL.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
}

// RepositoryConfig selects where items are published.
type RepositoryConfig struct {
	Backend   string                    `mapstructure:"backend"`
	Dir       string                    `mapstructure:"dir"`
	WordPress publisher.WordPressConfig `mapstructure:"wordpress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("database", "data/producer.db")
	v.SetDefault("site_secret", "")
	v.SetDefault("timezone", "Local")
	v.SetDefault("scratch_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("repository.backend", BackendFiles)
	v.SetDefault("repository.dir", "data/items")
	v.SetDefault("repository.wordpress.url", "")
	v.SetDefault("repository.wordpress.username", "")
	v.SetDefault("repository.wordpress.app_password", "")
	v.SetDefault("schedules", map[string]int{})
}

// loadEnvFiles loads .env.local then .env; missing files are fine.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path, or producer.yaml from . or ~/.config/automagick when
// path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("producer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "automagick"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SiteSecret) == "" {
		return errors.New("site_secret is required to protect the stored API key")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.LLM.Provider {
	case "openai", "mock":
	case "deepseek":
		if c.LLM.BaseURL == "" {
			return errors.New("llm provider deepseek requires llm.base_url")
		}
	default:
		return fmt.Errorf("llm provider %q not supported", c.LLM.Provider)
	}
	switch c.Repository.Backend {
	case BackendFiles:
		if c.Repository.Dir == "" {
			return errors.New("repository.dir is required for the files backend")
		}
	case BackendWordPress:
		wp := c.Repository.WordPress
		if wp.URL == "" || wp.Username == "" || wp.AppPassword == "" {
			return errors.New("repository.wordpress needs url, username and app_password")
		}
	default:
		return fmt.Errorf("repository backend %q not supported", c.Repository.Backend)
	}
	for name, secs := range c.Schedules {
		if secs <= 0 {
			return fmt.Errorf("schedule %q: interval must be positive seconds", name)
		}
	}
	return nil
}

// Location resolves Timezone; "" and "Local" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
