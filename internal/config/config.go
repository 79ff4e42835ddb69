// Package config loads the runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	Category string   `envconfig:"CATEGORY" required:"true"`
	Letters  []string `envconfig:"LETTERS" default:"number,a,b,c,d,e,f,g,h,i,j,k,l,m,n,o,p,q,r,s,t,u,v,w,x,y,z"`

	SiteBaseURL     string `envconfig:"SITE_BASE_URL" default:"https://vimm.net/vault"`
	DownloadBaseURL string `envconfig:"DOWNLOAD_BASE_URL" default:"https://dl3.vimm.net"`

	DownloadDir      string `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	RomDir           string `envconfig:"ROM_DIR" default:"roms"`
	NormalizedNaming bool   `envconfig:"NORMALIZED_NAMING" default:"true"`

	RequestDelay      time.Duration `envconfig:"REQUEST_DELAY" default:"2s"`
	DownloadDelay     time.Duration `envconfig:"DOWNLOAD_DELAY" default:"2s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ConcurrentScrapes int           `envconfig:"CONCURRENT_SCRAPES" default:"3"`
	MinimumScore      float64       `envconfig:"MINIMUM_SCORE" default:"0"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	ChunkSize         int           `envconfig:"CHUNK_SIZE" default:"8192"`

	DBPath            string `envconfig:"DB_PATH"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"vaultgrab"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
