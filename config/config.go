package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	HTTPAddr    string
	MediaDir    string
	MediaProxy  string
	LogPath     string
	Scheduler   SchedulerConfig
	S3          S3Config

	mu             sync.RWMutex
	sourceURL      string
	webhookURL     string
	webhookSecret  string
	verifyInbound  bool
	onSourceChange func(oldURL string)
}

type SchedulerConfig struct {
	Cron     string
	Interval time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for DO Spaces / R2
	AccessKeyID     string
	SecretAccessKey string
}

// SourceFile is the optional yaml settings file overriding the source URL
// and webhook endpoint, mirroring what the settings layer persists.
type SourceFile struct {
	SourceURL  string `yaml:"source_url"`
	WebhookURL string `yaml:"webhook_url"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DBPath:      getEnv("DB_PATH", "propsync.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8480"),
		MediaDir:    getEnv("MEDIA_DIR", "media"),
		MediaProxy:  os.Getenv("MEDIA_PROXY"),
		LogPath:     getEnv("LOG_PATH", "propsyncd.log"),
		Scheduler: SchedulerConfig{
			Cron: getEnv("SYNC_CRON", "@hourly"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		sourceURL:     os.Getenv("SOURCE_URL"),
		webhookURL:    os.Getenv("WEBHOOK_URL"),
		webhookSecret: os.Getenv("WEBHOOK_SECRET"),
		verifyInbound: os.Getenv("WEBHOOK_VERIFY_INBOUND") == "true",
	}

	if interval := os.Getenv("SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Scheduler.Interval = d
			cfg.Scheduler.Cron = ""
		}
	}

	if path := os.Getenv("SOURCE_FILE"); path != "" {
		if err := cfg.loadSourceFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) loadSourceFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sf SourceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return err
	}
	if sf.SourceURL != "" {
		c.sourceURL = sf.SourceURL
	}
	if sf.WebhookURL != "" {
		c.webhookURL = sf.WebhookURL
	}
	return nil
}

func (c *Config) SourceURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sourceURL
}

// SetSourceURL swaps the configured source and fires the change hook so the
// fetch cache for the old source is dropped immediately.
func (c *Config) SetSourceURL(url string) {
	c.mu.Lock()
	old := c.sourceURL
	c.sourceURL = url
	hook := c.onSourceChange
	c.mu.Unlock()

	if hook != nil && old != url {
		hook(old)
	}
}

func (c *Config) OnSourceChange(fn func(oldURL string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSourceChange = fn
}

func (c *Config) WebhookURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webhookURL
}

func (c *Config) WebhookSecret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webhookSecret
}

func (c *Config) VerifyInbound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verifyInbound
}

func (c *Config) SetVerifyInbound(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyInbound = v
}

func (c *Config) SetWebhook(url, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhookURL = url
	c.webhookSecret = secret
}

// RegenerateSecret replaces the webhook secret with a fresh random value and
// returns it.
func (c *Config) RegenerateSecret() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	secret := hex.EncodeToString(b[:])

	c.mu.Lock()
	c.webhookSecret = secret
	c.mu.Unlock()

	return secret
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
