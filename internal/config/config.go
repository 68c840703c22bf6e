// Package config provides YAML-based configuration loading for supportchat.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/kelseyhightower/envconfig"
	"github.com/zulandar/supportchat/internal/catalog"
	"github.com/zulandar/supportchat/internal/chat"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/poll"
	"github.com/zulandar/supportchat/internal/webhook"
	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves a field empty.
const (
	DefaultPollInterval     = poll.DefaultInterval
	DefaultMaxWait          = poll.DefaultMaxWait
	DefaultStoreTimeout     = 10 * time.Second
	DefaultWebhookTimeout   = webhook.DefaultTimeout
	DefaultServerPort       = 4321
	DefaultDevStorePort     = 8055
	DefaultCatalogTTL       = catalog.DefaultTTL
	DefaultCatalogRefresh   = "*/10 * * * *"
	DefaultCatalogPrefix    = catalog.DefaultPrefix
	DefaultConversations    = "conversations"
	DefaultMessages         = "messages"
	DefaultServices         = "poc_service"
	DefaultDocumentsField   = "poc_docus"
	DefaultDevStoreDriver   = "sqlite"
	DefaultDevStoreDSN      = "supportchat-dev.db"
	DefaultChatLanguage     = chat.DefaultLanguage
	DefaultLogLevel         = "info"
	DefaultLogServiceName   = "supportchat"
	DefaultFallbackTimeout  = chat.DefaultFallbackTimeout
	DefaultFallbackGeneric  = chat.DefaultFallbackGeneric
	DefaultNotifyEscalation = true
)

// Config is the top-level supportchat configuration, loaded from supportchat.yaml.
type Config struct {
	Directus DirectusConfig `yaml:"directus"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Polling  PollingConfig  `yaml:"polling"`
	Server   ServerConfig   `yaml:"server"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	DevStore DevStoreConfig `yaml:"devstore"`
	Notify   NotifyConfig   `yaml:"notify"`
	Chat     ChatConfig     `yaml:"chat"`
	Log      logging.Config `yaml:"log"`
}

// DirectusConfig points at the item store holding conversations, messages
// and the services catalogue.
type DirectusConfig struct {
	URL            string            `yaml:"url" validate:"required,url"`
	Token          string            `yaml:"token"`
	Timeout        time.Duration     `yaml:"timeout"`
	Collections    CollectionsConfig `yaml:"collections"`
	DocumentsField string            `yaml:"documents_field"`
}

// CollectionsConfig names the store collections.
type CollectionsConfig struct {
	Conversations string `yaml:"conversations"`
	Messages      string `yaml:"messages"`
	Services      string `yaml:"services"`
}

// WebhookConfig points at the workflow engine endpoint.
type WebhookConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollingConfig tunes the reply waiter and message subscriber.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxWait  time.Duration `yaml:"max_wait"`
}

// ServerConfig holds the boundary API listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CatalogConfig tunes the services/FAQ cache.
type CatalogConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Refresh string        `yaml:"refresh"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig enables the redis-backed catalogue cache when Address is set.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DevStoreConfig configures the local Directus-compatible store.
type DevStoreConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite mysql"`
	DSN    string `yaml:"dsn"`
	Port   int    `yaml:"port"`
	Token  string `yaml:"token"`
}

// NotifyConfig configures escalation notifications to human agents.
type NotifyConfig struct {
	OnTimeout *bool         `yaml:"on_timeout"`
	Slack     SlackConfig   `yaml:"slack"`
	Discord   DiscordConfig `yaml:"discord"`
}

// SlackConfig enables the Slack notifier when BotToken is set.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig enables the Discord notifier when BotToken is set.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// ChatConfig holds defaults for CLI chat sessions and fallback wording.
type ChatConfig struct {
	Language        string `yaml:"language"`
	ServiceID       string `yaml:"service_id"`
	UserID          string `yaml:"user_id"`
	FallbackTimeout string `yaml:"fallback_timeout"`
	FallbackGeneric string `yaml:"fallback_generic"`
}

// envOverrides are read from the process environment (after .env loading in
// the CLI). Names follow the widget's historical variables.
type envOverrides struct {
	DirectusURL         string `envconfig:"DIRECTUS_URL"`
	PublicDirectusURL   string `envconfig:"PUBLIC_DIRECTUS_URL"`
	DirectusToken       string `envconfig:"DIRECTUS_TOKEN"`
	PublicDirectusToken string `envconfig:"PUBLIC_DIRECTUS_TOKEN"`
	WebhookURL          string `envconfig:"N8N_WEBHOOK_URL"`
	WebhookToken        string `envconfig:"N8N_AUTH_TOKEN"`
	Port                int    `envconfig:"PORT"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
	RedisAddress        string `envconfig:"REDIS_ADDRESS"`
	RedisPassword       string `envconfig:"REDIS_PASSWORD"`
	SlackBotToken       string `envconfig:"SLACK_BOT_TOKEN"`
	DiscordBotToken     string `envconfig:"DISCORD_BOT_TOKEN"`
}

var validate = validator.New()

// Load reads a YAML config file from path, overlays environment variables
// and returns a validated Config. An empty path starts from an empty file,
// so a fully env-driven deployment needs no YAML at all.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return parse(data, true)
}

// Parse unmarshals YAML bytes into a validated Config. The environment is
// not consulted.
func Parse(data []byte) (*Config, error) {
	return parse(data, false)
}

func parse(data []byte, withEnv bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if withEnv {
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays non-empty environment values onto the file values.
func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	set := func(dst *string, vals ...string) {
		for _, v := range vals {
			if v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Directus.URL, env.DirectusURL, env.PublicDirectusURL)
	set(&c.Directus.Token, env.DirectusToken, env.PublicDirectusToken)
	set(&c.Webhook.URL, env.WebhookURL)
	set(&c.Webhook.Token, env.WebhookToken)
	set(&c.Log.Level, env.LogLevel)
	set(&c.Catalog.Redis.Address, env.RedisAddress)
	set(&c.Catalog.Redis.Password, env.RedisPassword)
	set(&c.Notify.Slack.BotToken, env.SlackBotToken)
	set(&c.Notify.Discord.BotToken, env.DiscordBotToken)
	if env.Port > 0 {
		c.Server.Port = env.Port
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Directus.URL = strings.TrimRight(c.Directus.URL, "/")
	if c.Directus.Timeout <= 0 {
		c.Directus.Timeout = DefaultStoreTimeout
	}
	if c.Directus.Collections.Conversations == "" {
		c.Directus.Collections.Conversations = DefaultConversations
	}
	if c.Directus.Collections.Messages == "" {
		c.Directus.Collections.Messages = DefaultMessages
	}
	if c.Directus.Collections.Services == "" {
		c.Directus.Collections.Services = DefaultServices
	}
	if c.Directus.DocumentsField == "" {
		c.Directus.DocumentsField = DefaultDocumentsField
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = DefaultWebhookTimeout
	}
	if c.Polling.Interval <= 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.MaxWait <= 0 {
		c.Polling.MaxWait = DefaultMaxWait
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Catalog.TTL <= 0 {
		c.Catalog.TTL = DefaultCatalogTTL
	}
	if c.Catalog.Refresh == "" {
		c.Catalog.Refresh = DefaultCatalogRefresh
	}
	if c.Catalog.Redis.Prefix == "" {
		c.Catalog.Redis.Prefix = DefaultCatalogPrefix
	}
	if c.DevStore.Driver == "" {
		c.DevStore.Driver = DefaultDevStoreDriver
	}
	if c.DevStore.DSN == "" && c.DevStore.Driver == DefaultDevStoreDriver {
		c.DevStore.DSN = DefaultDevStoreDSN
	}
	if c.DevStore.Port == 0 {
		c.DevStore.Port = DefaultDevStorePort
	}
	if c.Notify.OnTimeout == nil {
		v := DefaultNotifyEscalation
		c.Notify.OnTimeout = &v
	}
	if c.Chat.Language == "" {
		c.Chat.Language = DefaultChatLanguage
	}
	if c.Chat.FallbackTimeout == "" {
		c.Chat.FallbackTimeout = DefaultFallbackTimeout
	}
	if c.Chat.FallbackGeneric == "" {
		c.Chat.FallbackGeneric = DefaultFallbackGeneric
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Service == "" {
		c.Log.Service = DefaultLogServiceName
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, describeFieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}
	if c.Polling.MaxWait < c.Polling.Interval {
		errs = append(errs, "polling.max_wait must be at least polling.interval")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.DevStore.Driver == "mysql" {
		if c.DevStore.DSN == "" {
			errs = append(errs, "devstore.dsn is required for the mysql driver")
		} else if _, err := mysql.ParseDSN(c.DevStore.DSN); err != nil {
			errs = append(errs, fmt.Sprintf("devstore.dsn: %v", err))
		}
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when a bot token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RequireWebhook reports an error when no workflow engine URL is configured.
func (c *Config) RequireWebhook() error {
	if c.Webhook.URL == "" {
		return fmt.Errorf("config: webhook.url is required (or set N8N_WEBHOOK_URL)")
	}
	return nil
}

// NotifyOnTimeout reports whether unanswered questions are escalated.
func (c *Config) NotifyOnTimeout() bool {
	return c.Notify.OnTimeout != nil && *c.Notify.OnTimeout
}

// describeFieldError renders a validator error with the yaml path of the field.
func describeFieldError(fe validator.FieldError) string {
	path := yamlPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", path, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", path, fe.Tag())
}

// yamlPath turns "Config.Directus.URL" into "directus.url".
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	switch s {
	case "URL", "DSN", "DB":
		return strings.ToLower(s)
	case "DevStore":
		return "devstore"
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
