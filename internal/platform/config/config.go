package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SHOPFRONT_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Telegram TelegramConfig `koanf:"telegram"`
	Mail     MailConfig     `koanf:"mail"`
	Outbox   OutboxConfig   `koanf:"outbox"`
	Mailings MailingsConfig `koanf:"mailings"`
	Audit    AuditConfig    `koanf:"audit"`
}

// ServerConfig.SiteURL is the public host Telegram delivers webhooks to.
type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	SiteURL     string   `koanf:"siteurl"`
	CORSOrigins []string `koanf:"corsorigins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type RedisConfig struct {
	Addr             string `koanf:"addr"`
	Password         string `koanf:"password"`
	DB               int    `koanf:"db"`
	CallbackTTLHours int    `koanf:"callbackttlhours"`
	DedupeTTLMinutes int    `koanf:"dedupettlminutes"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	DevMode bool      `koanf:"devmode"`
	JWT     JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

type TelegramConfig struct {
	APIEndpoint           string `koanf:"apiendpoint"`
	WebhookSecret         string `koanf:"webhooksecret"`
	RequestTimeoutSeconds int    `koanf:"requesttimeoutseconds"`
}

type MailConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type OutboxConfig struct {
	Enabled             bool    `koanf:"enabled"`
	PollIntervalSeconds int     `koanf:"pollintervalseconds"`
	ClaimBatchSize      int     `koanf:"claimbatchsize"`
	LockTimeoutSeconds  int     `koanf:"locktimeoutseconds"`
	MaxAttempts         int     `koanf:"maxattempts"`
	BaseRetrySeconds    int     `koanf:"baseretryseconds"`
	MaxRetrySeconds     int     `koanf:"maxretryseconds"`
	JitterFraction      float64 `koanf:"jitterfraction"`
	TenantScanPageSize  int     `koanf:"tenantscanpagesize"`
}

type MailingsConfig struct {
	Enabled             bool `koanf:"enabled"`
	PollIntervalSeconds int  `koanf:"pollintervalseconds"`
}

type AuditConfig struct {
	BufferSize      int `koanf:"buffersize"`
	BatchSize       int `koanf:"batchsize"`
	FlushIntervalMS int `koanf:"flushintervalms"`
}

func Load(configPaths ...string) (*Config, error) {
	// .env only fills variables that are not already exported.
	_ = godotenv.Load()

	k := koanf.New(".")

	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                    8080,
		"server.host":                    "0.0.0.0",
		"server.siteurl":                 "localhost",
		"database.maxconns":              25,
		"database.migrationspath":        "migrations",
		"redis.addr":                     "localhost:6379",
		"redis.db":                       0,
		"redis.callbackttlhours":         168,
		"redis.dedupettlminutes":         60,
		"log.level":                      "info",
		"log.format":                     "json",
		"auth.devmode":                   false,
		"auth.jwt.issuer":                "shopfront",
		"auth.jwt.expiryhours":           24,
		"auth.jwt.refreshexpiryhours":    168,
		"telegram.apiendpoint":           "https://api.telegram.org/bot%s/%s",
		"telegram.requesttimeoutseconds": 10,
		"mail.enabled":                   false,
		"mail.port":                      587,
		"outbox.enabled":                 true,
		"outbox.pollintervalseconds":     2,
		"outbox.claimbatchsize":          20,
		"outbox.locktimeoutseconds":      30,
		"outbox.maxattempts":             5,
		"outbox.baseretryseconds":        5,
		"outbox.maxretryseconds":         120,
		"outbox.jitterfraction":          0.2,
		"outbox.tenantscanpagesize":      100,
		"mailings.enabled":               true,
		"mailings.pollintervalseconds":   15,
		"audit.buffersize":               4096,
		"audit.batchsize":                100,
		"audit.flushintervalms":          500,
	}, "."), nil)

	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// SHOPFRONT_SERVER_PORT -> server.port
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WebhookURL builds the public webhook address for a bot slug.
func (c ServerConfig) WebhookURL(slug string) string {
	host := strings.TrimSuffix(c.SiteURL, "/")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return "https://" + host + "/telegram/api/" + slug + "/"
}
