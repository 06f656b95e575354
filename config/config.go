package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App struct {
		Name string `mapstructure:"NAME"`
		Port string `mapstructure:"PORT"`
		Env  string `mapstructure:"ENV"`
	}

	DATABASE struct {
		Postgres struct {
			DSN string `mapstructure:"URL"`
		}
		Redis struct {
			Addr     string `mapstructure:"ADDR"`
			Password string `mapstructure:"PASSWORD"`
			DB       int    `mapstructure:"DB"`
		}
		Mongo struct {
			Url      string `mapstructure:"URL"`
			Database string `mapstructure:"DATABASE"`
		}
	}

	JWT struct {
		Secret string `mapstructure:"SECRET"`
		Issuer string `mapstructure:"ISSUER"`
	}

	WS struct {
		HandshakeTimeout time.Duration `mapstructure:"HANDSHAKE_TIMEOUT"`
		MaxConnections   int           `mapstructure:"MAX_CONNECTIONS"`
		ConnectionsPerIP int           `mapstructure:"CONNECTIONS_PER_IP"`
		SendBuffer       int           `mapstructure:"SEND_BUFFER"`
		AllowedOrigins   []string      `mapstructure:"ALLOWED_ORIGINS"`
	}

	WORKER struct {
		Num              int           `mapstructure:"NUM"`
		DLQRetryInterval time.Duration `mapstructure:"DLQ_RETRY_INTERVAL"`
		DLQMaxRetry      int           `mapstructure:"DLQ_MAX_RETRY"`
	}

	MAIL struct {
		SMTPHost string `mapstructure:"SMTP_HOST"`
		SMTPPort int    `mapstructure:"SMTP_PORT"`
		Username string `mapstructure:"USERNAME"`
		Password string `mapstructure:"PASSWORD"`
		From     string `mapstructure:"FROM"`
	}

	NOTIFICATION struct {
		UnreadCacheTTL time.Duration `mapstructure:"UNREAD_CACHE_TTL"`
	}
}

var Conf *AppConfig

// every key needs a default, otherwise AutomaticEnv values never reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP.NAME", "fisioflow-realtime")
	v.SetDefault("APP.PORT", ":8080")
	v.SetDefault("APP.ENV", "development")

	v.SetDefault("DATABASE.POSTGRES.URL", "")
	v.SetDefault("DATABASE.REDIS.ADDR", "localhost:6379")
	v.SetDefault("DATABASE.REDIS.PASSWORD", "")
	v.SetDefault("DATABASE.REDIS.DB", 0)
	v.SetDefault("DATABASE.MONGO.URL", "")
	v.SetDefault("DATABASE.MONGO.DATABASE", "fisioflow")

	v.SetDefault("JWT.SECRET", "")
	v.SetDefault("JWT.ISSUER", "")

	v.SetDefault("WS.HANDSHAKE_TIMEOUT", 5*time.Second)
	v.SetDefault("WS.MAX_CONNECTIONS", 10000)
	v.SetDefault("WS.CONNECTIONS_PER_IP", 20)
	v.SetDefault("WS.SEND_BUFFER", 256)
	v.SetDefault("WS.ALLOWED_ORIGINS", []string{})

	v.SetDefault("WORKER.NUM", 5)
	v.SetDefault("WORKER.DLQ_RETRY_INTERVAL", time.Minute)
	v.SetDefault("WORKER.DLQ_MAX_RETRY", 5)

	v.SetDefault("MAIL.SMTP_HOST", "")
	v.SetDefault("MAIL.SMTP_PORT", 587)
	v.SetDefault("MAIL.USERNAME", "")
	v.SetDefault("MAIL.PASSWORD", "")
	v.SetDefault("MAIL.FROM", "no-reply@fisioflow.app")

	v.SetDefault("NOTIFICATION.UNREAD_CACHE_TTL", 5*time.Minute)
}

// LoadConfig reads application.yaml from the working directory (optional) and
// FISIOFLOW_* environment variables. It is called once at process start.
func LoadConfig() error {
	cfg, err := Load(".")
	if err != nil {
		return err
	}

	Conf = cfg
	log.Info().Msg("configuration loaded...")
	return nil
}

func Load(paths ...string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("FISIOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("application.yaml not found, using defaults and environment")
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *AppConfig) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT.SECRET is required")
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("WS.SEND_BUFFER must be positive, got %d", c.WS.SendBuffer)
	}
	if c.WS.HandshakeTimeout <= 0 {
		return fmt.Errorf("WS.HANDSHAKE_TIMEOUT must be positive")
	}
	return nil
}

func (c *AppConfig) IsProduction() bool {
	return c.App.Env == "production"
}
