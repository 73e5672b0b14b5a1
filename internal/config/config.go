package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CLASSDECK"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultStoreKind    = "sqlite"
	defaultDatabasePath = "classdeck.db"
	defaultLogLevel     = "info"
	defaultTokenTTLMin  = 720
	defaultRedisAddress = ""
	defaultStoreBaseURL = ""
)

// Store kinds selectable at runtime.
const (
	StoreKindSQLite = "sqlite"
	StoreKindHTTP   = "http"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	StoreKind       string
	StoreBaseURL    string
	StoreAuthToken  string
	DatabasePath    string
	RedisAddress    string
	SigningSecret   string
	TeacherSecret   string
	TokenTTLMinutes int
	LogLevel        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("store.kind", defaultStoreKind)
	configViper.SetDefault("store.http.base_url", defaultStoreBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		StoreKind:       strings.ToLower(configViper.GetString("store.kind")),
		StoreBaseURL:    configViper.GetString("store.http.base_url"),
		StoreAuthToken:  configViper.GetString("store.http.token"),
		DatabasePath:    configViper.GetString("database.path"),
		RedisAddress:    configViper.GetString("redis.address"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TeacherSecret:   configViper.GetString("auth.teacher_secret"),
		TokenTTLMinutes: configViper.GetInt("token.ttl_minutes"),
		LogLevel:        configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.TeacherSecret) == "" {
		return fmt.Errorf("auth.teacher_secret is required")
	}
	switch c.StoreKind {
	case StoreKindSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite store")
		}
	case StoreKindHTTP:
		if strings.TrimSpace(c.StoreBaseURL) == "" {
			return fmt.Errorf("store.http.base_url is required for the http store")
		}
	default:
		return fmt.Errorf("store.kind must be %q or %q", StoreKindSQLite, StoreKindHTTP)
	}
	return nil
}
