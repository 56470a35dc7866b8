// Package config reads composer.yaml and exposes its values as
// defaults underneath the process environment: services keep reading
// plain env vars, and a set variable always wins over the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config mirrors composer.yaml.
type Config struct {
	LogMode  string   `mapstructure:"log_mode" yaml:"log_mode"`
	Postgres Postgres `mapstructure:"postgres" yaml:"postgres"`
	Redis    Redis    `mapstructure:"redis" yaml:"redis"`
	Neo4j    Neo4j    `mapstructure:"neo4j" yaml:"neo4j"`
	Otel     Otel     `mapstructure:"otel" yaml:"otel"`
}

type Postgres struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name" yaml:"name"`
}

type Redis struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type Neo4j struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
}

type Otel struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Load reads the config file. An explicit path must exist; with no
// path the default locations are searched and absence is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("composer")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.composer")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Export publishes file values as env defaults for the vars the
// services read. Already-set variables are left alone.
func (c *Config) Export() {
	setDefault("LOG_MODE", c.LogMode)
	setDefault("POSTGRES_HOST", c.Postgres.Host)
	setDefault("POSTGRES_PORT", c.Postgres.Port)
	setDefault("POSTGRES_USER", c.Postgres.User)
	setDefault("POSTGRES_PASSWORD", c.Postgres.Password)
	setDefault("POSTGRES_NAME", c.Postgres.Name)
	setDefault("REDIS_ADDR", c.Redis.Addr)
	setDefault("NEO4J_URI", c.Neo4j.URI)
	setDefault("NEO4J_USER", c.Neo4j.User)
	setDefault("NEO4J_PASSWORD", c.Neo4j.Password)
	setDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	if c.Otel.Enabled {
		setDefault("OTEL_ENABLED", "true")
	}
}

func setDefault(key, value string) {
	if value == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	os.Setenv(key, value)
}
