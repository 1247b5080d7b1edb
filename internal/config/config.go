// Package config содержит логику чтения конфигурации сервиса KelevKef.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса KelevKef.
// PlatformAnonKey — публичный ключ платформы для проверки пользовательских
// сессий, PlatformServiceKey — привилегированный ключ для операций с
// объектным хранилищем.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	PlatformAddress    string `env:"PLATFORM_ADDRESS"`
	PlatformAnonKey    string `env:"PLATFORM_ANON_KEY"`
	PlatformServiceKey string `env:"PLATFORM_SERVICE_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами, ключи
// платформы передаются только через окружение.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPlatformAddress := cfg.PlatformAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PlatformAddress, "p", "", "hosted platform address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPlatformAddress != "" {
		cfg.PlatformAddress = envPlatformAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
