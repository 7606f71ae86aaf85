/*
Package config loads server configuration from the environment.

A .env file in the working directory is loaded when present (local
development); real deployments set the variables directly. Every value
has a usable default, so the server starts with no configuration at all.
*/
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the server's runtime settings.
type Config struct {
	Port           int
	DBPath         string
	LogLevel       string
	CORSOrigins    []string
	MaxCascadeDays int
}

// Load reads the environment (after sourcing .env if one exists).
func Load() Config {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	return Config{
		Port:           envInt("PORT", 8080),
		DBPath:         envString("DB_PATH", "./data/ledger.db"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		CORSOrigins:    []string{envString("CORS_ORIGIN", "*")},
		MaxCascadeDays: envInt("MAX_CASCADE_DAYS", 0),
	}
}

// NewLogger builds the process logger: JSON to stdout, level from config.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
