// Package config loads the runtime configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/looproom/looproom"
)

// Config stores the application configuration.
type Config struct {
	SampleRate int // render and playback rate

	// Redis connection for the shared room store. Empty address disables
	// persistence; sessions then live only in local files.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first but never overrides variables already
// set.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("no usable .env file, relying on the environment")
	}
	return &Config{
		SampleRate:    getEnvInt("LOOPROOM_SAMPLE_RATE", looproom.DefaultSampleRate),
		RedisAddr:     getEnv("LOOPROOM_REDIS_ADDR", ""),
		RedisPassword: getEnv("LOOPROOM_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("LOOPROOM_REDIS_DB", 0),
		LogLevel:      getEnv("LOOPROOM_LOG_LEVEL", "info"),
	}
}
