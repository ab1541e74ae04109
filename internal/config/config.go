// Package config loads and validates the service configuration from
// environment variables. Values arrive at the bridge already validated;
// nothing below this package reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config is the validated service configuration.
type Config struct {
	ListenAddr string
	PublicHost string // host used in generated stream URLs, e.g. example.ngrok.app

	UltravoxAPIKey  string
	UltravoxBaseURL string
	UltravoxModel   string
	UltravoxVoice   string

	SystemPrompt string
	FirstMessage string

	OpenAIAPIKey string

	DatabaseURL string // empty runs the in-memory store

	ScheduleWebhookURL string

	OriginationTimeoutS int
}

const defaultSystemPrompt = "You are a helpful AI assistant answering a live phone call. Keep responses short and conversational."

const defaultFirstMessage = "Hello! How can I help you today?"

// Load reads the environment. Missing optional values fall back to
// defaults; validation is separate so `version` and friends do not need
// a full environment.
func Load() Config {
	return Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		PublicHost:          os.Getenv("PUBLIC_HOST"),
		UltravoxAPIKey:      os.Getenv("ULTRAVOX_API_KEY"),
		UltravoxBaseURL:     os.Getenv("ULTRAVOX_BASE_URL"),
		UltravoxModel:       os.Getenv("ULTRAVOX_MODEL"),
		UltravoxVoice:       os.Getenv("ULTRAVOX_VOICE"),
		SystemPrompt:        envOr("SYSTEM_PROMPT", defaultSystemPrompt),
		FirstMessage:        envOr("FIRST_MESSAGE", defaultFirstMessage),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ScheduleWebhookURL:  os.Getenv("SCHEDULE_WEBHOOK_URL"),
		OriginationTimeoutS: envIntOr("ORIGINATION_TIMEOUT_S", 15),
	}
}

// Validate checks the fields serve cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.UltravoxAPIKey == "" {
		errs = append(errs, errors.New("ULTRAVOX_API_KEY is required"))
	}
	if c.PublicHost == "" {
		errs = append(errs, errors.New("PUBLIC_HOST is required to generate stream URLs"))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return n
}
