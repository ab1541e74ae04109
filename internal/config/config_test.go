package config

import (
	"testing"

	"github.com/matryer/is"
)

func TestLoadDefaults(t *testing.T) {
	is := is.New(t)
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("SYSTEM_PROMPT", "")
	t.Setenv("ORIGINATION_TIMEOUT_S", "")

	cfg := Load()
	is.Equal(cfg.ListenAddr, ":8080")
	is.Equal(cfg.SystemPrompt, defaultSystemPrompt)
	is.Equal(cfg.OriginationTimeoutS, 15)
}

func TestLoadOverrides(t *testing.T) {
	is := is.New(t)
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("ORIGINATION_TIMEOUT_S", "30")

	cfg := Load()
	is.Equal(cfg.ListenAddr, ":9000")
	is.Equal(cfg.OriginationTimeoutS, 30)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	is := is.New(t)
	t.Setenv("ORIGINATION_TIMEOUT_S", "soon")

	cfg := Load()
	is.Equal(cfg.OriginationTimeoutS, 15)
}

func TestValidate(t *testing.T) {
	is := is.New(t)

	cfg := Config{}
	is.True(cfg.Validate() != nil)

	cfg.UltravoxAPIKey = "uv-key"
	is.True(cfg.Validate() != nil) // still missing public host

	cfg.PublicHost = "bridge.example.com"
	is.NoErr(cfg.Validate())
}
