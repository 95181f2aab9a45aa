package config

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("XIINOPROXY_MAX_IMAGES", "not-a-number")
	cfg := Load(zerolog.Nop())
	if cfg.MaxImages != Default().MaxImages {
		t.Errorf("expected fallback to default MaxImages, got %d", cfg.MaxImages)
	}
}

func TestLoadHonorsValidOverride(t *testing.T) {
	t.Setenv("XIINOPROXY_LISTEN_ADDR", ":9999")
	cfg := Load(zerolog.Nop())
	if cfg.ListenAddr != ":9999" {
		t.Errorf("got %q, want :9999", cfg.ListenAddr)
	}
}

func TestLoadHonorsMaxRequestSizeOverride(t *testing.T) {
	t.Setenv("XIINOPROXY_MAX_REQUEST_SIZE", "2048")
	cfg := Load(zerolog.Nop())
	if cfg.MaxRequestSize != 2048 {
		t.Errorf("got %d, want 2048", cfg.MaxRequestSize)
	}
}
