package config

import (
	"os"
	"path/filepath"
)

// ClientConfig holds settings for the reel terminal client.
type ClientConfig struct {
	APIBaseURL string
	StatePath  string
}

// LoadClientConfig constructs a ClientConfig from environment variables.
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL: GetString("REEL_API_URL", "http://localhost:3000"),
		StatePath:  GetString("REEL_STATE_PATH", defaultStatePath()),
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "reel-state.db"
	}
	return filepath.Join(dir, "reel", "state.db")
}
