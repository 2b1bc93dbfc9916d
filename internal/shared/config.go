package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	MAL      MALConfig      `toml:"mal"`
	Server   ServerConfig   `toml:"server"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

// MALConfig contains MyAnimeList API credentials.
//
// AccessToken/RefreshToken are an optional fallback pair used when no
// browser session holds tokens (unauthenticated-session mode).
type MALConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	PKCEMethod   string `toml:"pkce_method"` // "S256" (default) or "plain"
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
}

// PipelineConfig contains tuning knobs for the preview/update/snapshot pipelines.
type PipelineConfig struct {
	PacingMS     int `toml:"pacing_ms"`      // delay between sequential remote calls
	PageSize     int `toml:"page_size"`      // first snapshot page size
	MaxListPages int `toml:"max_list_pages"` // snapshot page cap
	MaxListItems int `toml:"max_list_items"` // snapshot item cap
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnvOverrides()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvOverrides lets credentials come from the environment so they stay out of config files.
func (c *Config) applyEnvOverrides() {
	for env, target := range map[string]*string{
		"MAL_CLIENT_ID":     &c.MAL.ClientID,
		"MAL_CLIENT_SECRET": &c.MAL.ClientSecret,
		"MAL_REDIRECT_URI":  &c.MAL.RedirectURI,
		"MAL_ACCESS_TOKEN":  &c.MAL.AccessToken,
		"MAL_REFRESH_TOKEN": &c.MAL.RefreshToken,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
}
