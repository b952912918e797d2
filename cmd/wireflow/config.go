package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/rendis/wireflow/pkg/schema"
)

// Config holds the wireflow CLI and server configuration.
// Priority: env vars > settings.toml > defaults.
type Config struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
	// Selector is the item field edited by default (dependsOn or disappearOn).
	Selector string `toml:"selector"`
	// Layout is "authoring" (stored coordinates) or "replay" (last recorded drags).
	Layout string `toml:"layout"`
	// ListenMode is the MCP transport: "stdio" or "sse".
	ListenMode    string `toml:"listen_mode"`
	ListenAddr    string `toml:"listen_addr"`
	BaseURL       string `toml:"base_url"`
	DeferredBuild bool   `toml:"deferred_build"`
}

func defaultConfig() Config {
	return Config{
		DBPath:     filepath.Join(wireflowDir(), "wireflow.db"),
		LogLevel:   "info",
		Selector:   string(schema.SelectorDependsOn),
		Layout:     "authoring",
		ListenMode: "stdio",
		ListenAddr: ":4200",
	}
}

func wireflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wireflow"
	}
	return filepath.Join(home, ".wireflow")
}

func settingsPath() string {
	return filepath.Join(wireflowDir(), "settings.toml")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.toml (ignore if missing).
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	if v := getenv("WIREFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("WIREFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("WIREFLOW_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := getenv("WIREFLOW_SELECTOR"); v != "" {
		cfg.Selector = v
	}
	if v := getenv("WIREFLOW_LAYOUT"); v != "" {
		cfg.Layout = v
	}
	if v := getenv("WIREFLOW_LISTEN_MODE"); v != "" {
		cfg.ListenMode = v
	}
	if v := getenv("WIREFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("WIREFLOW_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("WIREFLOW_DEFERRED_BUILD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DeferredBuild = b
		}
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if _, err := parseSelector(c.Selector); err != nil {
		return err
	}
	switch c.Layout {
	case "authoring", "replay":
	default:
		return fmt.Errorf("layout must be authoring or replay, got %q", c.Layout)
	}
	switch c.ListenMode {
	case "stdio", "sse":
	default:
		return fmt.Errorf("listen_mode must be stdio or sse, got %q", c.ListenMode)
	}
	return nil
}

// dsn turns db_path into the file URI libSQL expects.
func (c Config) dsn() string {
	if filepath.IsAbs(c.DBPath) || !hasScheme(c.DBPath) {
		return "file:" + c.DBPath
	}
	return c.DBPath
}

func hasScheme(path string) bool {
	for i := 0; i < len(path); i++ {
		switch c := path[i]; {
		case c == ':':
			return i > 0
		case c == '/' || c == '\\' || c == '.':
			return false
		}
	}
	return false
}

func saveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func parseSelector(s string) (schema.Selector, error) {
	switch schema.Selector(s) {
	case "", schema.SelectorDependsOn:
		return schema.SelectorDependsOn, nil
	case schema.SelectorDisappearOn:
		return schema.SelectorDisappearOn, nil
	default:
		return "", fmt.Errorf("selector must be dependsOn or disappearOn, got %q", s)
	}
}
