package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bhandras/delight-chat/internal/session"
)

const (
	defaultServerURL = "http://localhost:3005"
	defaultLogLevel  = "info"

	configFileName = "config.yaml"
	envFileName    = ".env"
)

// Config is the CLI configuration.
type Config struct {
	// ServerURL is the base URL of the chat backend.
	ServerURL string `yaml:"server_url"`
	// SocketPath is the Socket.IO endpoint path.
	SocketPath string `yaml:"socket_path"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Debug forces the debug log level.
	Debug bool `yaml:"debug"`

	// Session holds the engine tunables.
	Session Tunables `yaml:"session"`

	// HomeDir is the directory where local state is stored.
	HomeDir string `yaml:"-"`
	// TokenFile is the path to the access token file.
	TokenFile string `yaml:"-"`
	// KeysDir holds one encryption key file per channel.
	KeysDir string `yaml:"-"`
}

// Tunables are the session engine's timing and paging knobs.
type Tunables struct {
	PageSize         int           `yaml:"page_size"`
	ThreadPageSize   int           `yaml:"thread_page_size"`
	LoadMoreDebounce time.Duration `yaml:"load_more_debounce"`
	ReadThrottle     time.Duration `yaml:"read_throttle"`
	PublishThrottle  time.Duration `yaml:"publish_throttle"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// Load builds the configuration from defaults, <home>/config.yaml,
// <home>/.env and the environment, later sources winning.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	chatHome := os.Getenv("CHAT_HOME_DIR")
	if chatHome == "" {
		chatHome = filepath.Join(homeDir, ".chatsession")
	}
	if err := os.MkdirAll(chatHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chat home: %w", err)
	}

	cfg := defaults(chatHome)
	if err := cfg.loadFile(filepath.Join(chatHome, configFileName)); err != nil {
		return nil, err
	}

	dotenv, err := readDotenv(filepath.Join(chatHome, envFileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(envLookup(dotenv)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults(home string) *Config {
	sc := session.DefaultConfig()
	return &Config{
		ServerURL: defaultServerURL,
		LogLevel:  defaultLogLevel,
		Session: Tunables{
			PageSize:         sc.PageSize,
			ThreadPageSize:   sc.ThreadPageSize,
			LoadMoreDebounce: sc.LoadMoreDebounce,
			ReadThrottle:     sc.ReadThrottle,
			PublishThrottle:  sc.PublishThrottle,
			RequestTimeout:   sc.RequestTimeout,
		},
		HomeDir:   home,
		TokenFile: filepath.Join(home, "access.token"),
		KeysDir:   filepath.Join(home, "keys"),
	}
}

// loadFile overlays the YAML file at path. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vals, nil
}

// envLookup prefers the real environment over the .env file.
func envLookup(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return dotenv[key]
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("CHAT_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := getenv("CHAT_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := getenv("CHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenvFirst(getenv, "CHAT_DEBUG", "DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHAT_PAGE_SIZE", &c.Session.PageSize},
		{"CHAT_THREAD_PAGE_SIZE", &c.Session.ThreadPageSize},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s %q (expected a positive integer)", e.key, v)
		}
		*e.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHAT_LOAD_MORE_DEBOUNCE", &c.Session.LoadMoreDebounce},
		{"CHAT_READ_THROTTLE", &c.Session.ReadThrottle},
		{"CHAT_PUBLISH_THROTTLE", &c.Session.PublishThrottle},
		{"CHAT_REQUEST_TIMEOUT", &c.Session.RequestTimeout},
	}
	for _, e := range durations {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %s %q (expected a duration such as 500ms)", e.key, v)
		}
		*e.dst = d
	}
	return nil
}

// EffectiveLogLevel returns the log level, forced to debug when Debug is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// SessionConfig converts the tunables to the engine's configuration.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		PageSize:         c.Session.PageSize,
		ThreadPageSize:   c.Session.ThreadPageSize,
		LoadMoreDebounce: c.Session.LoadMoreDebounce,
		ReadThrottle:     c.Session.ReadThrottle,
		PublishThrottle:  c.Session.PublishThrottle,
		RequestTimeout:   c.Session.RequestTimeout,
	}
}

// Save writes the file-backed settings to <home>/config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.HomeDir, 0700); err != nil {
		return fmt.Errorf("failed to create chat home: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(c.HomeDir, configFileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func getenvFirst(getenv func(string) string, primary, fallback string) string {
	if val := getenv(primary); val != "" {
		return val
	}
	return getenv(fallback)
}
