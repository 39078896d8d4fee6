package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "clipsync.yaml"

// HomeEnvVar overrides the data directory when set. Everything lives under
// the data directory: config file, history database, cache files, logs.
const HomeEnvVar = "CLIPSYNC_HOME"

type Config struct {
	EndpointURL      string `yaml:"endpoint_url"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	DeviceName       string `yaml:"device_name"`
	AutoSync         bool   `yaml:"auto_sync"`
	SyncIntervalMs   int    `yaml:"sync_interval_ms"`
	RetentionCount   int    `yaml:"retention_count"`
	AutoSaveFiles    bool   `yaml:"auto_save_files"`
	DownloadLocation string `yaml:"download_location"`
	CacheMaxAgeHours int    `yaml:"cache_max_age_hours"`
	TimeoutMs        int    `yaml:"timeout_ms"`
	TrustInvalidCert bool   `yaml:"trust_invalid_certs"`
}

// DefaultConfig returns a config populated with workable defaults.
// DeviceName falls back to the OS hostname.
func DefaultConfig() *Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown-device"
	}
	return &Config{
		EndpointURL:      "",
		DeviceName:       host,
		AutoSync:         true,
		SyncIntervalMs:   3000,
		RetentionCount:   50,
		AutoSaveFiles:    false,
		DownloadLocation: "",
		CacheMaxAgeHours: 168,
		TimeoutMs:        10000,
	}
}

// DataDir returns the directory holding the config file, history DB,
// cache files and logs. CLIPSYNC_HOME wins over ~/.clipsync.
func DataDir() string {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		wd, _ := os.Getwd()
		return filepath.Join(wd, ".clipsync")
	}
	return filepath.Join(home, ".clipsync")
}

func GetConfigPath() string {
	return filepath.Join(DataDir(), ConfigFileName)
}

func ConfigExists() bool {
	_, err := os.Stat(GetConfigPath())
	return !os.IsNotExist(err)
}

// CacheDir is where downloaded/captured binary payloads are materialized.
func (c *Config) CacheDir() string {
	return filepath.Join(DataDir(), "cache")
}

func (c *Config) DBPath() string {
	return filepath.Join(DataDir(), "history.db")
}

func (c *Config) LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadDotEnv reads KEY=VALUE lines from a .env file next to the config.
// Missing file is not an error.
func loadDotEnv(dir string) map[string]string {
	out := map[string]string{}
	data, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		return out
	}
	for _, ln := range strings.Split(string(data), "\n") {
		l := strings.TrimSpace(ln)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	return out
}

// interpolateEnv replaces ${VAR} references in the raw config text.
// OS environment takes priority over the .env file; unresolved
// references are left as-is so validation can flag them.
func interpolateEnv(text string, dotEnv map[string]string) string {
	return envPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := envPattern.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		if v, ok := dotEnv[key]; ok {
			return v
		}
		return m
	})
}

// ValidateConfig validates required fields and value ranges, collecting
// every problem instead of stopping at the first one.
func ValidateConfig(cfg *Config) error {
	var problems []string

	if strings.TrimSpace(cfg.EndpointURL) == "" {
		problems = append(problems, "endpoint_url is required")
	} else if !strings.HasPrefix(cfg.EndpointURL, "http://") && !strings.HasPrefix(cfg.EndpointURL, "https://") {
		problems = append(problems, fmt.Sprintf("endpoint_url must start with http:// or https://, got %q", cfg.EndpointURL))
	}
	if strings.Contains(cfg.EndpointURL, "${") {
		problems = append(problems, "endpoint_url contains an unresolved ${VAR} reference")
	}
	if cfg.SyncIntervalMs <= 0 {
		problems = append(problems, "sync_interval_ms must be > 0")
	}
	if cfg.RetentionCount <= 0 {
		problems = append(problems, "retention_count must be > 0")
	}
	if cfg.CacheMaxAgeHours <= 0 {
		problems = append(problems, "cache_max_age_hours must be > 0")
	}
	if cfg.TimeoutMs <= 0 {
		problems = append(problems, "timeout_ms must be > 0")
	}
	if cfg.AutoSaveFiles && strings.TrimSpace(cfg.DownloadLocation) == "" {
		problems = append(problems, "download_location is required when auto_save_files is enabled")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// LoadAndValidateConfig loads clipsync.yaml from the data directory,
// interpolates ${VAR} references from the OS environment and an optional
// .env file, and validates the result.
func LoadAndValidateConfig() (*Config, error) {
	if !ConfigExists() {
		return nil, errors.New("clipsync.yaml not found. Please run 'clipsync init' first")
	}

	data, err := os.ReadFile(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	rendered := interpolateEnv(string(data), loadDotEnv(DataDir()))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(rendered), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefaultConfig writes a commented starter config. It refuses to
// overwrite an existing file.
func WriteDefaultConfig() (string, error) {
	path := GetConfigPath()
	if ConfigExists() {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(DataDir(), 0755); err != nil {
		return path, fmt.Errorf("failed to create data directory: %v", err)
	}

	cfg := DefaultConfig()
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return path, fmt.Errorf("failed to render default config: %v", err)
	}
	header := "# clipsync configuration\n" +
		"# endpoint_url: base URL of the shared clipboard store, e.g. https://example.com/clip\n" +
		"# username/password: optional Basic-Auth credentials (supports ${VAR} from env or .env)\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0644); err != nil {
		return path, fmt.Errorf("failed to write config: %v", err)
	}
	return path, nil
}
