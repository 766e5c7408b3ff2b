package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigDirName is the per-project directory holding config.json
	ConfigDirName = ".evalview"
	// EnvPrefix prefixes every environment override (EVALVIEW_STORE_PATH, ...)
	EnvPrefix = "EVALVIEW"

	currentVersion = 1
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config represents the complete evalview configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Store     StoreConfig     `json:"store" mapstructure:"store"`
	Artifacts ArtifactsConfig `json:"artifacts" mapstructure:"artifacts"`
	Query     QueryConfig     `json:"query" mapstructure:"query"`
	Backup    BackupConfig    `json:"backup" mapstructure:"backup"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Naming    NamingConfig    `json:"naming" mapstructure:"naming"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// StoreConfig locates the SQLite evaluation store
type StoreConfig struct {
	// Path is an explicit store path; empty means search Candidates
	Path       string   `json:"path" mapstructure:"path"`
	Table      string   `json:"table" mapstructure:"table"`
	Candidates []string `json:"candidates" mapstructure:"candidates"`
}

// ArtifactsConfig describes the JSON evaluation artifacts
type ArtifactsConfig struct {
	Dir           string   `json:"dir" mapstructure:"dir"`
	Marker        string   `json:"marker" mapstructure:"marker"`
	IdentityField string   `json:"identityField" mapstructure:"identityField"`
	KeyFields     []string `json:"keyFields" mapstructure:"keyFields"`
	PayloadField  string   `json:"payloadField" mapstructure:"payloadField"`
}

// QueryConfig contains per-view page sizes
type QueryConfig struct {
	ResultsPageSize      int `json:"resultsPageSize" mapstructure:"resultsPageSize"`
	ConversationPageSize int `json:"conversationPageSize" mapstructure:"conversationPageSize"`
}

// BackupConfig controls the pre-apply store backup
type BackupConfig struct {
	// Compression is "none" or "zstd"
	Compression string `json:"compression" mapstructure:"compression"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Host           string  `json:"host" mapstructure:"host"`
	Port           int     `json:"port" mapstructure:"port"`
	RateLimitRPS   float64 `json:"rateLimitRps" mapstructure:"rateLimitRps"`
	RateLimitBurst int     `json:"rateLimitBurst" mapstructure:"rateLimitBurst"`
	// AuthTokenHash is a bcrypt hash; empty disables auth
	AuthTokenHash string `json:"authTokenHash" mapstructure:"authTokenHash"`
}

// NamingConfig points at the display-name file. The mapping itself is not
// part of config.json because viper lower-cases map keys.
type NamingConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: currentVersion,
		Store: StoreConfig{
			Table: "evaluations",
			Candidates: []string{
				"pt_pt_conversation_evaluations.db",
				"evaluations.db",
				"model_results.db",
				"new_results.db",
			},
		},
		Artifacts: ArtifactsConfig{
			Dir:           "pt-pt-eval",
			Marker:        "pt-pt",
			IdentityField: "model_name",
			KeyFields:     []string{"prompt_id", "conversation_id"},
			PayloadField:  "raw_output",
		},
		Query: QueryConfig{
			ResultsPageSize:      50,
			ConversationPageSize: 20,
		},
		Backup: BackupConfig{
			Compression: "none",
		},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           5000,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// setDefaults registers every key so environment overrides resolve even
// when no config file exists.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.table", d.Store.Table)
	v.SetDefault("store.candidates", d.Store.Candidates)
	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("artifacts.marker", d.Artifacts.Marker)
	v.SetDefault("artifacts.identityField", d.Artifacts.IdentityField)
	v.SetDefault("artifacts.keyFields", d.Artifacts.KeyFields)
	v.SetDefault("artifacts.payloadField", d.Artifacts.PayloadField)
	v.SetDefault("query.resultsPageSize", d.Query.ResultsPageSize)
	v.SetDefault("query.conversationPageSize", d.Query.ConversationPageSize)
	v.SetDefault("backup.compression", d.Backup.Compression)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rateLimitRps", d.Server.RateLimitRPS)
	v.SetDefault("server.rateLimitBurst", d.Server.RateLimitBurst)
	v.SetDefault("server.authTokenHash", d.Server.AuthTokenHash)
	v.SetDefault("naming.file", d.Naming.File)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
}

// LoadConfig loads configuration from <root>/.evalview/config.json, then
// applies EVALVIEW_* environment overrides (a <root>/.env file is loaded first
// when present).
func LoadConfig(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Field: ".env", Message: err.Error()}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ConfigDirName))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <root>/.evalview/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != currentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if !IsIdentifier(c.Store.Table) {
		return &ConfigError{Field: "store.table", Message: "must be a plain SQL identifier"}
	}
	if c.Query.ResultsPageSize < 1 {
		return &ConfigError{Field: "query.resultsPageSize", Message: "must be at least 1"}
	}
	if c.Query.ConversationPageSize < 1 {
		return &ConfigError{Field: "query.conversationPageSize", Message: "must be at least 1"}
	}
	switch c.Backup.Compression {
	case "none", "zstd":
	default:
		return &ConfigError{Field: "backup.compression", Message: "must be 'none' or 'zstd'"}
	}
	if c.Artifacts.IdentityField == "" || c.Artifacts.PayloadField == "" || len(c.Artifacts.KeyFields) == 0 {
		return &ConfigError{Field: "artifacts", Message: "identityField, keyFields and payloadField are required"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "out of range"}
	}
	return nil
}

// IsIdentifier reports whether s can be used unquoted as a table or column name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
