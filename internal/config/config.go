package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings
type Config struct {
	// BrAPI export location
	Data DataConfig `yaml:"data" mapstructure:"data"`

	// neo4j-admin import output
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Live Neo4j load
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`

	// Relational staging
	Staging StagingConfig `yaml:"staging" mapstructure:"staging"`

	// Logging
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

type DataConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	TrialFile     string `yaml:"trial_file" mapstructure:"trial_file"`
	StudyFile     string `yaml:"study_file" mapstructure:"study_file"`
	GermplasmFile string `yaml:"germplasm_file" mapstructure:"germplasm_file"`
}

type OutputConfig struct {
	Dir            string `yaml:"dir" mapstructure:"dir"`
	Delimiter      string `yaml:"delimiter" mapstructure:"delimiter"`
	ArrayDelimiter string `yaml:"array_delimiter" mapstructure:"array_delimiter"`
	Database       string `yaml:"database" mapstructure:"database"`
	AdminBin       string `yaml:"admin_bin" mapstructure:"admin_bin"`
}

type Neo4jConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`

	SmallBatches bool    `yaml:"small_batches" mapstructure:"small_batches"` // Lower transaction memory
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`       // Batch queries per second, 0 = unlimited
}

type StagingConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver  string `yaml:"driver" mapstructure:"driver"` // "sqlite3", "postgres", "pgx"
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:           "brapiDataPopyWheat",
			TrialFile:     "trial.json",
			StudyFile:     "study.json",
			GermplasmFile: "germplasm.json",
		},
		Output: OutputConfig{
			Dir:            "brapikg-out",
			Delimiter:      ";",
			ArrayDelimiter: "|",
			Database:       "neo4j",
			AdminBin:       "neo4j-admin",
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		Staging: StagingConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join("brapikg-out", "staging.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file, .env files and the environment.
// An empty path searches ./config.yaml, ./.brapikg/config.yaml and ~/.brapikg/config.yaml.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// BRAPIKG_NEO4J_URI -> neo4j.uri
	v.SetEnvPrefix("BRAPIKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(".brapikg")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".brapikg"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can resolve it
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"data.dir":               cfg.Data.Dir,
		"data.trial_file":        cfg.Data.TrialFile,
		"data.study_file":        cfg.Data.StudyFile,
		"data.germplasm_file":    cfg.Data.GermplasmFile,
		"output.dir":             cfg.Output.Dir,
		"output.delimiter":       cfg.Output.Delimiter,
		"output.array_delimiter": cfg.Output.ArrayDelimiter,
		"output.database":        cfg.Output.Database,
		"output.admin_bin":       cfg.Output.AdminBin,
		"neo4j.enabled":          cfg.Neo4j.Enabled,
		"neo4j.uri":              cfg.Neo4j.URI,
		"neo4j.user":             cfg.Neo4j.User,
		"neo4j.password":         cfg.Neo4j.Password,
		"neo4j.database":         cfg.Neo4j.Database,
		"neo4j.small_batches":    cfg.Neo4j.SmallBatches,
		"neo4j.rate_limit":       cfg.Neo4j.RateLimit,
		"staging.enabled":        cfg.Staging.Enabled,
		"staging.driver":         cfg.Staging.Driver,
		"staging.dsn":            cfg.Staging.DSN,
		"log.level":              cfg.Log.Level,
		"log.file":               cfg.Log.File,
		"log.json":               cfg.Log.JSON,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// loadEnvFiles loads .env files; variables already set win over file values
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("BRAPI_DATA_DIR"); dir != "" {
		cfg.Data.Dir = expandPath(dir)
	}
	if dir := os.Getenv("BRAPIKG_OUTPUT_DIR"); dir != "" {
		cfg.Output.Dir = expandPath(dir)
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}
	if enabled := os.Getenv("NEO4J_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Neo4j.Enabled = b
		}
	}

	if driver := os.Getenv("STAGING_DRIVER"); driver != "" {
		cfg.Staging.Driver = driver
	}
	if dsn := os.Getenv("STAGING_DSN"); dsn != "" {
		cfg.Staging.DSN = dsn
	}
	if enabled := os.Getenv("STAGING_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Staging.Enabled = b
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// YAML renders the configuration with the Neo4j password masked
func (c *Config) YAML() (string, error) {
	masked := *c
	if masked.Neo4j.Password != "" {
		masked.Neo4j.Password = "********"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
