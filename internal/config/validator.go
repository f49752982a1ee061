package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rohankatakam/brapikg/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextBuild - brapikg build needs the data dir, output dir and any enabled sink
	ValidationContextBuild ValidationContext = "build"
	// ValidationContextCount - brapikg count only reads the data dir
	ValidationContextCount ValidationContext = "count"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ! %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextCount:
		c.validateData(result)
	case ValidationContextBuild:
		c.validateData(result)
		c.validateOutput(result)
		if c.Neo4j.Enabled {
			c.validateNeo4j(result, true)
		}
		if c.Staging.Enabled {
			c.validateStaging(result)
		}
	case ValidationContextAll:
		c.validateData(result)
		c.validateOutput(result)
		c.validateNeo4j(result, c.Neo4j.Enabled)
		c.validateStaging(result)
		c.validateLog(result)
	default:
		result.AddError("unknown validation context %q", ctx)
	}

	return result
}

// ValidateOrError validates configuration and returns a config error if invalid
func (c *Config) ValidateOrError(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

func (c *Config) validateData(result *ValidationResult) {
	if c.Data.Dir == "" {
		result.AddError("BRAPI_DATA_DIR is required but not set")
		return
	}

	info, err := os.Stat(c.Data.Dir)
	switch {
	case err != nil:
		result.AddError("data directory %s is not readable: %v", c.Data.Dir, err)
	case !info.IsDir():
		result.AddError("data directory %s is not a directory", c.Data.Dir)
	}

	for name, file := range map[string]string{
		"trial_file":     c.Data.TrialFile,
		"study_file":     c.Data.StudyFile,
		"germplasm_file": c.Data.GermplasmFile,
	} {
		if file == "" {
			result.AddWarning("data.%s is not set, will use default", name)
		}
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	if c.Output.Dir == "" {
		result.AddError("BRAPIKG_OUTPUT_DIR is required but not set")
	}

	if utf8.RuneCountInString(c.Output.Delimiter) != 1 {
		result.AddError("output.delimiter must be a single character, got %q", c.Output.Delimiter)
	}
	if utf8.RuneCountInString(c.Output.ArrayDelimiter) != 1 {
		result.AddError("output.array_delimiter must be a single character, got %q", c.Output.ArrayDelimiter)
	}
	if c.Output.Delimiter != "" && c.Output.Delimiter == c.Output.ArrayDelimiter {
		result.AddError("output.delimiter and output.array_delimiter must differ")
	}

	if c.Output.Database == "" {
		result.AddWarning("output.database is not set, will use 'neo4j' as default")
	}
}

func (c *Config) validateNeo4j(result *ValidationResult, required bool) {
	if c.Neo4j.URI == "" {
		if required {
			result.AddError("NEO4J_URI is required but not set")
		} else {
			result.AddWarning("NEO4J_URI is not set")
		}
	} else if u, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	} else {
		switch u.Scheme {
		case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
		default:
			result.AddError("NEO4J_URI has unsupported scheme %q", u.Scheme)
		}
	}

	if c.Neo4j.User == "" {
		if required {
			result.AddError("NEO4J_USER is required but not set")
		} else {
			result.AddWarning("NEO4J_USER is not set")
		}
	}

	if c.Neo4j.Password == "" {
		if required {
			result.AddError("NEO4J_PASSWORD is required but not set. Set it via environment variable or .env file.")
		} else {
			result.AddWarning("NEO4J_PASSWORD is not set")
		}
	} else if c.Neo4j.Password == "neo4j" || c.Neo4j.Password == "password" {
		result.AddWarning("NEO4J_PASSWORD is set to a very common password (%s)", c.Neo4j.Password)
	}

	if c.Neo4j.RateLimit < 0 {
		result.AddWarning("neo4j.rate_limit is negative, batches will not be rate limited")
	}

	if c.Neo4j.Database == "" {
		result.AddWarning("NEO4J_DATABASE is not set, will use 'neo4j' as default")
	}
}

func (c *Config) validateStaging(result *ValidationResult) {
	switch c.Staging.Driver {
	case "sqlite3":
		if c.Staging.DSN == "" {
			result.AddError("STAGING_DSN is required but not set")
		}
	case "postgres", "pgx":
		if c.Staging.DSN == "" {
			result.AddError("STAGING_DSN is required but not set")
		} else if !strings.HasPrefix(c.Staging.DSN, "postgres://") && !strings.HasPrefix(c.Staging.DSN, "postgresql://") {
			result.AddError("STAGING_DSN must start with postgres:// or postgresql://")
		} else if strings.Contains(c.Staging.DSN, "sslmode=disable") {
			result.AddWarning("STAGING_DSN has sslmode=disable")
		}
	default:
		result.AddError("STAGING_DRIVER must be sqlite3, postgres or pgx, got %q", c.Staging.Driver)
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.AddWarning("LOG_LEVEL %q is not recognized, will use info", c.Log.Level)
	}
}
