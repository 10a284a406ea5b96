package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/schemaflow/schemaflow/cli/internal/version"
)

var AppFs = afero.NewOsFs()

// Config holds the application configuration
type Config struct {
	SchemaPath    string
	MigrationsDir string
	BackupDir     string
	BackupDays    int
	DatabaseURL   string
	Provider      string
	Database      string
}

// LoadConfig loads configuration from various sources
func LoadConfig() (*Config, error) {
	// Find home directory
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	// Set config file paths
	viper.SetConfigName(".schemaflow")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "schemaflow"))

	// Set environment variable prefix
	viper.SetEnvPrefix("SCHEMAFLOW")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("schema_path", "schema.flow")
	viper.SetDefault("migrations_dir", "migrations")
	viper.SetDefault("backup_dir", "backups")
	viper.SetDefault("backup_days", 30)

	// Try to read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Load .env file if it exists
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	// Load .env.local if it exists (higher priority)
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	if required := viper.GetString("requires_version"); required != "" {
		if err := checkRequiredVersion(required); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		SchemaPath:    viper.GetString("schema_path"),
		MigrationsDir: viper.GetString("migrations_dir"),
		BackupDir:     viper.GetString("backup_dir"),
		BackupDays:    viper.GetInt("backup_days"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Provider:      viper.GetString("provider"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = viper.GetString("database_url")
	}
	if cfg.Provider == "" {
		cfg.Provider = inferProvider(cfg.DatabaseURL)
	}
	cfg.Database = databaseName(cfg.DatabaseURL, cfg.Provider)
	return cfg, nil
}

// checkRequiredVersion enforces a requires_version constraint from the config
// file, so a project can pin the minimum CLI it was written against.
func checkRequiredVersion(constraint string) error {
	current, err := goversion.NewVersion(version.Version)
	if err != nil {
		return fmt.Errorf("invalid version format: %w", err)
	}
	required, err := goversion.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid requires_version constraint %q: %w", constraint, err)
	}
	if !required.Check(current) {
		return fmt.Errorf("this project requires schemaflow %s, current version is %s", constraint, version.Version)
	}
	return nil
}

// inferProvider guesses the provider from a database URL scheme.
func inferProvider(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgresql"
	case strings.HasPrefix(url, "mysql://"):
		return "mysql"
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		return "sqlite"
	default:
		return ""
	}
}

// databaseName extracts the database name from the URL for backup file names.
func databaseName(url, provider string) string {
	if url == "" {
		return "database"
	}
	if provider == "sqlite" {
		base := filepath.Base(strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "file:"))
		if i := strings.IndexByte(base, '?'); i > 0 {
			base = base[:i]
		}
		return strings.TrimSuffix(strings.TrimSuffix(base, ".db"), ".sqlite")
	}
	trimmed := url
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if i := strings.IndexByte(trimmed, '?'); i > 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "database"
	}
	return trimmed
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config) error {
	viper.Set("schema_path", cfg.SchemaPath)
	viper.Set("migrations_dir", cfg.MigrationsDir)
	viper.Set("backup_dir", cfg.BackupDir)
	viper.Set("backup_days", cfg.BackupDays)
	viper.Set("provider", cfg.Provider)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(home, ".config", "schemaflow")
	if err := AppFs.MkdirAll(configPath, 0755); err != nil {
		return err
	}

	configFile := filepath.Join(configPath, ".schemaflow.yaml")
	return viper.WriteConfigAs(configFile)
}
