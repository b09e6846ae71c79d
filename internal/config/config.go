package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secrets holds the values read from the environment. The API key is the only
// environment variable the client consults.
type Secrets struct {
	APIKey string `env:"GOOGLE_API_KEY,required,notEmpty"`
}

type AppConfig struct {
	APIKey        string
	Endpoint      string
	PrimaryModel  string
	FallbackModel string
	Timeout       time.Duration
	ExportDir     string
	LogFile       string
	GlamourStyle  string
}

func Parse() (AppConfig, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:], ".env")
}

// ParseArgs reads flags from args into fs and the API key from the
// environment, loading dotenvPath first when it exists.
func ParseArgs(fset *flag.FlagSet, args []string, dotenvPath string) (AppConfig, error) {
	var cfg AppConfig

	fset.StringVar(&cfg.Endpoint, "endpoint", DefaultEndpoint, "generation endpoint base URL")
	fset.StringVar(&cfg.PrimaryModel, "model", DefaultPrimaryModel, "primary model identifier")
	fset.StringVar(&cfg.FallbackModel, "fallback-model", DefaultFallbackModel, "model retried once when the primary reports quota exhaustion")
	fset.DurationVar(&cfg.Timeout, "timeout", 0, "HTTP timeout per request (0 disables)")
	fset.StringVar(&cfg.ExportDir, "export-dir", "", "directory for transcript exports (default: cwd)")
	fset.StringVar(&cfg.LogFile, "log-file", "", "write JSON logs to this file")
	fset.StringVar(&cfg.GlamourStyle, "style", DefaultGlamourStyle, "glamour style for the transcript")
	if err := fset.Parse(args); err != nil {
		return cfg, err
	}

	if err := loadDotenv(dotenvPath); err != nil {
		return cfg, err
	}

	secrets, err := env.ParseAs[Secrets]()
	if err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.APIKey = secrets.APIKey

	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.PrimaryModel) == "" || strings.TrimSpace(cfg.FallbackModel) == "" {
		return cfg, errors.New("model identifiers must not be empty")
	}
	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("invalid timeout %s", cfg.Timeout)
	}

	if cfg.ExportDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, fmt.Errorf("resolve cwd: %w", err)
		}
		cfg.ExportDir = wd
	}
	cfg.ExportDir = filepath.Clean(cfg.ExportDir)

	return cfg, nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: want http(s)://host", endpoint)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid endpoint %q: query and fragment not allowed", endpoint)
	}
	return nil
}

// loadDotenv never overrides variables that are already set.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
