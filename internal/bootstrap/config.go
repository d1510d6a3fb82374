package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/rohittupe/prediction-service/config"
)

const (
	// EnvFilesVar lists dotenv files to load, comma separated. Defaults to ".env".
	EnvFilesVar    = "PREDICTION_ENV_FILES"
	defaultEnvFile = ".env"
)

// InitLogger installs a JSON logger on stdout at level as the slog default.
func InitLogger(level slog.Level) *slog.Logger {
	return initLogger(os.Stdout, level)
}

func initLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads the dotenv files named by EnvFilesVar, then parses the environment.
// Variables already set in the process take precedence over file values.
func LoadConfig() (config.AppConfig, error) {
	if err := loadEnvFiles(envFiles()); err != nil {
		return config.AppConfig{}, err
	}
	return ParseConfig()
}

func envFiles() []string {
	raw := strings.TrimSpace(os.Getenv(EnvFilesVar))
	if raw == "" {
		return []string{defaultEnvFile}
	}
	var files []string
	for f := range strings.SplitSeq(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// loadEnvFiles skips files that do not exist.
func loadEnvFiles(files []string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load env file %s: %w", f, err)
	}
	return nil
}

// ParseConfig builds the config from the process environment and checks it.
func ParseConfig() (config.AppConfig, error) {
	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
