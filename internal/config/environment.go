package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvironmentName = "local"

// ResolvedEnvironment represents a fully-resolved environment with
// concrete connection strings.
type ResolvedEnvironment struct {
	Name           string
	SourceURL      string
	DestinationURL string
	ModelsPath     string
	DotenvPath     string
	FromConfig     bool
	FromDotenv     bool
}

// ResolveEnvironment resolves a named environment into concrete values.
// Precedence per value: process env var > .env.<name> > dbporter.toml.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	var (
		envConfig EnvironmentConfig
		envExists bool
	)
	if config != nil && config.Environments != nil {
		if cfg, ok := config.Environments[envName]; ok {
			envConfig = cfg
			envExists = true
		}
	}

	resolved := &ResolvedEnvironment{
		Name:           envName,
		SourceURL:      envConfig.SourceURL,
		DestinationURL: envConfig.DestinationURL,
		ModelsPath:     envConfig.ModelsPath,
		FromConfig:     envExists,
	}
	if resolved.ModelsPath == "" && config != nil {
		resolved.ModelsPath = config.ModelsPath
	}

	baseDir := ""
	if config != nil {
		baseDir = config.ConfigDir()
	}
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true

		if value := values["SOURCE_URL"]; value != "" {
			resolved.SourceURL = value
		}
		if value := values["DESTINATION_URL"]; value != "" {
			resolved.DestinationURL = value
		}
		if value := values["MODELS_PATH"]; value != "" {
			resolved.ModelsPath = value
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}

	// Process environment wins over files
	if value := os.Getenv("SOURCE_URL"); value != "" {
		resolved.SourceURL = value
	}
	if value := os.Getenv("DESTINATION_URL"); value != "" {
		resolved.DestinationURL = value
	}
	if value := os.Getenv("MODELS_PATH"); value != "" {
		resolved.ModelsPath = value
	}

	if !envExists && !resolved.FromDotenv && config != nil && len(config.Environments) > 0 {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found", envName, configFileName, resolved.DotenvPath)
	}

	if resolved.ModelsPath != "" && !filepath.IsAbs(resolved.ModelsPath) && baseDir != "" {
		resolved.ModelsPath = filepath.Join(baseDir, resolved.ModelsPath)
	}

	return resolved, nil
}

// Validate checks that the environment names both connections and that
// they do not point at the same database.
func (e *ResolvedEnvironment) Validate() error {
	if e.SourceURL == "" {
		return fmt.Errorf("environment %q has no source_url", e.Name)
	}
	if e.DestinationURL == "" {
		return fmt.Errorf("environment %q has no destination_url", e.Name)
	}
	if e.SourceURL == e.DestinationURL {
		return fmt.Errorf("environment %q uses the same connection for source and destination", e.Name)
	}
	return nil
}
