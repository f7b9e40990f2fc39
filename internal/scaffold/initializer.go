// Package scaffold creates the starter files for a new LemOS instance.
package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/lemos-dev/lemos/internal/config"
	"github.com/lemos-dev/lemos/internal/printer"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// CheckExisting returns an error when a config file already exists at path,
// so init does not silently clobber a configured instance.
func CheckExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s\n\nUse 'lemos init --force' to overwrite it", path)
	}
	return nil
}

// Initialize writes the starter config file to path. With force set, an
// existing file is overwritten.
func Initialize(path string, force bool) error {
	if !force {
		if err := CheckExisting(path); err != nil {
			return err
		}
	}

	content, err := templatesFS.ReadFile("templates/lemos.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must always produce a config that Load accepts.
	if err := validateCreated(path); err != nil {
		return err
	}

	return nil
}

// validateCreated parses the written file back through the config loader.
func validateCreated(path string) error {
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("generated config failed validation: %w", err)
	}
	return nil
}

// PrintSuccess reports what was created and how to proceed.
func PrintSuccess(path string) {
	printer.Success("Initialized LemOS config: %s", path)
	printer.Println()
	printer.Step("Review the config and adjust the Redis address if needed")
	printer.Step("Start the instance with 'lemos run'")
}

// TemplateConfig parses the embedded template. Used by tests to keep the
// template and the config schema in sync.
func TemplateConfig() (*config.Config, error) {
	content, err := templatesFS.ReadFile("templates/lemos.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config template: %w", err)
	}
	return &cfg, nil
}
