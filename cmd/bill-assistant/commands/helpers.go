package commands

import (
	"fmt"

	"github.com/spherical/bill-assistant/cmd/bill-assistant/ui"
	"github.com/spherical/bill-assistant/internal/config"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/pkg/assistant"
)

// loadConfig reads the config file named by --config plus environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

// newInteractiveClient builds a client whose logs stay out of the way of terminal output.
func newInteractiveClient() (*assistant.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      ui.Err,
		ServiceName: cfg.Observability.ServiceName,
		NoColor:     noColor,
	})

	client, err := assistant.NewClientWithConfig(cfg, assistant.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}
