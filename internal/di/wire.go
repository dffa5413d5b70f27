package di

import (
	"context"
	"fmt"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/rs/zerolog"
)

// Wire builds the full container: databases, repositories, services and jobs.
// The scheduler is created but not started.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if err := InitializeRepositories(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(context.Background(), container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return container, jobs, nil
}
