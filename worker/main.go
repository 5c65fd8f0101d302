package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/OfficeDev/teams-toolkit-sub012/activities"
	"github.com/OfficeDev/teams-toolkit-sub012/bootstrap"
	"github.com/OfficeDev/teams-toolkit-sub012/config"
	githubClient "github.com/OfficeDev/teams-toolkit-sub012/github"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
	"github.com/OfficeDev/teams-toolkit-sub012/workflows"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := logging.ComponentLogger("worker")

	logger.Info().
		Str("environment", cfg.App.Environment).
		Str("temporal_host", cfg.Temporal.HostPort).
		Str("task_queue", cfg.Temporal.TaskQueue).
		Bool("github_reporting", cfg.GitHub.Enabled()).
		Bool("aad_deploy_only", cfg.Azure.AADDeployOnly).
		Msg("Starting deployment worker")

	// Create Temporal client
	temporalClient, err := createTemporalClient(cfg.Temporal)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Temporal client")
	}
	defer temporalClient.Close()

	services, err := bootstrap.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Azure services")
	}

	// Create worker
	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.WorkerOptions.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.WorkerOptions.MaxConcurrentWorkflowTaskExecutionSize,
		EnableLoggingInReplay:                  cfg.Temporal.WorkerOptions.EnableLoggingInReplay,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.ComputeDeployWorkflow)
	w.RegisterWorkflow(workflows.TemplateBatchWorkflow)

	// Register activities
	w.RegisterActivity(activities.NewDeployActivities(services.Driver, services.Deployer))

	if cfg.GitHub.Enabled() {
		githubFactory := githubClient.NewClientFactory(cfg.GitHub, cfg.Secrets.GitHubPrivateKey, services.HTTP.Transport, logging.GitHubLogger())
		w.RegisterActivity(activities.NewGitHubActivities(githubFactory))
		logger.Info().Msg("GitHub App authentication configured - installation IDs will be resolved dynamically per organization")
	} else {
		// Workflows carrying a GitHub reference still complete; the reporting
		// activities fail and are logged.
		logger.Warn().Msg("GITHUB_APP_ID not set, GitHub deployment reporting is disabled")
	}

	logger.Info().Msg("Starting Temporal worker")

	// Handle graceful shutdown
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Run(worker.InterruptCh())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal().Err(err).Msg("Worker error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
		w.Stop()
	}

	logger.Info().Msg("Worker stopped gracefully")
}

func createTemporalClient(cfg config.TemporalConfig) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}

	return client.Dial(options)
}
