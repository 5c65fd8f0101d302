package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/OfficeDev/teams-toolkit-sub012/secrets"
)

// Config holds all configuration for the application
type Config struct {
	// Temporal Configuration
	Temporal TemporalConfig `envPrefix:"TEMPORAL_"`

	// GitHub Configuration (optional, enables deployment status reporting)
	GitHub GitHubConfig `envPrefix:"GITHUB_"`

	// Azure Configuration
	Azure AzureConfig `envPrefix:"AZURE_"`

	// Deployment tuning
	Deploy DeployConfig `envPrefix:"DEPLOY_"`

	// Application Configuration
	App AppConfig `envPrefix:"APP_"`

	// Secrets (loaded from files)
	Secrets SecretsConfig
}

type TemporalConfig struct {
	HostPort      string        `env:"HOST" envDefault:"localhost:7233"`
	Namespace     string        `env:"NAMESPACE" envDefault:"default"`
	TaskQueue     string        `env:"TASK_QUEUE" envDefault:"cloud-deployments"`
	WorkerOptions WorkerOptions `envPrefix:"WORKER_"`
}

type WorkerOptions struct {
	MaxConcurrentActivityExecutionSize     int  `env:"MAX_CONCURRENT_ACTIVITY" envDefault:"20"`
	MaxConcurrentWorkflowTaskExecutionSize int  `env:"MAX_CONCURRENT_WORKFLOW" envDefault:"10"`
	EnableLoggingInReplay                  bool `env:"ENABLE_LOGGING_REPLAY" envDefault:"false"`
}

type GitHubConfig struct {
	// GitHub App ID. Zero disables deployment status reporting.
	AppID int64 `env:"APP_ID"`

	// Set GITHUB_ENTERPRISE_URL to use Enterprise GitHub
	EnterpriseURL string `env:"ENTERPRISE_URL"`
}

// Enabled reports whether a GitHub App is configured.
func (c GitHubConfig) Enabled() bool {
	return c.AppID != 0
}

type AzureConfig struct {
	TenantID            string `env:"TENANT_ID"`
	ManagementScope     string `env:"MANAGEMENT_SCOPE" envDefault:"https://management.azure.com/.default"`
	SCMHostSuffix       string `env:"SCM_HOST_SUFFIX" envDefault:"scm.azurewebsites.net"`
	BlobHostSuffix      string `env:"BLOB_HOST_SUFFIX" envDefault:"blob.core.windows.net"`
	StaticSiteContainer string `env:"STATIC_SITE_CONTAINER" envDefault:"$web"`

	// Forbid the basic auth fallback of zip deploy. TEAMSFX_AAD_DEPLOY_ONLY
	// is honored as well.
	AADDeployOnly bool `env:"AAD_DEPLOY_ONLY" envDefault:"false"`
}

type DeployConfig struct {
	UploadAttempts   int           `env:"UPLOAD_ATTEMPTS" envDefault:"2"`
	UploadRetryDelay time.Duration `env:"UPLOAD_RETRY_DELAY" envDefault:"1s"`
	UploadTimeout    time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"10m"`
	PollAttempts     int           `env:"POLL_ATTEMPTS" envDefault:"120"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`

	TempFolder string `env:"TEMP_FOLDER" envDefault:".deployment"`
	CacheFile  string `env:"CACHE_FILE" envDefault:"deployment.zip"`

	BicepPath              string        `env:"BICEP_PATH" envDefault:"bicep"`
	ARMProgressInterval    time.Duration `env:"ARM_PROGRESS_INTERVAL" envDefault:"10s"`
	ARMProgressMaxFailures int           `env:"ARM_PROGRESS_MAX_FAILURES" envDefault:"4"`
	ResolveMaxDepth        int           `env:"RESOLVE_MAX_DEPTH" envDefault:"8"`
	ResolveMaxNodes        int           `env:"RESOLVE_MAX_NODES" envDefault:"200"`
}

type AppConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
}

type SecretsConfig struct {
	GitHubPrivateKey []byte
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	var unprefixed struct {
		AADDeployOnly bool `env:"TEAMSFX_AAD_DEPLOY_ONLY"`
	}
	if err := env.Parse(&unprefixed); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	cfg.Azure.AADDeployOnly = cfg.Azure.AADDeployOnly || unprefixed.AADDeployOnly

	if cfg.GitHub.Enabled() {
		if err := loadSecrets(cfg); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads secrets from files
func loadSecrets(cfg *Config) error {
	secretsPath := secrets.GetSecretPath("SECRETS_PATH", ".private")

	// GitHub App private key, inline or from a file
	privateKey, err := secrets.Load("GITHUB_PRIVATE_KEY", "GITHUB_PRIVATE_KEY_PATH", secretsPath+"/github-app.private-key.pem")
	if err != nil {
		return fmt.Errorf("failed to load GitHub App private key: %w", err)
	}
	cfg.Secrets.GitHubPrivateKey = privateKey

	return nil
}

func validateConfig(cfg *Config) error {
	if !IsValidEnvironment(cfg.App.Environment) {
		return fmt.Errorf("unknown environment %q", cfg.App.Environment)
	}
	if cfg.GitHub.Enabled() && len(cfg.Secrets.GitHubPrivateKey) == 0 {
		return fmt.Errorf("GitHub App private key is required")
	}
	if cfg.Deploy.UploadAttempts < 1 {
		return fmt.Errorf("DEPLOY_UPLOAD_ATTEMPTS must be at least 1")
	}
	if cfg.Deploy.PollAttempts < 1 {
		return fmt.Errorf("DEPLOY_POLL_ATTEMPTS must be at least 1")
	}
	if cfg.Deploy.UploadRetryDelay <= 0 || cfg.Deploy.UploadTimeout <= 0 || cfg.Deploy.PollInterval <= 0 || cfg.Deploy.ARMProgressInterval <= 0 {
		return fmt.Errorf("deploy intervals and timeouts must be positive")
	}
	if cfg.Deploy.ResolveMaxDepth < 1 || cfg.Deploy.ResolveMaxNodes < 1 {
		return fmt.Errorf("DEPLOY_RESOLVE_MAX_DEPTH and DEPLOY_RESOLVE_MAX_NODES must be at least 1")
	}
	if cfg.Deploy.CacheFile == "" || cfg.Deploy.TempFolder == "" {
		return fmt.Errorf("DEPLOY_TEMP_FOLDER and DEPLOY_CACHE_FILE must be set")
	}
	return nil
}
