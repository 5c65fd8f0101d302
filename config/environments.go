package config

// Deployment environments as constants to prevent typos
const (
	// EnvironmentProduction represents the production environment
	EnvironmentProduction = "production"

	// EnvironmentStaging represents the staging environment
	EnvironmentStaging = "staging"

	// EnvironmentDevelopment represents the development environment
	EnvironmentDevelopment = "development"

	// EnvironmentPRPreview represents PR preview environments
	EnvironmentPRPreview = "pr-preview"

	// EnvironmentTesting represents testing environments
	EnvironmentTesting = "testing"
)

// ValidEnvironments returns a list of all valid environment names
func ValidEnvironments() []string {
	return []string{
		EnvironmentProduction,
		EnvironmentStaging,
		EnvironmentDevelopment,
		EnvironmentPRPreview,
		EnvironmentTesting,
	}
}

// IsValidEnvironment checks if the given environment name is valid
func IsValidEnvironment(env string) bool {
	for _, validEnv := range ValidEnvironments() {
		if env == validEnv {
			return true
		}
	}
	return false
}

// IsProduction reports whether env is the production environment. GitHub
// deployments created for it are marked as production deployments.
func IsProduction(env string) bool {
	return env == EnvironmentProduction
}

// IsTransient reports whether deployments to env are short-lived.
func IsTransient(env string) bool {
	return env == EnvironmentPRPreview || env == EnvironmentTesting
}
