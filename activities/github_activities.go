package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v58/github"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"

	"github.com/OfficeDev/teams-toolkit-sub012/config"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
)

// GitHub limits deployment status descriptions to 140 characters
const maxDescriptionLength = 140

// ClientProvider returns a GitHub client authenticated for an organization
type ClientProvider interface {
	CreateClientForOrg(ctx context.Context, org string) (*github.Client, error)
}

// GitHubActivities mirror Azure deploys as GitHub deployments
type GitHubActivities struct {
	clients ClientProvider
}

// NewGitHubActivities creates a new instance of GitHub activities
func NewGitHubActivities(clients ClientProvider) *GitHubActivities {
	return &GitHubActivities{
		clients: clients,
	}
}

// connect returns an activity logger and a client for the owner's installation.
func (a *GitHubActivities) connect(ctx context.Context, name, owner string) (zerolog.Logger, *github.Client, error) {
	info := activity.GetInfo(ctx)
	logger := logging.ActivityLogger(name, info.WorkflowExecution.ID, info.WorkflowExecution.RunID).
		With().Str("github_owner", owner).Logger()

	activity.RecordHeartbeat(ctx, "Creating GitHub client")
	client, err := a.clients.CreateClientForOrg(ctx, owner)
	if err != nil {
		return logger, nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return logger, client, nil
}

// CreateGitHubDeployment creates the GitHub deployment of an Azure deploy.
// The payload records which resource is being deployed and how.
func (a *GitHubActivities) CreateGitHubDeployment(ctx context.Context, input CreateDeploymentInput) (*CreateDeploymentResult, error) {
	logger, client, err := a.connect(ctx, "CreateGitHubDeployment", input.GithubOwner)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("github_repo", input.GithubRepo).
		Str("ref", input.Ref).
		Str("environment", input.Environment).
		Str("family", input.Family).
		Msg("Creating GitHub deployment")

	req := deploymentRequest(input, activity.GetInfo(ctx).StartedTime)

	activity.RecordHeartbeat(ctx, "Calling GitHub API")
	deployment, _, err := client.Repositories.CreateDeployment(ctx, input.GithubOwner, input.GithubRepo, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create GitHub deployment")
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}

	result := &CreateDeploymentResult{
		DeploymentID: deployment.GetID(),
		URL:          deployment.GetURL(),
		Environment:  deployment.GetEnvironment(),
	}
	logger.Info().
		Int64("deployment_id", result.DeploymentID).
		Str("url", result.URL).
		Msg("Created GitHub deployment")

	return result, nil
}

// deploymentRequest builds the GitHub deployment for input. Dry runs are
// recorded under their own task so they never count as real deploys.
func deploymentRequest(input CreateDeploymentInput, startedAt time.Time) *github.DeploymentRequest {
	payload := map[string]interface{}{
		"triggered_by": "temporal-workflow",
		"created_at":   startedAt.UTC().Format(time.RFC3339),
	}
	if input.ResourceID != "" {
		payload["resource_id"] = input.ResourceID
	}
	if input.Family != "" {
		payload["family"] = input.Family
	}
	if input.ArtifactFolder != "" {
		payload["artifact_folder"] = input.ArtifactFolder
	}
	for k, v := range input.Payload {
		payload[k] = v
	}

	task := "deploy"
	if input.DryRun {
		task = "deploy:dry-run"
		payload["dry_run"] = true
	}

	return &github.DeploymentRequest{
		Ref:                   github.String(input.Ref),
		Task:                  github.String(task),
		Environment:           github.String(input.Environment),
		Description:           github.String(truncateDescription(input.Description, maxDescriptionLength)),
		TransientEnvironment:  github.Bool(config.IsTransient(input.Environment)),
		ProductionEnvironment: github.Bool(config.IsProduction(input.Environment)),
		RequiredContexts:      &[]string{}, // Skip status checks for external deployments
		AutoMerge:             github.Bool(false),
		Payload:               payload,
	}
}

// UpdateGitHubDeploymentStatus posts a status for a GitHub deployment. A
// success status links the deployed site and the Kudu deployment log.
func (a *GitHubActivities) UpdateGitHubDeploymentStatus(ctx context.Context, input UpdateDeploymentStatusInput) error {
	logger, client, err := a.connect(ctx, "UpdateGitHubDeploymentStatus", input.GithubOwner)
	if err != nil {
		return err
	}
	logger = logger.With().
		Str("github_repo", input.GithubRepo).
		Int64("deployment_id", input.DeploymentID).
		Str("state", input.State).
		Logger()
	logger.Info().Msg("Updating GitHub deployment status")

	req := &github.DeploymentStatusRequest{
		State:        github.String(input.State),
		Description:  github.String(truncateDescription(input.Description, maxDescriptionLength)),
		AutoInactive: github.Bool(true), // Automatically mark previous deployments as inactive
	}
	if input.LogURL != "" {
		req.LogURL = github.String(input.LogURL)
	}
	if input.EnvironmentURL != "" {
		req.EnvironmentURL = github.String(input.EnvironmentURL)
	}

	activity.RecordHeartbeat(ctx, "Calling GitHub API")
	status, _, err := client.Repositories.CreateDeploymentStatus(ctx, input.GithubOwner, input.GithubRepo, input.DeploymentID, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to update GitHub deployment status")
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	logger.Info().Str("url", status.GetURL()).Msg("Updated GitHub deployment status")
	return nil
}

// truncateDescription ensures description doesn't exceed GitHub's limit
func truncateDescription(desc string, maxLen int) string {
	runes := []rune(desc)
	if len(runes) <= maxLen {
		return desc
	}
	return string(runes[:maxLen-3]) + "..."
}
