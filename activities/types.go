package activities

import "github.com/OfficeDev/teams-toolkit-sub012/arm"

// DeployComputeInput represents input for a zip or static site deploy
type DeployComputeInput struct {
	Family           string `json:"family"`
	WorkingDirectory string `json:"working_directory"`
	ArtifactFolder   string `json:"artifact_folder"`
	IgnoreFile       string `json:"ignore_file,omitempty"`
	ResourceID       string `json:"resource_id"`
	DryRun           bool   `json:"dry_run,omitempty"`
}

// DeployComputeResult represents the result of a compute deploy
type DeployComputeResult struct {
	Family       string `json:"family"`
	ResourceID   string `json:"resource_id"`
	SiteName     string `json:"site_name"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	LogURL       string `json:"log_url,omitempty"`
	Uploaded     int    `json:"uploaded"`
	Deleted      int    `json:"deleted"`
	DryRun       bool   `json:"dry_run"`
	Duration     string `json:"duration"`
}

// DeployTemplateInput represents input for one template deployment
type DeployTemplateInput struct {
	Template       arm.Template `json:"template"`
	SubscriptionID string       `json:"subscription_id"`
	ResourceGroup  string       `json:"resource_group"`
}

// DeployTemplateResult represents the flattened outputs of one template
type DeployTemplateResult struct {
	DeploymentName string            `json:"deployment_name"`
	Outputs        map[string]string `json:"outputs"`
}

// CreateDeploymentInput represents input for creating a GitHub deployment
type CreateDeploymentInput struct {
	GithubOwner string            `json:"github_owner"`
	GithubRepo  string            `json:"github_repo"`
	Ref         string            `json:"ref"`
	Environment string            `json:"environment"`
	Description string            `json:"description"`
	Payload     map[string]string `json:"payload"`

	// Deploy being mirrored
	ResourceID     string `json:"resource_id,omitempty"`
	Family         string `json:"family,omitempty"`
	ArtifactFolder string `json:"artifact_folder,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// CreateDeploymentResult represents the result of creating a deployment
type CreateDeploymentResult struct {
	DeploymentID int64  `json:"deployment_id"`
	URL          string `json:"url"`
	Environment  string `json:"environment"`
}

// UpdateDeploymentStatusInput represents input for updating deployment status
type UpdateDeploymentStatusInput struct {
	GithubOwner    string `json:"github_owner"`
	GithubRepo     string `json:"github_repo"`
	DeploymentID   int64  `json:"deployment_id"`
	State          string `json:"state"`
	Description    string `json:"description"`
	LogURL         string `json:"log_url"`
	EnvironmentURL string `json:"environment_url"`
}
