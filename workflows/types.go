package workflows

import (
	"time"

	"github.com/OfficeDev/teams-toolkit-sub012/activities"
	"github.com/OfficeDev/teams-toolkit-sub012/arm"
)

// GitHubReference points a deploy at a GitHub repository so its progress is
// reported as a GitHub deployment
type GitHubReference struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Ref            string `json:"ref"`
	Environment    string `json:"environment"`
	LogURL         string `json:"log_url,omitempty"`
	EnvironmentURL string `json:"environment_url,omitempty"`
}

// ComputeDeployWorkflowInput represents the input for a compute deploy
type ComputeDeployWorkflowInput struct {
	Deploy activities.DeployComputeInput `json:"deploy"`

	// Optional GitHub deployment reporting
	GitHub *GitHubReference `json:"github,omitempty"`
}

// ComputeDeployWorkflowResult represents the result of a compute deploy
type ComputeDeployWorkflowResult struct {
	Deploy             *activities.DeployComputeResult `json:"deploy,omitempty"`
	GitHubDeploymentID int64                           `json:"github_deployment_id,omitempty"`
	StatusUpdates      int                             `json:"status_updates"`
	CompletedAt        time.Time                       `json:"completed_at"`
	TotalDuration      string                          `json:"total_duration"`
}

// TemplateBatchWorkflowInput represents the input for a template batch
type TemplateBatchWorkflowInput struct {
	SubscriptionID string         `json:"subscription_id"`
	ResourceGroup  string         `json:"resource_group"`
	Templates      []arm.Template `json:"templates"`
}

// TemplateOutcome is the result of one template of the batch
type TemplateOutcome struct {
	DeploymentName string            `json:"deployment_name"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	ErrorType      string            `json:"error_type,omitempty"`
}

// TemplateBatchWorkflowResult keeps per-template outcomes in input order
type TemplateBatchWorkflowResult struct {
	Outcomes      []TemplateOutcome `json:"outcomes"`
	Failed        int               `json:"failed"`
	TotalDuration string            `json:"total_duration"`
}
