package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/OfficeDev/teams-toolkit-sub012/activities"
	"github.com/OfficeDev/teams-toolkit-sub012/arm"
)

const (
	// Upload timeout plus the full status polling window
	ComputeDeployTimeout = 45 * time.Minute

	// ARM deployments of large templates routinely take tens of minutes
	TemplateDeployTimeout = 2 * time.Hour
)

// Error types that retrying cannot fix
var nonRetryableErrorTypes = []string{
	"EmptyArtifactError",
	"AADOnlyError",
	"ValidationError",
	"PrerequisiteError",
	"InvalidResourceIDError",
	"CompileError",
	"ParameterError",
	"TemplateInvalidError",
	"ResourceGroupNotFoundError",
	"DeployArmError",
	"ExternalAPIUserError",
}

func deployRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        10 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        2 * time.Minute,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: nonRetryableErrorTypes,
	}
}

func githubActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// ComputeDeployWorkflow deploys an artifact to a web app, function app or
// static website. When a GitHub reference is given the deploy is mirrored as
// a GitHub deployment; reporting failures never fail the workflow.
func ComputeDeployWorkflow(ctx workflow.Context, input ComputeDeployWorkflowInput) (*ComputeDeployWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)
	result := &ComputeDeployWorkflowResult{}

	logger.Info("Starting compute deploy workflow",
		"family", input.Deploy.Family,
		"resource_id", input.Deploy.ResourceID,
		"dry_run", input.Deploy.DryRun)

	reporter := newStatusReporter(workflow.WithActivityOptions(ctx, githubActivityOptions()), input, result)
	reporter.start()

	deployCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ComputeDeployTimeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         deployRetryPolicy(),
	})

	var a *activities.DeployActivities
	var deployResult activities.DeployComputeResult
	err := workflow.ExecuteActivity(deployCtx, a.DeployCompute, input.Deploy).Get(ctx, &deployResult)

	result.CompletedAt = workflow.Now(ctx)
	result.TotalDuration = result.CompletedAt.Sub(startTime).String()

	if err != nil {
		logger.Error("Compute deploy failed", "error", err)
		reporter.finish("failure", fmt.Sprintf("Deploy of %s failed: %s", familyLabel(input.Deploy), rootMessage(err)), "")
		return result, err
	}

	result.Deploy = &deployResult
	reporter.finish("success", fmt.Sprintf("Deployed %s to %s", deployResult.Family, deployResult.SiteName), deployResult.LogURL)

	logger.Info("Compute deploy workflow completed",
		"site", deployResult.SiteName,
		"duration", result.TotalDuration,
		"status_updates", result.StatusUpdates)

	return result, nil
}

// familyLabel names the deploy family for status text. The family is empty
// when it is detected from the resource id.
func familyLabel(in activities.DeployComputeInput) string {
	if in.Family == "" {
		return "artifact"
	}
	return in.Family
}

// statusReporter mirrors the deploy as a GitHub deployment.
type statusReporter struct {
	ctx    workflow.Context
	ref    *GitHubReference
	deploy activities.DeployComputeInput
	desc   string
	result *ComputeDeployWorkflowResult
}

func newStatusReporter(ctx workflow.Context, input ComputeDeployWorkflowInput, result *ComputeDeployWorkflowResult) *statusReporter {
	return &statusReporter{
		ctx:    ctx,
		ref:    input.GitHub,
		deploy: input.Deploy,
		desc:   fmt.Sprintf("Deploying %s", familyLabel(input.Deploy)),
		result: result,
	}
}

func (r *statusReporter) start() {
	if r.ref == nil {
		return
	}
	logger := workflow.GetLogger(r.ctx)

	var gh *activities.GitHubActivities
	var created activities.CreateDeploymentResult
	err := workflow.ExecuteActivity(r.ctx, gh.CreateGitHubDeployment, activities.CreateDeploymentInput{
		GithubOwner:    r.ref.Owner,
		GithubRepo:     r.ref.Repo,
		Ref:            r.ref.Ref,
		Environment:    r.ref.Environment,
		Description:    r.desc,
		ResourceID:     r.deploy.ResourceID,
		Family:         r.deploy.Family,
		ArtifactFolder: r.deploy.ArtifactFolder,
		DryRun:         r.deploy.DryRun,
	}).Get(r.ctx, &created)
	if err != nil {
		logger.Error("Failed to create GitHub deployment, continuing without status reporting", "error", err)
		r.ref = nil
		return
	}
	r.result.GitHubDeploymentID = created.DeploymentID
	r.update("in_progress", r.desc, r.ref.LogURL)
}

func (r *statusReporter) finish(state, description, logURL string) {
	if r.ref == nil {
		return
	}
	if logURL == "" {
		logURL = r.ref.LogURL
	}
	r.update(state, description, logURL)
}

func (r *statusReporter) update(state, description, logURL string) {
	var gh *activities.GitHubActivities
	input := activities.UpdateDeploymentStatusInput{
		GithubOwner:  r.ref.Owner,
		GithubRepo:   r.ref.Repo,
		DeploymentID: r.result.GitHubDeploymentID,
		State:        state,
		Description:  description,
		LogURL:       logURL,
	}
	if state == "success" {
		input.EnvironmentURL = r.ref.EnvironmentURL
	}
	if err := workflow.ExecuteActivity(r.ctx, gh.UpdateGitHubDeploymentStatus, input).Get(r.ctx, nil); err != nil {
		workflow.GetLogger(r.ctx).Error("Failed to update GitHub deployment status", "state", state, "error", err)
		return
	}
	r.result.StatusUpdates++
}

// TemplateBatchWorkflow validates a template batch and deploys every template
// concurrently. Each template succeeds or fails on its own; the result lists
// the outcome of each in input order.
func TemplateBatchWorkflow(ctx workflow.Context, input TemplateBatchWorkflowInput) (*TemplateBatchWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	if err := arm.ValidateBatch(input.Templates, input.SubscriptionID, input.ResourceGroup); err != nil {
		logger.Error("Template batch is invalid", "error", err)
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "ValidationError", err)
	}

	logger.Info("Starting template batch workflow",
		"templates", len(input.Templates),
		"resource_group", input.ResourceGroup)

	deployCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: TemplateDeployTimeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         deployRetryPolicy(),
	})

	var a *activities.DeployActivities
	futures := make([]workflow.Future, len(input.Templates))
	for i, t := range input.Templates {
		futures[i] = workflow.ExecuteActivity(deployCtx, a.DeployTemplate, activities.DeployTemplateInput{
			Template:       t,
			SubscriptionID: input.SubscriptionID,
			ResourceGroup:  input.ResourceGroup,
		})
	}

	result := &TemplateBatchWorkflowResult{Outcomes: make([]TemplateOutcome, len(input.Templates))}
	for i, f := range futures {
		outcome := TemplateOutcome{DeploymentName: input.Templates[i].DeploymentName}
		var deployed activities.DeployTemplateResult
		if err := f.Get(ctx, &deployed); err != nil {
			outcome.Error = rootMessage(err)
			outcome.ErrorType = errorType(err)
			result.Failed++
			logger.Error("Template deployment failed", "deployment", outcome.DeploymentName, "error", err)
		} else {
			outcome.Outputs = deployed.Outputs
		}
		result.Outcomes[i] = outcome
	}
	result.TotalDuration = workflow.Now(ctx).Sub(startTime).String()

	logger.Info("Template batch workflow completed",
		"templates", len(input.Templates),
		"failed", result.Failed,
		"duration", result.TotalDuration)

	return result, nil
}

// rootMessage strips the activity error envelope.
func rootMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}

func errorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return "UnknownError"
}
