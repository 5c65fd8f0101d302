package activities

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/OfficeDev/teams-toolkit-sub012/arm"
	"github.com/OfficeDev/teams-toolkit-sub012/deploy"
	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
)

// heartbeatInterval keeps long uploads, polls and template deployments alive
// between step changes.
var heartbeatInterval = 15 * time.Second

// ComputeDeployer runs a compute deploy.
type ComputeDeployer interface {
	Deploy(ctx context.Context, family string, args deploy.Args) (*deploy.Result, error)
}

// TemplateDeployer runs one template deployment.
type TemplateDeployer interface {
	DeployTemplate(ctx context.Context, t arm.Template, subscriptionID, resourceGroup string) (map[string]string, error)
}

// DeployActivities contains the Azure deployment activities
type DeployActivities struct {
	compute   ComputeDeployer
	templates TemplateDeployer
}

// NewDeployActivities creates a new instance of deployment activities
func NewDeployActivities(compute ComputeDeployer, templates TemplateDeployer) *DeployActivities {
	return &DeployActivities{compute: compute, templates: templates}
}

// DeployCompute packages and deploys an artifact to a web app, function app
// or static website.
func (a *DeployActivities) DeployCompute(ctx context.Context, input DeployComputeInput) (*DeployComputeResult, error) {
	activityInfo := activity.GetInfo(ctx)
	logger := logging.ActivityLogger("DeployCompute", activityInfo.WorkflowExecution.ID, activityInfo.WorkflowExecution.RunID)

	logger.Info().
		Str("family", input.Family).
		Str("resource_id", input.ResourceID).
		Bool("dry_run", input.DryRun).
		Msg("Starting compute deploy")

	hb := startHeartbeat(ctx, "starting")
	defer hb.stop()

	result, err := a.compute.Deploy(ctx, input.Family, deploy.Args{
		WorkingDirectory: input.WorkingDirectory,
		ArtifactFolder:   input.ArtifactFolder,
		IgnoreFile:       input.IgnoreFile,
		ResourceID:       input.ResourceID,
		DryRun:           input.DryRun,
		Progress:         hb.step,
	})
	if err != nil {
		logger.Error().Err(err).Str("kind", deployerr.Kind(err)).Msg("Compute deploy failed")
		return nil, applicationError(err)
	}

	out := &DeployComputeResult{
		Family:       result.Family,
		ResourceID:   input.ResourceID,
		SiteName:     result.Target.InstanceID,
		ArtifactPath: result.ArtifactPath,
		Uploaded:     result.Uploaded,
		Deleted:      result.Deleted,
		DryRun:       result.DryRun,
		Duration:     result.Duration.String(),
	}
	if result.Deployment != nil {
		out.DeploymentID = result.Deployment.ID
		out.LogURL = result.Deployment.LogURL
	}

	logger.Info().
		Str("site", out.SiteName).
		Str("deployment_id", out.DeploymentID).
		Str("duration", out.Duration).
		Msg("Compute deploy completed")

	return out, nil
}

// DeployTemplate deploys a single ARM or Bicep template and returns its
// flattened outputs.
func (a *DeployActivities) DeployTemplate(ctx context.Context, input DeployTemplateInput) (*DeployTemplateResult, error) {
	activityInfo := activity.GetInfo(ctx)
	logger := logging.ActivityLogger("DeployTemplate", activityInfo.WorkflowExecution.ID, activityInfo.WorkflowExecution.RunID)

	logger.Info().
		Str("deployment", input.Template.DeploymentName).
		Str("template", input.Template.Path).
		Str("resource_group", input.ResourceGroup).
		Msg("Starting template deployment")

	hb := startHeartbeat(ctx, "deploying "+input.Template.DeploymentName)
	defer hb.stop()

	outputs, err := a.templates.DeployTemplate(ctx, input.Template, input.SubscriptionID, input.ResourceGroup)
	if err != nil {
		logger.Error().Err(err).Str("kind", deployerr.Kind(err)).Msg("Template deployment failed")
		return nil, applicationError(err)
	}

	return &DeployTemplateResult{DeploymentName: input.Template.DeploymentName, Outputs: outputs}, nil
}

// applicationError tags err with its kind. User errors are not retried. The
// message already carries the whole chain, so no cause is attached.
func applicationError(err error) error {
	if deployerr.IsUserError(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), deployerr.Kind(err), nil)
	}
	return temporal.NewApplicationError(err.Error(), deployerr.Kind(err))
}

// heartbeat records the current step immediately on change and again every
// heartbeatInterval until stopped.
type heartbeat struct {
	ctx  context.Context
	mu   sync.Mutex
	last string
	done chan struct{}
	wg   sync.WaitGroup
}

func startHeartbeat(ctx context.Context, initial string) *heartbeat {
	h := &heartbeat{ctx: ctx, last: initial, done: make(chan struct{})}
	activity.RecordHeartbeat(ctx, initial)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.mu.Lock()
				step := h.last
				h.mu.Unlock()
				activity.RecordHeartbeat(ctx, step)
			}
		}
	}()
	return h
}

func (h *heartbeat) step(name string) {
	h.mu.Lock()
	h.last = name
	h.mu.Unlock()
	activity.RecordHeartbeat(h.ctx, name)
}

func (h *heartbeat) stop() {
	close(h.done)
	h.wg.Wait()
}
