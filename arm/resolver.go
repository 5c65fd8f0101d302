package arm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
)

const (
	defaultMaxDepth = 8
	defaultMaxNodes = 200

	skippedOutputMessage = "Template output evaluation skipped"
)

// DeployContext identifies the failed deployment.
type DeployContext struct {
	SubscriptionID string
	ResourceGroup  string
	DeploymentName string
	// StartTime discards a stale deployment record left by an earlier run.
	StartTime time.Time
	Manager   ResourceManager
}

// ErrorNode is one deployment of the diagnostic tree.
type ErrorNode struct {
	Error     *ErrorDetail
	SubErrors map[string]*SubError
}

// SubError is a failed operation. Inner is set when the operation was a
// nested deployment that could be resolved.
type SubError struct {
	Error     *ErrorDetail
	Inner     *ErrorNode
	Truncated bool
}

// Resolver turns a failed deployment into a typed, diagnosable error.
type Resolver struct {
	managers ManagerFactory
	maxDepth int
	maxNodes int
	logger   zerolog.Logger
}

// NewResolver creates a Resolver. Non-positive limits use the defaults.
func NewResolver(managers ManagerFactory, maxDepth, maxNodes int, logger zerolog.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	return &Resolver{managers: managers, maxDepth: maxDepth, maxNodes: maxNodes, logger: logger}
}

// Resolve classifies cause. Template and resource group problems are
// reported directly; anything else is diagnosed by walking the deployment
// and its nested deployments.
func (r *Resolver) Resolve(ctx context.Context, cause error, dc DeployContext) error {
	var perr *ProviderError
	if errors.As(cause, &perr) {
		detail := &perr.Detail
		if detail.Code == CodeInvalidTemplateDeployment {
			detail = r.innermost(detail)
		}

		switch {
		case detail.Code == CodeResourceGroupNotFound:
			return &deployerr.ResourceGroupNotFoundError{SubscriptionID: dc.SubscriptionID, ResourceGroup: dc.ResourceGroup, Err: cause}
		case perr.Detail.Code == CodeInvalidTemplate, perr.Detail.Code == CodeInvalidTemplateDeployment:
			return &deployerr.TemplateInvalidError{DeploymentName: dc.DeploymentName, Code: detail.Code, Message: detail.Message, Err: cause}
		}
	}

	budget := r.maxNodes
	tree, err := r.deploymentError(ctx, dc, dc.SubscriptionID, dc.ResourceGroup, dc.DeploymentName, 0, &budget)
	if err != nil {
		r.logger.Warn().Err(err).Str("deployment", dc.DeploymentName).Msg("Failed to resolve deployment error details")
		return &deployerr.ResolveError{DeploymentName: dc.DeploymentName, Cause: cause, Err: err}
	}
	if tree == nil {
		return &deployerr.DeployArmError{DeploymentName: dc.DeploymentName, ResourceGroup: dc.ResourceGroup, Err: cause}
	}

	detail, _ := json.MarshalIndent(FormatTree(tree), "", "  ")
	return &deployerr.DeployArmError{
		DeploymentName: dc.DeploymentName,
		ResourceGroup:  dc.ResourceGroup,
		Detail:         string(detail),
		Notification:   Notification(tree, dc.DeploymentName),
		Err:            cause,
	}
}

// innermost follows details.error and details[0] to the root cause.
func (r *Resolver) innermost(e *ErrorDetail) *ErrorDetail {
	for i := 0; i < r.maxDepth; i++ {
		switch {
		case e.Inner != nil:
			e = e.Inner
		case len(e.Details) > 0 && e.Details[0] != nil:
			e = e.Details[0]
		default:
			return e
		}
	}
	return e
}

func (r *Resolver) managerFor(dc DeployContext, subscriptionID string) (ResourceManager, error) {
	if subscriptionID == dc.SubscriptionID || subscriptionID == "" || r.managers == nil {
		return dc.Manager, nil
	}
	return r.managers(subscriptionID)
}

// deploymentError builds the tree for one deployment. It returns nil when
// the deployment has no error, is stale, or is a nested deployment that no
// longer exists.
func (r *Resolver) deploymentError(ctx context.Context, dc DeployContext, subscriptionID, resourceGroup, name string, depth int, budget *int) (*ErrorNode, error) {
	isRoot := depth == 0
	*budget--

	manager, err := r.managerFor(dc, subscriptionID)
	if err != nil {
		return nil, err
	}

	deployment, err := manager.Get(ctx, resourceGroup, name)
	if err != nil {
		var perr *ProviderError
		if !isRoot && errors.As(err, &perr) && perr.Detail.Code == CodeDeploymentNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deployment %s: %w", name, err)
	}
	if isRoot && !dc.StartTime.IsZero() && deployment.Timestamp.Before(dc.StartTime) {
		return nil, nil
	}
	if deployment.Error == nil {
		return nil, nil
	}

	node := &ErrorNode{Error: deployment.Error}

	ops, err := manager.ListOperations(ctx, resourceGroup, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations of deployment %s: %w", name, err)
	}

	for _, op := range ops {
		if op.StatusError == nil {
			continue
		}
		opKey := operationKey(op)
		if opKey == "" {
			continue
		}
		if node.SubErrors == nil {
			node.SubErrors = map[string]*SubError{}
		}
		sub := &SubError{Error: op.StatusError}
		node.SubErrors[opKey] = sub

		if op.TargetResource == nil || op.TargetResource.ResourceType != ResourceTypeDeployments || op.TargetResource.ResourceName == "" {
			continue
		}
		if depth+1 >= r.maxDepth || *budget <= 0 {
			sub.Truncated = true
			continue
		}

		childSub, childGroup := subscriptionID, resourceGroup
		if s, rg, err := resourceid.Scope(op.TargetResource.ID); err == nil {
			childSub, childGroup = s, rg
		}
		inner, err := r.deploymentError(ctx, dc, childSub, childGroup, op.TargetResource.ResourceName, depth+1, budget)
		if err != nil {
			return nil, err
		}
		sub.Inner = inner
	}
	return node, nil
}

// operationKey names a failed operation by its target resource, or by the
// operation id when it has no target.
func operationKey(op Operation) string {
	if op.TargetResource != nil && op.TargetResource.ResourceName != "" {
		return op.TargetResource.ResourceName
	}
	return op.ID
}

// FormatTree reduces the tree to what a user needs: leaf errors keyed by
// resource name, minus the noise of skipped output evaluation.
func FormatTree(node *ErrorNode) any {
	if len(node.SubErrors) == 0 {
		return node.Error
	}

	out := map[string]any{}
	for name, sub := range node.SubErrors {
		switch {
		case sub.Inner != nil:
			out[name] = FormatTree(sub.Inner)
		case sub.Truncated:
			out[name] = map[string]any{"error": sub.Error, "truncated": true}
		case isSkippedOutputNoise(sub.Error):
		default:
			out[name] = sub.Error
		}
	}
	return out
}

func isSkippedOutputNoise(e *ErrorDetail) bool {
	return e != nil && e.Code == CodeDeploymentOperationFailed && strings.Contains(e.Message, skippedOutputMessage)
}

// Notification lists the failed modules of a deployment. A deployment with
// no failed operations is itself the failed module.
func Notification(node *ErrorNode, deploymentName string) string {
	modules := make([]string, 0, len(node.SubErrors))
	for name := range node.SubErrors {
		modules = append(modules, name+" module")
	}
	if len(modules) == 0 {
		modules = append(modules, deploymentName+" module")
	}
	sort.Strings(modules)
	return "failed to deploy " + strings.Join(modules, ", ")
}
