// Package arm deploys ARM and Bicep templates into a resource group and
// turns provider failures into actionable diagnostics.
package arm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Provider error codes with dedicated handling.
const (
	CodeInvalidTemplate           = "InvalidTemplate"
	CodeInvalidTemplateDeployment = "InvalidTemplateDeployment"
	CodeResourceGroupNotFound     = "ResourceGroupNotFound"
	CodeDeploymentNotFound        = "DeploymentNotFound"
	CodeDeploymentOperationFailed = "DeploymentOperationFailed"

	// ResourceTypeDeployments marks an operation that is itself a nested
	// deployment.
	ResourceTypeDeployments = "Microsoft.Resources/deployments"
)

// Template is one deployment of a batch.
type Template struct {
	// Path is a .json ARM template or a .bicep file.
	Path string `json:"path" yaml:"path"`
	// Parameters is an optional .json parameters file.
	Parameters     string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	DeploymentName string `json:"deploymentName" yaml:"deploymentName"`
}

// ErrorDetail is the provider error shape, possibly nested.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Target  string         `json:"target,omitempty"`
	Details []*ErrorDetail `json:"details,omitempty"`
	// Inner holds a cause wrapped as details.error.
	Inner *ErrorDetail `json:"-"`
}

// UnmarshalJSON accepts details either as an array or as an object wrapping
// the real cause under "error".
func (e *ErrorDetail) UnmarshalJSON(data []byte) error {
	var aux struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Target  string          `json:"target"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Code, e.Message, e.Target = aux.Code, aux.Message, aux.Target

	raw := bytes.TrimSpace(aux.Details)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		return json.Unmarshal(raw, &e.Details)
	case raw[0] == '{':
		var wrapped struct {
			Error *ErrorDetail `json:"error"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return err
		}
		e.Inner = wrapped.Error
	}
	return nil
}

// ProviderError is a failed management API call carrying the provider's
// structured error.
type ProviderError struct {
	StatusCode int
	Detail     ErrorDetail
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Detail.Code == "" && e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Detail.Code, e.Detail.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Deployment is the subset of a deployment record the resolver needs.
type Deployment struct {
	Name              string
	ProvisioningState string
	Timestamp         time.Time
	Error             *ErrorDetail
}

// TargetResource is the resource an operation acted upon.
type TargetResource struct {
	ID           string
	ResourceName string
	ResourceType string
}

// Operation is a single step of a deployment.
type Operation struct {
	ID                string
	ProvisioningState string
	Timestamp         time.Time
	StatusError       *ErrorDetail
	TargetResource    *TargetResource
}

// ResourceManager is the deployments surface of one subscription.
type ResourceManager interface {
	// CreateOrUpdate starts a deployment and blocks until it settles. It
	// returns the raw template outputs.
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, template, parameters map[string]any) (map[string]any, error)
	Get(ctx context.Context, resourceGroup, name string) (*Deployment, error)
	ListOperations(ctx context.Context, resourceGroup, name string) ([]Operation, error)
}

// ManagerFactory returns the ResourceManager of a subscription.
type ManagerFactory func(subscriptionID string) (ResourceManager, error)
