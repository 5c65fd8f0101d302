package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/OfficeDev/teams-toolkit-sub012/arm"
)

// ResourceManager implements arm.ResourceManager for one subscription.
type ResourceManager struct {
	deployments *armresources.DeploymentsClient
	operations  *armresources.DeploymentOperationsClient
}

// NewResourceManager creates the deployments clients of subscriptionID.
func NewResourceManager(subscriptionID string, cred azcore.TokenCredential, httpClient *http.Client) (*ResourceManager, error) {
	opts := clientOptions(httpClient)
	deployments, err := armresources.NewDeploymentsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}
	operations, err := armresources.NewDeploymentOperationsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment operations client: %w", err)
	}
	return &ResourceManager{deployments: deployments, operations: operations}, nil
}

// NewManagerFactory returns an arm.ManagerFactory that caches one
// ResourceManager per subscription.
func NewManagerFactory(cred azcore.TokenCredential, httpClient *http.Client) arm.ManagerFactory {
	var mu sync.Mutex
	cache := map[string]*ResourceManager{}
	return func(subscriptionID string) (arm.ResourceManager, error) {
		mu.Lock()
		defer mu.Unlock()
		if m, ok := cache[subscriptionID]; ok {
			return m, nil
		}
		m, err := NewResourceManager(subscriptionID, cred, httpClient)
		if err != nil {
			return nil, err
		}
		cache[subscriptionID] = m
		return m, nil
	}
}

func (m *ResourceManager) CreateOrUpdate(ctx context.Context, resourceGroup, name string, template, parameters map[string]any) (map[string]any, error) {
	poller, err := m.deployments.BeginCreateOrUpdate(ctx, resourceGroup, name, armresources.Deployment{
		Properties: &armresources.DeploymentProperties{
			Mode:       to.Ptr(armresources.DeploymentModeIncremental),
			Template:   template,
			Parameters: parameters,
		},
	}, nil)
	if err != nil {
		return nil, providerError(err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, providerError(err)
	}
	if resp.Properties == nil {
		return nil, nil
	}
	outputs, _ := resp.Properties.Outputs.(map[string]any)
	return outputs, nil
}

func (m *ResourceManager) Get(ctx context.Context, resourceGroup, name string) (*arm.Deployment, error) {
	resp, err := m.deployments.Get(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, providerError(err)
	}

	d := &arm.Deployment{Name: deref(resp.Name)}
	if p := resp.Properties; p != nil {
		if p.ProvisioningState != nil {
			d.ProvisioningState = string(*p.ProvisioningState)
		}
		if p.Timestamp != nil {
			d.Timestamp = *p.Timestamp
		}
		d.Error = convertError(p.Error)
	}
	return d, nil
}

func (m *ResourceManager) ListOperations(ctx context.Context, resourceGroup, name string) ([]arm.Operation, error) {
	var ops []arm.Operation
	pager := m.operations.NewListPager(resourceGroup, name, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, providerError(err)
		}
		for _, v := range page.Value {
			if v == nil {
				continue
			}
			op := arm.Operation{ID: deref(v.ID)}
			if p := v.Properties; p != nil {
				if p.ProvisioningState != nil {
					op.ProvisioningState = *p.ProvisioningState
				}
				if p.Timestamp != nil {
					op.Timestamp = *p.Timestamp
				}
				if p.StatusMessage != nil {
					op.StatusError = convertError(p.StatusMessage.Error)
				}
				if t := p.TargetResource; t != nil {
					op.TargetResource = &arm.TargetResource{
						ID:           deref(t.ID),
						ResourceName: deref(t.ResourceName),
						ResourceType: deref(t.ResourceType),
					}
				}
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func convertError(e *armresources.ErrorResponse) *arm.ErrorDetail {
	if e == nil {
		return nil
	}
	out := &arm.ErrorDetail{
		Code:    deref(e.Code),
		Message: deref(e.Message),
		Target:  deref(e.Target),
	}
	for _, d := range e.Details {
		if c := convertError(d); c != nil {
			out.Details = append(out.Details, c)
		}
	}
	return out
}

// providerError extracts the {"error": {...}} body of a failed management
// call into an arm.ProviderError.
func providerError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	pe := &arm.ProviderError{StatusCode: respErr.StatusCode, Err: err}
	pe.Detail.Code = respErr.ErrorCode

	if respErr.RawResponse != nil {
		if body, readErr := runtime.Payload(respErr.RawResponse); readErr == nil && len(body) > 0 {
			var envelope struct {
				Error *arm.ErrorDetail `json:"error"`
			}
			if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
				pe.Detail = *envelope.Error
			}
		}
	}
	return pe
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
