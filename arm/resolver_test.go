package arm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

func nestedID(rg, name string) string {
	return "/subscriptions/" + testSubscription + "/resourceGroups/" + rg + "/providers/Microsoft.Resources/deployments/" + name
}

func deployCtx(m ResourceManager, start time.Time) DeployContext {
	return DeployContext{
		SubscriptionID: testSubscription,
		ResourceGroup:  testGroup,
		DeploymentName: "main",
		StartTime:      start,
		Manager:        m,
	}
}

func TestResolveShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		detail   ErrorDetail
		wantCode string
		wantRG   bool
	}{
		{
			name:     "invalid template",
			detail:   ErrorDetail{Code: CodeInvalidTemplate, Message: "Deployment template validation failed"},
			wantCode: CodeInvalidTemplate,
		},
		{
			name: "invalid template deployment unwraps details.error",
			detail: ErrorDetail{
				Code:    CodeInvalidTemplateDeployment,
				Message: "The template deployment 'main' is not valid according to the validation procedure.",
				Inner: &ErrorDetail{
					Code:    "ValidationForResourceFailed",
					Message: "Validation failed for a resource. Check 'Error.Details[0]' for more information.",
					Details: []*ErrorDetail{{Code: "MaxNumberOfServerFarmsInSkuPerSubscription", Message: "The maximum number of Free ServerFarms allowed in a Subscription is 10."}},
				},
			},
			wantCode: "MaxNumberOfServerFarmsInSkuPerSubscription",
		},
		{
			name:   "resource group not found",
			detail: ErrorDetail{Code: CodeResourceGroupNotFound, Message: "Resource group 'hoho-rg' could not be found."},
			wantRG: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeManager()
			r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())

			err := r.Resolve(context.Background(), &ProviderError{StatusCode: 400, Detail: tt.detail}, deployCtx(m, time.Now()))
			assert.Zero(t, m.getCalls)
			assert.Zero(t, m.listCalls)

			if tt.wantRG {
				var rgErr *deployerr.ResourceGroupNotFoundError
				require.ErrorAs(t, err, &rgErr)
				assert.Equal(t, testGroup, rgErr.ResourceGroup)
				return
			}
			var tplErr *deployerr.TemplateInvalidError
			require.ErrorAs(t, err, &tplErr)
			assert.Equal(t, tt.wantCode, tplErr.Code)
		})
	}
}

func TestResolveBuildsDiagnosticTree(t *testing.T) {
	start := time.Now()
	m := newFakeManager()
	m.deployments[key(testGroup, "main")] = &Deployment{
		Name:      "main",
		Timestamp: start.Add(time.Minute),
		Error:     &ErrorDetail{Code: CodeDeploymentOperationFailed, Message: "At least one resource deployment operation failed."},
	}
	m.operations[key(testGroup, "main")] = []Operation{
		{
			StatusError:    &ErrorDetail{Code: "Conflict", Message: "Website with given name already exists."},
			TargetResource: &TargetResource{ResourceName: "webApp", ResourceType: "Microsoft.Web/sites"},
		},
		{
			StatusError:    &ErrorDetail{Code: CodeDeploymentOperationFailed, Message: "nested failed"},
			TargetResource: &TargetResource{ID: nestedID("other-rg", "storageModule"), ResourceName: "storageModule", ResourceType: ResourceTypeDeployments},
		},
		{
			StatusError:    &ErrorDetail{Code: CodeDeploymentOperationFailed, Message: "Template output evaluation skipped: at least one resource deployment operation failed."},
			TargetResource: &TargetResource{ID: nestedID(testGroup, "outputs"), ResourceName: "outputs", ResourceType: "Microsoft.Resources/outputs"},
		},
		{
			ProvisioningState: "Succeeded",
			TargetResource:    &TargetResource{ResourceName: "plan", ResourceType: "Microsoft.Web/serverfarms"},
		},
	}
	m.deployments[key("other-rg", "storageModule")] = &Deployment{
		Name:  "storageModule",
		Error: &ErrorDetail{Code: CodeDeploymentOperationFailed, Message: "nested failed"},
	}
	m.operations[key("other-rg", "storageModule")] = []Operation{
		{
			StatusError:    &ErrorDetail{Code: "StorageAccountAlreadyTaken", Message: "The storage account named x is already taken."},
			TargetResource: &TargetResource{ResourceName: "storage", ResourceType: "Microsoft.Storage/storageAccounts"},
		},
	}

	r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())
	err := r.Resolve(context.Background(), errors.New("deployment failed"), deployCtx(m, start))

	var armErr *deployerr.DeployArmError
	require.ErrorAs(t, err, &armErr)
	assert.Equal(t, "failed to deploy outputs module, storageModule module, webApp module", armErr.Notification)

	var tree map[string]any
	require.NoError(t, json.Unmarshal([]byte(armErr.Detail), &tree))
	assert.NotContains(t, tree, "outputs")
	assert.Contains(t, tree, "webApp")

	nested, ok := tree["storageModule"].(map[string]any)
	require.True(t, ok, "nested deployment should be expanded: %v", tree["storageModule"])
	leaf, ok := nested["storage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "StorageAccountAlreadyTaken", leaf["code"])
}

func TestResolveKeysUntargetedOperationsByID(t *testing.T) {
	start := time.Now()
	opID := "/subscriptions/" + testSubscription + "/resourceGroups/" + testGroup + "/providers/Microsoft.Resources/deployments/main/operations/ABC123"
	m := newFakeManager()
	m.deployments[key(testGroup, "main")] = &Deployment{
		Name:      "main",
		Timestamp: start,
		Error:     &ErrorDetail{Code: CodeDeploymentOperationFailed, Message: "At least one resource deployment operation failed."},
	}
	m.operations[key(testGroup, "main")] = []Operation{{
		ID:          opID,
		StatusError: &ErrorDetail{Code: "QuotaExceeded", Message: "Operation cannot be completed without additional quota."},
	}}

	r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())
	err := r.Resolve(context.Background(), errors.New("deployment failed"), deployCtx(m, start))

	var armErr *deployerr.DeployArmError
	require.ErrorAs(t, err, &armErr)
	assert.Contains(t, armErr.Detail, "QuotaExceeded")
	assert.Equal(t, 1, m.getCalls)

	var tree map[string]any
	require.NoError(t, json.Unmarshal([]byte(armErr.Detail), &tree))
	leaf, ok := tree[opID].(map[string]any)
	require.True(t, ok, "operation should be keyed by its id: %v", tree)
	assert.Equal(t, "QuotaExceeded", leaf["code"])
}

func TestNotification(t *testing.T) {
	assert.Equal(t, "failed to deploy main module",
		Notification(&ErrorNode{Error: &ErrorDetail{Code: "Conflict"}}, "main"))
	assert.Equal(t, "failed to deploy a module, b module",
		Notification(&ErrorNode{SubErrors: map[string]*SubError{"b": {}, "a": {}}}, "main"))
}

func TestResolveDiscardsStaleDeployment(t *testing.T) {
	start := time.Now()
	m := newFakeManager()
	m.deployments[key(testGroup, "main")] = &Deployment{
		Name:      "main",
		Timestamp: start.Add(-time.Hour),
		Error:     &ErrorDetail{Code: "Old", Message: "from an earlier run"},
	}

	r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())
	cause := errors.New("deployment failed")
	err := r.Resolve(context.Background(), cause, deployCtx(m, start))

	var armErr *deployerr.DeployArmError
	require.ErrorAs(t, err, &armErr)
	assert.Empty(t, armErr.Detail)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, m.listCalls)
}

func TestResolveMissingNestedDeployment(t *testing.T) {
	start := time.Now()
	m := newFakeManager()
	m.deployments[key(testGroup, "main")] = &Deployment{Name: "main", Timestamp: start, Error: &ErrorDetail{Code: "Failed"}}
	m.operations[key(testGroup, "main")] = []Operation{{
		StatusError:    &ErrorDetail{Code: "NestedFailed", Message: "gone"},
		TargetResource: &TargetResource{ID: nestedID(testGroup, "deleted"), ResourceName: "deleted", ResourceType: ResourceTypeDeployments},
	}}

	r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())
	err := r.Resolve(context.Background(), errors.New("boom"), deployCtx(m, start))

	var armErr *deployerr.DeployArmError
	require.ErrorAs(t, err, &armErr)
	assert.Contains(t, armErr.Detail, "NestedFailed")
}

func TestResolveStopsAtDepthCeiling(t *testing.T) {
	start := time.Now()
	m := newFakeManager()
	// A deployment whose operation points back at itself.
	m.deployments[key(testGroup, "main")] = &Deployment{Name: "main", Timestamp: start, Error: &ErrorDetail{Code: "Failed"}}
	m.operations[key(testGroup, "main")] = []Operation{{
		StatusError:    &ErrorDetail{Code: "Failed", Message: "loop"},
		TargetResource: &TargetResource{ID: nestedID(testGroup, "main"), ResourceName: "main", ResourceType: ResourceTypeDeployments},
	}}

	r := NewResolver(factoryFor(m), 3, 0, zerolog.Nop())
	err := r.Resolve(context.Background(), errors.New("boom"), deployCtx(m, start))

	var armErr *deployerr.DeployArmError
	require.ErrorAs(t, err, &armErr)
	assert.Equal(t, 3, m.getCalls)
	assert.Contains(t, armErr.Detail, `"truncated": true`)
}

func TestResolveLookupFailure(t *testing.T) {
	m := newFakeManager()
	m.getErrs[key(testGroup, "main")] = &ProviderError{StatusCode: 403, Detail: ErrorDetail{Code: "AuthorizationFailed"}}

	r := NewResolver(factoryFor(m), 0, 0, zerolog.Nop())
	cause := errors.New("deployment failed")
	err := r.Resolve(context.Background(), cause, deployCtx(m, time.Now()))

	var resolveErr *deployerr.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.ErrorIs(t, err, cause)
}
