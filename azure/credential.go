// Package azure adapts the Azure SDK clients to the narrow interfaces the
// deploy and arm packages depend on.
package azure

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azarm "github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// NewCredential returns the default credential chain (environment, workload
// identity, managed identity, Azure CLI), pinned to tenantID when set.
func NewCredential(tenantID string) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	return cred, nil
}

// clientOptions routes SDK traffic through the shared HTTP client.
func clientOptions(httpClient *http.Client) *azarm.ClientOptions {
	if httpClient == nil {
		return nil
	}
	return &azarm.ClientOptions{
		ClientOptions: policy.ClientOptions{Transport: httpClient},
	}
}

// apiError converts an SDK response error to an ExternalAPICallError.
func apiError(op string, err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	endpoint := ""
	if respErr.RawResponse != nil && respErr.RawResponse.Request != nil {
		endpoint = respErr.RawResponse.Request.URL.String()
	}
	return &deployerr.ExternalAPICallError{
		Op:         op,
		Endpoint:   endpoint,
		StatusCode: respErr.StatusCode,
		Err:        err,
	}
}
