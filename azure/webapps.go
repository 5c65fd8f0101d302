package azure

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
)

// WebApps manages App Service sites. Clients are created lazily per
// subscription.
type WebApps struct {
	cred       azcore.TokenCredential
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.Mutex
	clients map[string]*armappservice.WebAppsClient
}

// NewWebApps creates a WebApps.
func NewWebApps(cred azcore.TokenCredential, httpClient *http.Client, logger zerolog.Logger) *WebApps {
	return &WebApps{
		cred:       cred,
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[string]*armappservice.WebAppsClient),
	}
}

func (w *WebApps) client(subscriptionID string) (*armappservice.WebAppsClient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.clients[subscriptionID]; ok {
		return c, nil
	}
	c, err := armappservice.NewWebAppsClient(subscriptionID, w.cred, clientOptions(w.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create web apps client: %w", err)
	}
	w.clients[subscriptionID] = c
	return c, nil
}

// PublishingCredentials returns the site's basic auth publishing profile.
func (w *WebApps) PublishingCredentials(ctx context.Context, target resourceid.Target) (string, string, error) {
	c, err := w.client(target.SubscriptionID)
	if err != nil {
		return "", "", err
	}

	poller, err := c.BeginListPublishingCredentials(ctx, target.ResourceGroupName, target.InstanceID, nil)
	if err != nil {
		return "", "", apiError("list publishing credentials", err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", "", apiError("list publishing credentials", err)
	}
	if resp.Properties == nil || resp.Properties.PublishingUserName == nil || resp.Properties.PublishingPassword == nil {
		return "", "", fmt.Errorf("publishing credentials of %s are empty", target.InstanceID)
	}

	w.logger.Debug().Str("site", target.InstanceID).Msg("Fetched publishing credentials")
	return *resp.Properties.PublishingUserName, *resp.Properties.PublishingPassword, nil
}

// Restart restarts the site.
func (w *WebApps) Restart(ctx context.Context, target resourceid.Target) error {
	c, err := w.client(target.SubscriptionID)
	if err != nil {
		return err
	}
	if _, err := c.Restart(ctx, target.ResourceGroupName, target.InstanceID, nil); err != nil {
		return apiError("restart site", err)
	}
	w.logger.Info().Str("site", target.InstanceID).Msg("Site restarted")
	return nil
}
