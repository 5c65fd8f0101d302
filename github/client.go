package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v58/github"
	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/config"
)

// ClientFactory creates authenticated GitHub clients
type ClientFactory struct {
	config     config.GitHubConfig
	privateKey []byte
	transport  http.RoundTripper
	logger     zerolog.Logger

	// Cache for installation IDs by organization
	mu                sync.Mutex
	installationCache map[string]int64
}

// NewClientFactory creates a new GitHub client factory. A nil transport uses
// http.DefaultTransport.
func NewClientFactory(cfg config.GitHubConfig, privateKey []byte, transport http.RoundTripper, logger zerolog.Logger) *ClientFactory {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &ClientFactory{
		config:            cfg,
		privateKey:        privateKey,
		transport:         transport,
		logger:            logger,
		installationCache: make(map[string]int64),
	}
}

// apiBase returns the REST and upload roots for Enterprise GitHub, or empty
// strings for GitHub.com.
func (f *ClientFactory) apiBase() (api, uploads string) {
	if f.config.EnterpriseURL == "" {
		return "", ""
	}
	baseURL := strings.TrimSuffix(f.config.EnterpriseURL, "/")
	return baseURL + "/api/v3", baseURL + "/api/uploads"
}

func (f *ClientFactory) newClient(rt http.RoundTripper) *github.Client {
	client := github.NewClient(&http.Client{Transport: rt})
	if api, uploads := f.apiBase(); api != "" {
		client.BaseURL, _ = client.BaseURL.Parse(api + "/")
		client.UploadURL, _ = client.UploadURL.Parse(uploads + "/")
	}
	return client
}

// CreateClientForOrg creates a client authenticated as the App installation
// of org. Installation IDs are resolved once per organization.
func (f *ClientFactory) CreateClientForOrg(ctx context.Context, org string) (*github.Client, error) {
	installationID, err := f.installationFor(ctx, org)
	if err != nil {
		return nil, err
	}

	itr, err := ghinstallation.New(f.transport, f.config.AppID, installationID, f.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	if api, _ := f.apiBase(); api != "" {
		itr.BaseURL = api
	}

	return f.newClient(itr), nil
}

func (f *ClientFactory) installationFor(ctx context.Context, org string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if installationID, exists := f.installationCache[org]; exists {
		return installationID, nil
	}

	// Create GitHub App transport to find installations
	atr, err := ghinstallation.NewAppsTransport(f.transport, f.config.AppID, f.privateKey)
	if err != nil {
		return 0, fmt.Errorf("failed to create app transport: %w", err)
	}
	if api, _ := f.apiBase(); api != "" {
		atr.BaseURL = api
	}
	appClient := f.newClient(atr)

	opts := &github.ListOptions{PerPage: 100}
	for {
		installations, resp, err := appClient.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return 0, fmt.Errorf("failed to list app installations: %w", err)
		}
		for _, installation := range installations {
			if strings.EqualFold(installation.GetAccount().GetLogin(), org) {
				f.installationCache[org] = installation.GetID()

				f.logger.Info().
					Int64("app_id", f.config.AppID).
					Int64("installation_id", installation.GetID()).
					Str("organization", org).
					Str("enterprise_url", f.config.EnterpriseURL).
					Msg("Found GitHub App installation for organization")
				return installation.GetID(), nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return 0, fmt.Errorf("no installation found for organization '%s'", org)
}
