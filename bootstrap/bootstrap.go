// Package bootstrap wires configuration into the deploy driver and the
// template deployer. The CLI and the worker share it.
package bootstrap

import (
	"net"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/OfficeDev/teams-toolkit-sub012/arm"
	"github.com/OfficeDev/teams-toolkit-sub012/azure"
	"github.com/OfficeDev/teams-toolkit-sub012/config"
	"github.com/OfficeDev/teams-toolkit-sub012/deploy"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
	"github.com/OfficeDev/teams-toolkit-sub012/packager"
	"github.com/OfficeDev/teams-toolkit-sub012/zipdeploy"
)

// Services are the long-lived objects built from a Config.
type Services struct {
	HTTP       *http.Client
	Credential azcore.TokenCredential
	Driver     *deploy.Driver
	Deployer   *arm.Deployer
}

// NewHTTPClient returns the client shared by the SCM transport and the Azure
// SDK. Request deadlines come from contexts, not from the client.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ResponseHeaderTimeout = 5 * time.Minute
	transport.MaxIdleConnsPerHost = 16
	return &http.Client{Transport: transport}
}

// New builds Services from cfg.
func New(cfg *config.Config) (*Services, error) {
	cred, err := azure.NewCredential(cfg.Azure.TenantID)
	if err != nil {
		return nil, err
	}
	return NewWithCredential(cfg, cred, NewHTTPClient()), nil
}

// NewWithCredential builds Services around an existing credential.
func NewWithCredential(cfg *config.Config, cred azcore.TokenCredential, httpClient *http.Client) *Services {
	deployLogger := logging.ComponentLogger("deploy")

	driver := deploy.NewDriver(deploy.Config{
		TempFolder:      cfg.Deploy.TempFolder,
		CacheFile:       cfg.Deploy.CacheFile,
		ManagementScope: cfg.Azure.ManagementScope,
		SCMHostSuffix:   cfg.Azure.SCMHostSuffix,
		AADDeployOnly:   cfg.Azure.AADDeployOnly,
	}, deploy.Dependencies{
		Packager:   packager.New(logging.ComponentLogger("packager")),
		ZipDeploy:  zipdeploy.NewClient(httpClient, zipOptions(cfg.Deploy), logging.ComponentLogger("zipdeploy")),
		Credential: cred,
		Sites:      azure.NewWebApps(cred, httpClient, logging.ComponentLogger("appservice")),
		Blobs:      azure.NewStaticSites(cred, httpClient, cfg.Azure.BlobHostSuffix, cfg.Azure.StaticSiteContainer, logging.ComponentLogger("blob")),
	}, deployLogger)

	deployer := arm.NewDeployer(azure.NewManagerFactory(cred, httpClient), arm.Options{
		BicepCommand:        cfg.Deploy.BicepPath,
		ProgressInterval:    cfg.Deploy.ARMProgressInterval,
		ProgressMaxFailures: cfg.Deploy.ARMProgressMaxFailures,
		ResolveMaxDepth:     cfg.Deploy.ResolveMaxDepth,
		ResolveMaxNodes:     cfg.Deploy.ResolveMaxNodes,
	}, logging.ComponentLogger("arm"))

	return &Services{
		HTTP:       httpClient,
		Credential: cred,
		Driver:     driver,
		Deployer:   deployer,
	}
}

func zipOptions(c config.DeployConfig) zipdeploy.Options {
	return zipdeploy.Options{
		UploadAttempts:   c.UploadAttempts,
		UploadRetryDelay: c.UploadRetryDelay,
		UploadTimeout:    c.UploadTimeout,
		PollAttempts:     c.PollAttempts,
		PollInterval:     c.PollInterval,
	}
}
